package metrics

// InitializeMetrics pre-populates the expected label combinations so that
// every series is exported from the first Prometheus scrape. kinds is the
// list of artifact kinds the engine knows about.
func InitializeMetrics(kinds []string) {
	for _, kind := range kinds {
		JobSubmissionsTotal.WithLabelValues(kind, "created")
		JobSubmissionsTotal.WithLabelValues(kind, "skipped")
		for _, state := range []string{"done", "failed", "canceled"} {
			JobsFinishedTotal.WithLabelValues(kind, state)
		}
		JobDuration.WithLabelValues(kind)
		JobQueueWait.WithLabelValues(kind)
		ReaperReapedTotal.WithLabelValues(kind)
		IdleSubmissionsTotal.WithLabelValues(kind)
	}

	for _, state := range []string{"queued", "running", "done", "failed", "canceled"} {
		JobsByState.WithLabelValues(state)
	}

	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		for _, status := range []string{"success", "error", "timeout", "canceled"} {
			SubprocessRunsTotal.WithLabelValues(tool, status)
		}
		SubprocessDuration.WithLabelValues(tool)
	}

	for _, decision := range []string{"disabled", "busy", "saturated", "accumulating", "submitted", "skipped", "covered", "error"} {
		IdlePollsTotal.WithLabelValues(decision)
	}

	for _, op := range []string{"get", "put", "list", "delete"} {
		HashIndexQueryDuration.WithLabelValues(op)
	}

	for _, op := range []string{"stat", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}
}
