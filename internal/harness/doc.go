/*
Package harness wraps a plain function in the artifact job lifecycle.

A submission for (kind, target) first looks for a live job on the same key;
if one exists its id is returned with Skipped set and no work starts. Otherwise
a queued job is created and the per-file lock taken, all under one mutex, so
two racing submissions can never both create work.

The job then waits for a limiter slot (still queued), moves to running, and
the harness starts a heartbeat goroutine of its own so liveness does not
depend on the work function yielding. The function receives a *JobContext for
progress and cancellation; the same handle is reachable from its context via
FromContext.

	res, err := h.Wrap(ctx, "thumbnail", "movies/a.mp4", func(jc *harness.JobContext) (any, error) {
	    jc.SetTotal(3)
	    for i := 0; i < 3; i++ {
	        if err := jc.Checkpoint(); err != nil {
	            return nil, err
	        }
	        jc.Add(1)
	    }
	    return "ok", nil
	})

A nil error ends the job done; a context.Canceled error (or any error after
the job was canceled) ends it canceled; anything else, including a panic,
ends it failed. Wrap returns the failure to its caller; WrapBackground only
records it on the job.
*/
package harness
