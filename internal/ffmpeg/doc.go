/*
Package ffmpeg runs the external transcoding tools.

Every invocation is bounded: a hard timeout (Config.Timeout for ffmpeg,
Config.ProbeTimeout for ffprobe), cancellation through the caller's context,
and its own process group so that a kill also reaches any helper processes
ffmpeg spawns. When the context carries a job id (procs.WithJob), the command
is registered in the procs.Registry for the duration of the call, which lets
a cancel request or the orphan reaper terminate it from outside the job.

Failures are classified for errors.Is / errors.As:

	ErrTimeout    the budget expired and the process was killed
	*ExitError    non-zero exit, carries the code and the tail of stderr;
	              wraps ErrFailed
	ctx.Err()     the caller canceled
*/
package ffmpeg
