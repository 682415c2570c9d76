/*
Package filesystem provides the file operations artifact workers rely on:
stat/open with retry for NFS stale handles, and atomic artifact writes.

# NFS retry

Media libraries often live on NFS. StatWithRetry and OpenWithRetry retry only
ESTALE (errno 116) with exponential backoff; every other error is returned
immediately. A canceled context cuts the backoff short.

	info, err := filesystem.StatWithRetry(ctx, path, filesystem.DefaultRetryConfig())

# Atomic writes

An artifact that exists on disk is treated as complete by the coverage
scanner, so producers never write to the final path directly:

	tmp := filesystem.TempPath(dest)
	if err := run(tmp); err != nil {
	    filesystem.Discard(tmp)
	    return err
	}
	return filesystem.Commit(tmp, dest)

WriteFileAtomic wraps the same sequence for in-memory payloads.
*/
package filesystem
