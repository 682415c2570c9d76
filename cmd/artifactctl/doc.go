// Command artifactctl runs artifact jobs and library reports from the shell.
//
// Local commands open the engine directly against MEDIA_DIR, CACHE_DIR and
// DATABASE_DIR (the same configuration the daemon reads):
//
//	artifactctl generate --kinds thumbnail,sprites --base shows --only-missing
//	artifactctl dupes --scope shows --min-similarity 0.9
//	artifactctl coverage --base shows
//
// generate takes the cache directory instance lock, so it refuses to run
// beside a daemon on the same cache; pass --server to submit the jobs to the
// daemon instead. The jobs subcommands always talk to a daemon:
//
//	artifactctl --server http://localhost:8080 jobs list --filter all
//	artifactctl --server http://localhost:8080 jobs cancel <id>
package main
