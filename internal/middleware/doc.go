// Package middleware provides HTTP middleware for the job API.
//
// Logger writes one W3C Extended Log Format line per request, preceded once
// by a #Fields directive. Handlers that touch a job set the X-Job-Id response
// header, which lands in the x-job-id column. Probes, scrapes and artifact
// downloads are skipped unless enabled.
//
// Metrics records Prometheus request counts and latencies labelled by the mux
// route template, so /api/jobs/{id} is one series regardless of the id.
package middleware
