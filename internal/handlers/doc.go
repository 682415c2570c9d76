// Package handlers provides the HTTP job API for the artifact engine.
//
// It includes handlers for:
//   - Submitting, listing, inspecting and canceling artifact jobs
//   - Serving generated artifact files
//   - Duplicate clusters from the perceptual hash index
//   - Library coverage and idle scheduler status
//   - Health, liveness, readiness, version and Prometheus metrics
package handlers
