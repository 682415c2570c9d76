// Package logging provides the leveled, printf-style logger used across the
// artifact engine.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to DEBUG with DEBUG=true. Messages about a specific job go through
// ForJob so every line carries the job id and artifact kind.
package logging
