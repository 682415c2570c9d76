package middleware

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// JobIDHeader is set by handlers that create or address a job, so the access
// log can tie a request to the job it touched.
const JobIDHeader = "X-Job-Id"

// accessFields is the W3C #Fields directive for the lines written by Logger.
const accessFields = "date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken x-job-id sc(Content-Type) cs(User-Agent)"

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	// SkipPaths are path prefixes never logged.
	SkipPaths []string
	// LogArtifacts logs artifact downloads, which players fetch in bursts.
	LogArtifacts    bool
	LogHealthChecks bool
}

// DefaultLoggingConfig logs API calls and skips scrapes, probes and artifact
// downloads.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{SkipPaths: []string{"/metrics"}}
}

const artifactPrefix = "/api/artifacts/"

var probePaths = map[string]bool{
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

func (c LoggingConfig) skip(path string) bool {
	for _, p := range c.SkipPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	if !c.LogHealthChecks && probePaths[path] {
		return true
	}
	return !c.LogArtifacts && strings.HasPrefix(path, artifactPrefix)
}

// Logger returns access logging middleware writing W3C Extended Log Format
// lines to the standard logger. The #Fields directive is written before the
// first line.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	var directive sync.Once

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			directive.Do(func() { log.Println("#Fields: " + accessFields) })
			//nolint:gosec // G706: every request-controlled field passes through field()
			log.Println(newAccessEntry(r, rw, start).String())
		})
	}
}

type accessEntry struct {
	at          time.Time
	clientIP    string
	method      string
	path        string
	query       string
	status      int
	bytes       int64
	took        time.Duration
	jobID       string
	contentType string
	userAgent   string
}

func newAccessEntry(r *http.Request, rw *responseWriter, start time.Time) accessEntry {
	return accessEntry{
		at:          time.Now().UTC(),
		clientIP:    getClientIP(r),
		method:      r.Method,
		path:        r.URL.Path,
		query:       r.URL.RawQuery,
		status:      rw.statusCode,
		bytes:       rw.bytesWritten,
		took:        time.Since(start),
		jobID:       rw.Header().Get(JobIDHeader),
		contentType: rw.Header().Get("Content-Type"),
		userAgent:   r.Header.Get("User-Agent"),
	}
}

func (e accessEntry) String() string {
	parts := []string{
		e.at.Format("2006-01-02"),
		e.at.Format("15:04:05"),
		field(e.clientIP),
		field(e.method),
		field(e.path),
		field(e.query),
		strconv.Itoa(e.status),
		strconv.FormatInt(e.bytes, 10),
		strconv.FormatInt(e.took.Milliseconds(), 10),
		field(e.jobID),
		field(e.contentType),
		field(e.userAgent),
	}
	return strings.Join(parts, " ")
}

// field sanitizes and escapes one log value; empty values become "-".
func field(s string) string {
	s = sanitizeLogField(s)
	if s == "" {
		return "-"
	}
	return escapeW3CField(s)
}

// sanitizeLogField strips control characters so a request cannot forge log
// lines or inject terminal escapes. Newlines become spaces; tabs survive.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

// escapeW3CField quotes values containing whitespace or quotes, doubling
// embedded quotes.
func escapeW3CField(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's remote address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
