// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/ManuGH/launchpad/internal/log"
)

// AccessLog writes one structured line per request. Probe endpoints log at
// debug level.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)

		logger := log.WithComponentFromContext(r.Context(), "api")
		ev := logger.Info()
		if !shouldTrace(r) {
			ev = logger.Debug()
		}
		traceID, _ := ExtractTraceContext(r)
		ev.Str(log.FieldEvent, "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int(log.FieldStatus, sw.statusCode).
			Int("bytes", sw.bytes).
			Int64(log.FieldLatencyMS, time.Since(start).Milliseconds()).
			Str("trace_id", traceID).
			Msg("request handled")
	})
}
