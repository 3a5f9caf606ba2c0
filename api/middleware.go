package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stinger-run/stinger/ratelimit"
)

// withRateLimit enforces the global rate limiter (if configured) keyed by
// the caller's API key (falling back to remote address when auth is
// disabled), and sets the headers spec §6.4 documents.
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Limiter == nil {
			next(w, r)
			return
		}
		key := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if key == "" {
			key = r.RemoteAddr
		}

		ctx := r.Context()
		result, err := s.cfg.Limiter.CheckRateLimit(ctx, key, nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		setRateLimitHeaders(w, result)
		if result.Exceeded {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, fmt.Errorf("%s", result.Reason))
			return
		}
		if err := s.cfg.Limiter.RecordRequest(ctx, key); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		next(w, r)
	}
}

// setRateLimitHeaders surfaces the tightest (minute) window's limit and
// remaining count, the window callers hit first in practice.
func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.CheckResult) {
	limit, hasLimit := result.Limit[ratelimit.WindowMinute]
	remaining, hasRemaining := result.Remaining[ratelimit.WindowMinute]
	if !hasLimit || !hasRemaining {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
}

// boundedReader enforces spec §6.4's total-body ceiling before JSON
// decoding even starts.
func boundedReader(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}
