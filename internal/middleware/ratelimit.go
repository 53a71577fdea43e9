package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"backbox/internal/domain"
)

type window struct {
	hits []time.Time
}

// prune drops hits that fell out of the rolling interval and returns the
// remaining count.
func (b *window) prune(now time.Time, per time.Duration) int {
	cutoff := now.Add(-per)
	kept := b.hits[:0]
	for _, hit := range b.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	b.hits = kept
	return len(kept)
}

// RateLimit admits at most limit mutating calls per rolling window for each
// account, falling back to the client IP when no account is present. It only
// gates admission; state transitions are guarded separately by the store.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	var mu sync.Mutex
	windows := make(map[string]*window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := AccountIDFromContext(r.Context())
			if key == "" {
				key = clientIPForRateLimit(r)
			}
			now := time.Now()
			mu.Lock()
			b, ok := windows[key]
			if !ok {
				b = &window{}
				windows[key] = b
			}
			if b.prune(now, per) >= limit {
				mu.Unlock()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "3600")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(domain.NewAPIError(
					domain.CodeRateLimit,
					"too many requests",
					map[string]any{"perHourMax": limit},
				))
				return
			}
			b.hits = append(b.hits, now)
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
