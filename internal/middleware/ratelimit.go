package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/database"
	"github.com/faiza-ijaz0/jambeautylounge-backend/pkg/clientip"
)

const (
	rateLimitWindow      = 60 * time.Second
	rateLimitMaxRequests = 120
	rateLimitKeyPrefix   = "ratelimit:"
)

// RateLimitMiddleware is a Redis-backed per-IP limiter used outside
// production, where the in-memory limiter chain is not installed. It fails
// open: a Redis hiccup never blocks traffic.
func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()
		key := rateLimitKeyPrefix + clientip.RealClientIP(r)

		count, err := database.RedisClient.Incr(ctx, key).Result()
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			database.RedisClient.Expire(ctx, key, rateLimitWindow)
		}
		if count > rateLimitMaxRequests {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"Too many requests. Please slow down."}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
