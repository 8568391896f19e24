package analytics

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"gateway-service/internal/gateway"
)

// Middleware records one usage event per request that passed the
// admission gateway. Denied requests never get this far; the gateway
// records those itself.
func Middleware(rec *Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := gateway.IdentityFrom(r.Context())
			if !ok || rec == nil {
				next.ServeHTTP(w, r)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			rec.RecordUsage(identity, r.Method, r.URL.Path, ww.Status(),
				true, time.Since(start))
		})
	}
}
