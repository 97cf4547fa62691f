package middleware

import (
	"log/slog"
	"net/http"

	"github.com/LuG3Zz/Blog/pkg/config"
)

type UserConnectionCounter func(userID string) int
type OriginConnectionCounter func(origin string) int
type UserConnectionCycler func(userID string)

// NewConnectionLimiter caps live connections. Identified users are
// limited per user with the configured mode ("reject" or "cycle", which
// closes the oldest connection to make room); anonymous visitors are
// limited per origin and always rejected at the cap. A limit of zero
// disables the corresponding check.
//
// Must run after the auth middleware so the user identity is known.
func NewConnectionLimiter(
	logger *slog.Logger,
	userCounter UserConnectionCounter,
	originCounter OriginConnectionCounter,
	cycler UserConnectionCycler,
	cfg config.ConnectionLimitConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Connection limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if reqMeta.UserID == "" {
				if cfg.MaxPerOrigin > 0 && originCounter(reqMeta.Origin) >= cfg.MaxPerOrigin {
					logger.Warn("Origin connection limit reached", slog.String("origin", reqMeta.Origin))
					http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if cfg.MaxPerUser <= 0 || userCounter(reqMeta.UserID) < cfg.MaxPerUser {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("User connection limit reached", slog.String("userID", reqMeta.UserID))
			switch cfg.Mode {
			case "cycle":
				cycler(reqMeta.UserID)
				next.ServeHTTP(w, r)
			case "reject":
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
			default:
				logger.Error("Invalid connection limit mode configured", slog.String("mode", cfg.Mode))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		})
	}
}
