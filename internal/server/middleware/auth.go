package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AppClaims defines our custom JWT claims structure. The subject is the
// user ID; role distinguishes administrators.
type AppClaims struct {
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// NewOptionalAuthMiddleware verifies a bearer token when one is present
// and degrades to an anonymous visitor otherwise. An invalid token is
// logged and treated like no token at all: the presence layer exists
// for anonymous visitors too, so authentication failure must not block
// the connection.
//
// The token travels in the "token" query parameter (websocket clients
// cannot set headers from the browser) with an optional "bearer "
// prefix, falling back to the Authorization header.
func NewOptionalAuthMiddleware(logger *slog.Logger, jwtSecret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				// metadata middleware missing from the chain
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			tokenString := bearerToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parseClaims(tokenString, jwtSecret)
			if err != nil {
				logger.Warn("Token verification failed, continuing as anonymous",
					slog.String("ip", reqMeta.Addr),
					slog.Any("error", err),
				)
				next.ServeHTTP(w, r)
				return
			}

			reqMeta.UserID = claims.Subject
			reqMeta.Name = claims.Name
			reqMeta.IsAdmin = claims.Role == "admin"
			next.ServeHTTP(w, r)
		})
	}
}

// NewAdminAuthMiddleware guards the operator REST surface: a valid
// admin bearer token is required, everything else is rejected.
func NewAdminAuthMiddleware(logger *slog.Logger, jwtSecret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			tokenString := bearerToken(r)
			if tokenString == "" {
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}

			claims, err := parseClaims(tokenString, jwtSecret)
			if err != nil {
				logger.Warn("Invalid JWT token presented",
					slog.String("ip", reqMeta.Addr),
					slog.Any("error", err),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if claims.Role != "admin" {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			reqMeta.UserID = claims.Subject
			reqMeta.Name = claims.Name
			reqMeta.IsAdmin = true
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	lower := strings.ToLower(token)
	if strings.HasPrefix(lower, "bearer ") || strings.HasPrefix(lower, "bearer+") {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

// parseClaims validates the token with HMAC signing and requires a
// subject claim.
func parseClaims(tokenString, jwtSecret string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = jwt.ErrTokenUnverifiable
		}
		return nil, err
	}
	claims, ok := token.Claims.(*AppClaims)
	if !ok || claims.Subject == "" {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}
	return claims, nil
}
