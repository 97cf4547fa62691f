package middleware

import (
	"context"
	"net/http"

	"github.com/LuG3Zz/Blog/pkg/netutil"
)

type contextKey string

const reqMetaKey = contextKey("r-metadata")

// RequestMetadata accumulates what the middleware chain learns about a
// connection attempt before the websocket upgrade.
type RequestMetadata struct {
	// Addr is the raw client address (no port); Origin is its
	// normalized form used as the presence grouping key.
	Addr   string
	Origin string
	// UserID, Name and IsAdmin are filled by the auth middleware; all
	// stay zero for anonymous visitors.
	UserID  string
	Name    string
	IsAdmin bool
}

func ReqMetadataFrom(ctx context.Context) (*RequestMetadata, bool) {
	reqMeta, ok := ctx.Value(reqMetaKey).(*RequestMetadata)
	return reqMeta, ok
}

// RequestMetadataMiddleware creates and injects the RequestMetadata
// struct into the request.
// **This should be the first middleware in the chain.**
func RequestMetadataMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := netutil.ClientAddr(r)
			reqMeta := &RequestMetadata{
				Addr:   addr,
				Origin: netutil.Normalize(addr),
			}
			ctx := context.WithValue(r.Context(), reqMetaKey, reqMeta)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
