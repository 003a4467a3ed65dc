package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
)

// The auth gateway in front of this service authenticates the user and
// forwards the identity in these headers.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type callerKey struct{}

// Identity rejects requests without a usable caller identity.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := domain.Caller{
			ID:   r.Header.Get(HeaderUserID),
			Role: domain.Role(r.Header.Get(HeaderUserRole)),
		}
		if c.ID == "" || !c.Role.Valid() {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated", Message: "missing or invalid caller identity"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, c)))
	})
}

func callerFrom(ctx context.Context) domain.Caller {
	c, _ := ctx.Value(callerKey{}).(domain.Caller)
	return c
}
