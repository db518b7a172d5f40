package httpx

import (
	"context"
	"net/http"
	"strings"

	"negotiations/internal/domain"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type userKey struct{}

// RequireUser builds the caller from the identity headers set by the gateway and
// rejects the request with 401 when they are missing or malformed.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		role, err := domain.ParseRole(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
		if id == "" || err != nil {
			WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		user, err := domain.NewUser(id, role)
		if err != nil {
			WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func WithUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func UserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	return u, ok
}
