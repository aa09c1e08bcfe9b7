package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/transport/http/httputil"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

// Verifier turns an access token into the caller's identity.
type Verifier interface {
	Verify(token string) (domain.User, error)
}

// Auth requires a valid "Authorization: Bearer <jwt>" header.
func Auth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := Bearer(r)
			if !ok {
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "missing bearer token", nil)
				return
			}
			user, err := v.Verify(token)
			if err != nil {
				httputil.Error(r.Context(), w, http.StatusUnauthorized, "unauthenticated", err.Error(), nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func Bearer(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func WithUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

func UserFromCtx(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(domain.User)
	return u, ok && u.ID != ""
}
