// Package principal binds the verified bearer token to the request context.
package principal

import (
	"context"
	"net/http"

	"github.com/brilliant-consulting/consultbook/libs/auth"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
)

type Verifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(model.Principal)
	return p, ok && p.ID != ""
}

// RequireAuth rejects requests without a valid bearer token and stores the
// principal for the handlers.
func RequireAuth(next http.Handler, v Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := v.Verify(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		p := model.Principal{
			ID:    claims.Subject,
			Email: claims.Email,
			Name:  claims.Name,
			Role:  claims.Role,
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func RequireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		if _, ok := allowed[p.Role]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
