package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/yamdb/internal/apperror"
	"github.com/sakif/yamdb/internal/model"
	"github.com/sakif/yamdb/internal/policy"
)

// contextKey is an unexported type used for context keys in this package, so
// no other package can read or shadow the principal.
type contextKey string

const principalKey contextKey = "principal"

// UserLoader resolves the subject of a token to the stored account.
// repository.UserRepository satisfies it.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// PrincipalFor builds the policy principal of a stored user.
func PrincipalFor(u *model.User) policy.Principal {
	return policy.Principal{
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		Superuser: u.IsSuperuser,
	}
}

// Authenticate reads "Authorization: Bearer <jwt>", validates the token and
// loads its user, then stores the resulting principal in the request context.
//
// A request without the header continues as policy.Anonymous; whether that
// is enough is decided later by the route's policy. A header that is present
// but malformed, a bad token, and a token whose user no longer exists all
// stop the chain with 401.
func Authenticate(tokens *TokenService, users UserLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), policy.Anonymous)))
				return
			}

			raw, ok := bearerToken(header)
			if !ok {
				unauthorized(w, "authorization header must be: Bearer <token>")
				return
			}

			userID, err := tokens.Validate(raw)
			if err != nil {
				logger.Debug("rejected access token", slog.String("error", err.Error()))
				unauthorized(w, "token is invalid or expired")
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					unauthorized(w, "user not found")
					return
				}
				logger.Error("loading token subject", slog.String("user_id", userID), slog.String("error", err.Error()))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal_error","message":"An internal error occurred"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), PrincipalFor(user))))
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p policy.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by Authenticate, or
// policy.Anonymous when there is none.
func PrincipalFromContext(ctx context.Context) policy.Principal {
	p, ok := ctx.Value(principalKey).(policy.Principal)
	if !ok {
		return policy.Anonymous
	}
	return p
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}
