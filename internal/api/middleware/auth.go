// auth.go holds the Bearer token middleware and role checks.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/librarium/internal/api/errors"
	"github.com/bigkaa/librarium/internal/auth"
	"github.com/bigkaa/librarium/internal/domain/model"
	"github.com/bigkaa/librarium/internal/domain/rbac"
)

type contextKey string

// ContextKeyPrincipal holds the authenticated *auth.Principal.
const ContextKeyPrincipal contextKey = "principal"

// TokenVerifier validates an access token. *auth.Issuer implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Principal, error)
}

// JWTAuth authenticates requests with a Bearer access token.
type JWTAuth struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewJWTAuth creates the middleware.
func NewJWTAuth(verifier TokenVerifier, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware rejects requests without a valid token and stores the
// principal in the request context.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Missing Authorization header")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				apierrors.Unauthorized(w, "Malformed Authorization header: expected Bearer <token>")
				return
			}
			token = strings.TrimSpace(token)
			if token == "" {
				apierrors.Unauthorized(w, "Empty Bearer token")
				return
			}

			principal, err := j.verifier.Verify(r.Context(), token)
			if err != nil {
				j.logger.Debug("Token rejected",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole admits principals whose role includes need.
// Must run after JWTAuth.Middleware.
func RequireRole(need model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				apierrors.Unauthorized(w, "Not authenticated")
				return
			}
			if !rbac.Satisfies(p.Role, need) {
				apierrors.Forbidden(w, fmt.Sprintf("Insufficient privileges: role %s required", need))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// PrincipalFromContext returns the authenticated caller or nil.
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(ContextKeyPrincipal).(*auth.Principal)
	return p
}
