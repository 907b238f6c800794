// Package auth authenticates the calling service on the verification routes.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	jwttoken "stampgate/internal/jwt_token"
	dErrors "stampgate/pkg/domain-errors"
	"stampgate/pkg/platform/httputil"
	"stampgate/pkg/platform/middleware/request"
)

// JWTValidator defines the interface for validating service tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*jwttoken.ServiceClaims, error)
}

type callerKey struct{}

// GetCaller returns the authenticated service subject, or "" when the route
// is unauthenticated.
func GetCaller(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}

// RequireServiceToken returns middleware that accepts only bearer tokens
// carrying scope. A nil validator disables the check.
func RequireServiceToken(validator JWTValidator, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if validator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			if !claims.HasScope(scope) {
				logger.WarnContext(ctx, "unauthorized access - missing scope",
					"subject", claims.Subject,
					"scope", scope,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "token lacks scope "+scope))
				return
			}

			ctx = context.WithValue(ctx, callerKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
