package api

import (
	"net/http"
	"strings"

	"wix-store-migrator/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// isPublicPath reports whether a route is served without an operator
func isPublicPath(path string) bool {
	return path == "/health" ||
		path == "/metrics" ||
		strings.HasPrefix(path, "/swagger/")
}

// OperatorMiddleware resolves the operator id once per request. With a secret
// the operator is the `sub` claim of an HS256 bearer token; without one the
// X-Operator-ID header is trusted.
func OperatorMiddleware(jwtSecret string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			var operatorID string
			if jwtSecret != "" {
				raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
				if !ok || raw == "" {
					writeError(w, http.StatusUnauthorized, "bearer token is required")
					return
				}
				sub, err := operatorFromToken(raw, jwtSecret)
				if err != nil {
					logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected operator token")
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				operatorID = sub
			} else {
				operatorID = strings.TrimSpace(r.Header.Get("X-Operator-ID"))
				if operatorID == "" {
					writeError(w, http.StatusBadRequest, "X-Operator-ID header is required")
					return
				}
			}

			ctx := domain.WithOperatorID(r.Context(), operatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func operatorFromToken(raw, secret string) (string, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return sub, nil
}
