package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	apiContext "ontohub/internal/api/context"
	"ontohub/internal/pkg/errors"
	"ontohub/internal/platform/auth"
)

const (
	ScopeWebhooksWrite   = "webhooks:write"
	ScopeOntologiesWrite = "ontologies:write"
)

type AuthMiddleware struct {
	tokenSvc *auth.TokenService
}

// NewAuthMiddleware guards the management API with operator tokens issued
// by the same token service. A service without a secret turns the guard off.
func NewAuthMiddleware(tokenSvc *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokenSvc: tokenSvc}
}

// Handle requires a valid operator bearer token. Without a configured
// secret every request passes.
func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	if !m.tokenSvc.Enabled() {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing authorization header", nil)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" || strings.ContainsRune(token, ' ') {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid authorization header format", nil)
			return
		}

		claims, err := m.tokenSvc.ValidateToken(token)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected operator token")
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
		next(w, r.WithContext(ctx))
	}
}

// Require limits a route to tokens granting scope. Tokens issued without
// scopes keep full access, as do requests when auth is off.
func (m *AuthMiddleware) Require(scope string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if !m.tokenSvc.Enabled() {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			claims, _ := r.Context().Value(apiContext.Claims).(*auth.Claims)
			if claims != nil && len(claims.Scopes) > 0 && !slices.Contains(claims.Scopes, scope) {
				log.Warn().Str("operator", claims.Operator).Str("scope", scope).Str("path", r.URL.Path).Msg("Operator token lacks scope")
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Token does not grant "+scope, nil)
				return
			}
			next(w, r)
		}
	}
}
