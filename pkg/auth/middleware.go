package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrMissingAuthorization = errors.New("missing authorization header")
	ErrInvalidAuthFormat    = errors.New("authorization header must be a bearer token")
)

// Middleware rejects requests without a valid bearer token.
type Middleware struct {
	verifier      TokenVerifier
	requiredScope string
	logger        *zap.Logger
}

// NewMiddleware creates the guard. An empty requiredScope accepts any valid token.
func NewMiddleware(verifier TokenVerifier, requiredScope string, logger *zap.Logger) *Middleware {
	return &Middleware{
		verifier:      verifier,
		requiredScope: requiredScope,
		logger:        logger.Named("auth"),
	}
}

// RequireAuth verifies the bearer token and stores its claims in the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			m.logger.Debug("Rejected request without token",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			m.unauthorized(w, "Authentication required")
			return
		}

		claims, err := m.verifier.ValidateToken(r.Context(), token)
		if err != nil {
			m.logger.Debug("JWT validation failed",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			m.unauthorized(w, "Authentication required")
			return
		}

		if m.requiredScope != "" && !claims.HasScope(m.requiredScope) {
			m.logger.Warn("Token lacks required scope",
				zap.String("subject", claims.Subject),
				zap.String("scope", m.requiredScope),
				zap.String("path", r.URL.Path))
			writeError(w, http.StatusForbidden, "forbidden", "Token lacks the "+m.requiredScope+" scope")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthorization
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrInvalidAuthFormat
	}
	return strings.TrimSpace(token), nil
}

func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="intentgate"`)
	writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
