package server

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// requireJWT gates a handler behind an HS256 bearer token when a secret is
// configured. The token only authorises use of the node; the caller identity
// the registry acts on is always the transaction signer.
func (s *Server) requireJWT(next http.Handler) http.Handler {
	if s.opts.JWTSecret == "" {
		return next
	}
	secret := []byte(s.opts.JWTSecret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "MissingToken", "bearer token required", nil)
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			s.logger.Warn().Err(err).Str("client", s.clientIP(r)).Msg("invalid JWT")
			writeError(w, http.StatusUnauthorized, "InvalidToken", "invalid bearer token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
