// internal/httpserver/auth.go
//
// Operator credentials.
// Operator routes (force end, recovery, loop stop, on-demand tick) require an
// HS256 JWT signed with OPERATOR_SECRET and carrying subject "operator".
// Tokens are minted offline with the `token` command.

package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const operatorSubject = "operator"

// ErrNoOperatorSecret is returned when signing without a configured secret.
var ErrNoOperatorSecret = errors.New("operator secret is not configured")

// SignOperatorToken mints an operator token valid for ttl.
func SignOperatorToken(secret string, ttl time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, ErrNoOperatorSecret
	}
	now := time.Now()
	exp := now.Add(ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   operatorSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	ss, err := t.SignedString([]byte(secret))
	return ss, exp, err
}

// parseOperatorToken validates tok against secret.
func parseOperatorToken(secret []byte, tok string) error {
	claims := &jwt.RegisteredClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return err
	}
	if !t.Valid || claims.Subject != operatorSubject {
		return errors.New("not an operator token")
	}
	return nil
}

// bearer extracts the token from an Authorization: Bearer header.
func bearer(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return ""
}

// requireOperator rejects requests without a valid operator token. With no
// secret configured every request is rejected.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearer(r)
		if len(s.operatorKey) == 0 || tok == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}
		if err := parseOperatorToken(s.operatorKey, tok); err != nil {
			s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("operator token rejected")
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
