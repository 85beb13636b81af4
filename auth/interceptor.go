package auth

import (
	"chat-core/domain"
	"chat-core/errors"
	"fmt"
	"net/http"
	"strings"
)

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter since browsers cannot set
// headers on a websocket upgrade.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// Authenticate resolves the identity of an upgrade request.
func (v *TokenVerifier) Authenticate(r *http.Request) (domain.Identity, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: authorization token is missing", errors.ErrInvalidToken)
	}
	identity, err := v.Verify(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}
	return identity, nil
}
