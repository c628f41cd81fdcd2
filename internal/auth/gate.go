package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/park285/Cheese-Arena/pkg/arenadto"
)

// UserDirectory answers whether a user id still exists.
type UserDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Gate resolves the identity of a websocket handshake before the connection is accepted.
type Gate struct {
	verifier *Verifier
	users    UserDirectory
}

// NewGate returns a gate. users may be nil, in which case any validly signed subject is accepted.
func NewGate(v *Verifier, users UserDirectory) *Gate {
	return &Gate{verifier: v, users: users}
}

func (g *Gate) Authenticate(ctx context.Context, r *http.Request) (arenadto.PlayerProfile, error) {
	claims, err := g.verifier.Verify(TokenFromRequest(r))
	if err != nil {
		return arenadto.PlayerProfile{}, err
	}
	id := int64(claims.Sub)
	if g.users != nil {
		ok, err := g.users.Exists(ctx, id)
		if err != nil {
			return arenadto.PlayerProfile{}, fmt.Errorf("user lookup: %w", err)
		}
		if !ok {
			return arenadto.PlayerProfile{}, fmt.Errorf("%w: unknown user %d", ErrUnauthorized, id)
		}
	}
	return arenadto.PlayerProfile{ID: id, Email: claims.Email, Role: claims.Role}, nil
}

// TokenFromRequest reads "Authorization: Bearer <jwt>" and falls back to the access_token query
// parameter, which browsers need because they cannot set headers on websocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
