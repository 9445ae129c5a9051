// Package token builds signed room-join credentials.
//
// A credential is an HS256 JWT carrying the participant identity, display
// name and a grants claim scoping it to one room. The signing secret is used
// only at signing time and never appears in the emitted token.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingCredentials = errors.New("token: signing key id and secret are required")

// Grants is the set of named permissions encoded into a credential.
type Grants struct {
	RoomJoin bool   `json:"room_join"`
	Room     string `json:"room"`
}

type claims struct {
	Name   string `json:"name,omitempty"`
	Grants Grants `json:"grants"`
	jwt.RegisteredClaims
}

// Issue signs a room-join token for the given identity.
// keyID and secret come from process configuration; empty values are a
// configuration error, not a runtime condition.
func Issue(identity, displayName, roomName string, grants Grants, keyID, secret string, ttl time.Duration) (string, error) {
	if keyID == "" || secret == "" {
		return "", ErrMissingCredentials
	}
	if identity == "" {
		return "", errors.New("token: identity must not be empty")
	}
	if roomName == "" {
		return "", errors.New("token: room name must not be empty")
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	grants.Room = roomName

	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name:   displayName,
		Grants: grants,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    keyID,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Claims is the decoded view of an issued token.
type Claims struct {
	Identity    string
	DisplayName string
	Grants      Grants
	KeyID       string
	ExpiresAt   time.Time
}

// Verify parses and validates a token issued by Issue.
func Verify(signed, secret string) (Claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(signed, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return Claims{}, errors.New("token: invalid token")
	}

	out := Claims{
		Identity:    c.Subject,
		DisplayName: c.Name,
		Grants:      c.Grants,
		KeyID:       c.Issuer,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
