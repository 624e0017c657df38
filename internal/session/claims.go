package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Claims is the subset of access-token claims the client reports on.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token has passed its expiry. Tokens without an
// exp claim never expire from the client's point of view.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ParseClaims reads claims from an access token without verifying its
// signature. The client holds no verification key; the server remains the
// authority and answers 401 for a bad token.
func ParseClaims(token string) (*Claims, error) {
	var registered jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &registered); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	claims := &Claims{Subject: registered.Subject}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

// TokenSource returns an oauth2.TokenSource reading the current access token
// from the store on every call.
func (s *Store) TokenSource() oauth2.TokenSource {
	return storeTokenSource{store: s}
}

type storeTokenSource struct {
	store *Store
}

func (ts storeTokenSource) Token() (*oauth2.Token, error) {
	access := ts.store.AccessToken()
	if access == "" {
		return nil, ErrNoAccessToken
	}

	token := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if claims, err := ParseClaims(access); err == nil {
		token.Expiry = claims.ExpiresAt
	}
	return token, nil
}
