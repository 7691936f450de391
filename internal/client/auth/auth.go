// Package auth keeps the bearer token in the shared metadata area and
// decides whether it is still usable.
//
// Tokens are issued by an external service. JWTs are inspected (without
// signature verification) for their expiry; opaque tokens are accepted as is.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/metadata"
)

// ErrTokenExpired wraps client.ErrNotAuthenticated for expired JWTs.
var ErrTokenExpired = fmt.Errorf("token expired: %w", client.ErrNotAuthenticated)

// Info describes the stored token.
type Info struct {
	Subject   string
	ExpiresAt time.Time // zero for opaque tokens or JWTs without exp
	Opaque    bool
}

// Store implements client.TokenSource on top of the metadata repository.
type Store struct {
	meta metadata.Repository
	now  func() time.Time
}

func NewStore(meta metadata.Repository) *Store {
	return &Store{meta: meta, now: time.Now}
}

func (s *Store) Save(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("empty token")
	}
	return s.meta.Set(ctx, metadata.KeyAuthToken, []byte(token))
}

func (s *Store) Clear(ctx context.Context) error {
	return s.meta.Delete(ctx, metadata.KeyAuthToken)
}

func (s *Store) raw(ctx context.Context) (string, error) {
	v, err := s.meta.Get(ctx, metadata.KeyAuthToken)
	if err != nil {
		return "", err
	}
	if len(v) == 0 {
		return "", client.ErrNotAuthenticated
	}
	return string(v), nil
}

func inspect(token string) Info {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Info{Opaque: true}
	}
	info := Info{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info
}

// Token returns the stored token, or an error wrapping
// client.ErrNotAuthenticated when it is missing or expired.
func (s *Store) Token(ctx context.Context) (string, error) {
	token, err := s.raw(ctx)
	if err != nil {
		return "", err
	}
	info := inspect(token)
	if !info.ExpiresAt.IsZero() && !s.now().Before(info.ExpiresAt) {
		return "", ErrTokenExpired
	}
	return token, nil
}

// Authenticated reports whether Token would succeed.
func (s *Store) Authenticated(ctx context.Context) bool {
	_, err := s.Token(ctx)
	return err == nil
}

func (s *Store) Info(ctx context.Context) (*Info, error) {
	token, err := s.raw(ctx)
	if err != nil {
		return nil, err
	}
	info := inspect(token)
	return &info, nil
}
