// Package identity validates access tokens issued by the external auth
// service and turns them into an acting user bound to one organization.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// Config contains token settings.
type Config struct {
	SecretKey           string
	Issuer              string
	AccessTokenDuration time.Duration
}

// Claims are the access token claims. Subject holds the user id.
type Claims struct {
	OrganizationID string      `json:"org"`
	Role           domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates and issues HS256 access tokens.
type Authenticator struct {
	config Config
	now    func() time.Time
}

// NewAuthenticator creates a new token authenticator.
func NewAuthenticator(config Config) *Authenticator {
	return &Authenticator{config: config, now: time.Now}
}

// Issue signs a token for the given actor. The console normally gets tokens
// from the auth service; this is used by the CLI and tests.
func (a *Authenticator) Issue(actor domain.Actor) (string, error) {
	if actor.UserID == "" || actor.OrganizationID == "" || !actor.Role.IsValid() {
		return "", fmt.Errorf("%w: incomplete actor", ErrInvalidToken)
	}

	now := a.now()
	claims := Claims{
		OrganizationID: actor.OrganizationID,
		Role:           actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    a.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses a token and returns the actor it was issued for.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (*domain.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.config.Issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return []byte(a.config.SecretKey), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" || claims.OrganizationID == "" {
		return nil, fmt.Errorf("%w: missing subject or organization", ErrInvalidToken)
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return &domain.Actor{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
	}, nil
}
