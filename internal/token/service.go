// Package token resolves bearer tokens to caller identities. Production
// callers present Firebase ID tokens; service-to-service callers and local
// development use HS256 tokens minted by this service.
package token

import (
	"context"
	"fmt"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v4"
)

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UID   string
	Email string
}

// Service verifies bearer tokens. The Firebase client is optional; when it
// is nil only locally signed tokens are accepted.
type Service struct {
	signingKey []byte
	issuer     string
	authClient *fbauth.Client
}

// Claims are the JWT claims for locally minted tokens.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// New creates a token service.
func New(signingKey, issuer string, authClient *fbauth.Client) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		authClient: authClient,
	}
}

// Generate mints an HS256 token for the given identity.
func (s *Service) Generate(uid, email string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.signingKey)
}

// Verify resolves a bearer token to an identity. Firebase ID tokens are
// tried first when a Firebase client is configured; otherwise the token
// must be a valid locally signed HS256 token.
func (s *Service) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	if s.authClient != nil {
		if t, err := s.authClient.VerifyIDToken(ctx, tokenString); err == nil {
			email, _ := t.Claims["email"].(string)
			return &Identity{UID: t.UID, Email: email}, nil
		}
	}
	return s.verifyLocal(tokenString)
}

func (s *Service) verifyLocal(tokenString string) (*Identity, error) {
	t, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return &Identity{UID: claims.Subject, Email: claims.Email}, nil
}
