// Package identity derives the current user from the configured access token
// and attaches that token to outgoing calls.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
)

var (
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrMissingSubject = errors.New("token has no subject")
)

// FromToken returns the identity named by the token's sub claim. The token
// is not verified: the message service does that on every call. An empty
// token means a guest and yields an empty identity.
func FromToken(token string) (inbox.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", nil
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return inbox.Identity(claims.Subject), nil
}

// Sign issues an HS256 token for subject. A zero ttl means no expiry; a
// negative ttl yields a token that has already expired.
func Sign(secret []byte, subject string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks an HS256 token against secret and returns its subject.
func Verify(token string, secret []byte) (inbox.Identity, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return inbox.Identity(claims.Subject), nil
}

// Bearer is a per-RPC credential carrying an access token. An empty token
// sends no authorization header, which the service treats as a guest.
type Bearer string

func (b Bearer) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	if b == "" {
		return nil, nil
	}
	return map[string]string{"authorization": "Bearer " + string(b)}, nil
}

// RequireTransportSecurity is false: the service may sit behind a local
// plaintext listener.
func (Bearer) RequireTransportSecurity() bool { return false }

// TokenFromIncoming extracts the bearer token from server-side metadata.
func TokenFromIncoming(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrMissingToken
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrMissingToken
	}
	scheme, token, found := strings.Cut(values[0], " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
