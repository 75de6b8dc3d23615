package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrUnauthorized = errors.New("unauthorized")

// Authorizer decides whether a caller-presented credential may perform a destructive operation.
type Authorizer interface {
	Authorize(ctx context.Context, credential string) error
}

type PasswordAuthorizer struct {
	hash []byte
}

// NewPasswordAuthorizer accepts a bcrypt hash of the shared delete password.
func NewPasswordAuthorizer(hash string) (*PasswordAuthorizer, error) {
	hash = strings.TrimSpace(hash)
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid bcrypt hash: %w", err)
	}
	return &PasswordAuthorizer{hash: []byte(hash)}, nil
}

// NewPasswordAuthorizerFromPlain hashes password once so the plaintext is not kept in memory.
func NewPasswordAuthorizerFromPlain(password string) (*PasswordAuthorizer, error) {
	if password == "" {
		return nil, errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &PasswordAuthorizer{hash: hash}, nil
}

func (a *PasswordAuthorizer) Authorize(ctx context.Context, credential string) error {
	if credential == "" {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(credential)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type JWTAuthorizer struct {
	secret []byte
	roles  map[string]struct{}
}

func NewJWTAuthorizer(secret string, roles []string) (*JWTAuthorizer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			allowed[r] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return nil, errors.New("at least one jwt role is required")
	}
	return &JWTAuthorizer{secret: []byte(secret), roles: allowed}, nil
}

func (a *JWTAuthorizer) Authorize(ctx context.Context, credential string) error {
	if credential == "" {
		return ErrUnauthorized
	}
	claims, err := a.parse(credential)
	if err != nil {
		return ErrUnauthorized
	}
	if _, ok := a.roles[claims.Role]; !ok {
		return ErrUnauthorized
	}
	return nil
}

func (a *JWTAuthorizer) parse(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

func IssueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// BearerToken extracts the token from an Authorization value. The scheme name is
// matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
