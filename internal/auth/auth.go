// Package auth is the operator-account authenticator for the thin API
// surface in front of the pipeline. Not part of any meeting-domain
// component — the pipeline itself has no concept of "users" — but the API
// needs access control, so this mirrors the teacher's own JWT-plus-bcrypt
// scheme (golang-jwt/jwt/v5, golang.org/x/crypto/bcrypt), generalized from
// a single-tenant "instance owner" login to the same User/APIKey pair kept
// in internal/models.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"meetcorrect/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid username or password")
	ErrInvalidToken       = errors.New("auth: invalid or expired token")
)

const (
	shortTokenTTL = 24 * time.Hour
	longTokenTTL  = 365 * 24 * time.Hour
)

// Claims is the JWT payload issued for an authenticated operator.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service issues and validates operator JWTs.
type Service struct {
	secret []byte
}

// New builds a Service around the configured JWT signing secret.
func New(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// GenerateToken issues a 24h token for user.
func (s *Service) GenerateToken(user *models.User) (string, error) {
	return s.generate(user, shortTokenTTL)
}

// GenerateLongLivedToken issues a 1-year token, used for CLI/automation
// credentials the way the teacher issues long-lived CLI tokens.
func (s *Service) GenerateLongLivedToken(user *models.User) (string, error) {
	return s.generate(user, longTokenTTL)
}

func (s *Service) generate(user *models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a JWT, returning its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword compares a plaintext password against its bcrypt hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
