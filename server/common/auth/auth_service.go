package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleClient    = "client"
	RoleDeveloper = "developer"
)

var ErrInvalidPasscode = errors.New("invalid passcode")

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	secret         []byte
	ttl            time.Duration
	passcodeHashes map[string][]byte
}

func NewService(secret string, ttlMinutes int) *Service {
	return &Service{
		secret:         []byte(secret),
		ttl:            time.Duration(ttlMinutes) * time.Minute,
		passcodeHashes: map[string][]byte{},
	}
}

// WithPasscodeHash registers the bcrypt hash a role must present at login.
// Roles without a hash cannot log in.
func (s *Service) WithPasscodeHash(role, hash string) *Service {
	hash = strings.TrimSpace(hash)
	if hash != "" {
		s.passcodeHashes[role] = []byte(hash)
	}
	return s
}

func (s *Service) Login(role, passcode string) (string, error) {
	hash, ok := s.passcodeHashes[role]
	if !ok {
		return "", ErrInvalidPasscode
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(passcode)); err != nil {
		return "", ErrInvalidPasscode
	}
	return s.GenerateToken(role)
}

func (s *Service) GenerateToken(role string) (string, error) {
	if role != RoleClient && role != RoleDeveloper {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   role,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (s *Service) ParseRole(token string) (string, error) {
	claims, err := s.ParseToken(token)
	if err != nil {
		return "", err
	}
	if claims.Role != RoleClient && claims.Role != RoleDeveloper {
		return "", fmt.Errorf("invalid role claim")
	}
	return claims.Role, nil
}
