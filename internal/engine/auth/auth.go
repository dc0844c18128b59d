package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"robline/internal/domain"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// ForbiddenRoleError rejects a role that cannot act as a caller.
type ForbiddenRoleError struct {
	Role string
}

func (e ForbiddenRoleError) Error() string {
	return fmt.Sprintf("role %q cannot act as a caller", e.Role)
}

// ResolveRole maps a claimed role string onto a caller role. System is
// reserved for automatic transitions.
func ResolveRole(raw string) (domain.Role, error) {
	role, err := domain.ParseRole(raw)
	if err != nil || role == domain.RoleSystem {
		return "", ForbiddenRoleError{Role: raw}
	}
	return role, nil
}

// Identity resolves into an actor, falling back to the role label for an
// empty department.
func Identity(name, role, department string) (domain.Actor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Actor{}, errors.New("name required")
	}
	r, err := ResolveRole(role)
	if err != nil {
		return domain.Actor{}, err
	}
	department = strings.TrimSpace(department)
	if department == "" {
		department = string(r)
	}
	return domain.Actor{Name: name, Role: r, Department: department}, nil
}

func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// APIKey binds a hashed key to a fixed identity.
type APIKey struct {
	Name       string
	Role       string
	Department string
	Hash       string
}

type Claims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

// Resolver turns presented credentials into an actor.
type Resolver struct {
	JWTSecret string
	APIKeys   []APIKey
	Now       func() time.Time
}

func (r Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Resolver) FromAPIKey(key string) (domain.Actor, error) {
	if strings.TrimSpace(key) == "" {
		return domain.Actor{}, ErrInvalidCredentials
	}
	hash := HashAPIKey(key)
	for _, k := range r.APIKeys {
		if subtle.ConstantTimeCompare([]byte(strings.ToLower(k.Hash)), []byte(hash)) == 1 {
			return Identity(k.Name, k.Role, k.Department)
		}
	}
	return domain.Actor{}, ErrInvalidCredentials
}

func (r Resolver) FromToken(token string) (domain.Actor, error) {
	if strings.TrimSpace(r.JWTSecret) == "" {
		return domain.Actor{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(r.JWTSecret), nil
	})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return domain.Actor{}, ErrInvalidCredentials
	}
	return Identity(claims.Subject, claims.Role, claims.Department)
}

// IssueToken signs an HS256 token for actor valid for ttl.
func IssueToken(secret string, actor domain.Actor, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret required")
	}
	if _, err := Identity(actor.Name, string(actor.Role), actor.Department); err != nil {
		return "", err
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "robline",
		},
		Role:       string(actor.Role),
		Department: actor.Department,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
