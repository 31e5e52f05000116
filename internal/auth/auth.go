// Package auth issues and verifies the bearer credentials that guard the
// hub and core HTTP endpoints.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/model"
)

const issuerName = "ataa"

// Claims carried by every credential. The subject is the account name.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Account is a configured login. PasswordHash is a bcrypt hash.
type Account struct {
	PasswordHash string     `yaml:"password_hash"`
	Role         model.Role `yaml:"role"`
}

// Token is the login response body.
type Token struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Role      model.Role `json:"role"`
}

// Issuer signs and verifies HS256 credentials.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewIssuer(secret string, ttl time.Duration, c clock.Clock) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("auth: token ttl must be positive, got %s", ttl)
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: c}, nil
}

// Issue signs a credential for subject with the given role.
func (i *Issuer) Issue(subject string, role model.Role) (*Token, error) {
	now := i.clock.Now()
	exp := now.Add(i.ttl)
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token for %s: %w", subject, err)
	}
	return &Token{Token: signed, ExpiresAt: exp.Truncate(time.Second), Role: role}, nil
}

// Verify parses a credential and returns its actor. Expired, tampered and
// foreign tokens are ErrCodeUnauthorized.
func (i *Issuer) Verify(token string) (model.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Actor{}, model.Wrap(model.ErrCodeAuthExpired, err, "token expired")
		}
		return model.Actor{}, model.Wrap(model.ErrCodeUnauthorized, err, "invalid token")
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return model.Actor{}, model.Errorf(model.ErrCodeUnauthorized, "token is missing subject or role")
	}
	return model.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// Authenticator checks account passwords and issues credentials.
type Authenticator struct {
	accounts map[string]Account
	issuer   *Issuer
}

func NewAuthenticator(accounts map[string]Account, issuer *Issuer) *Authenticator {
	return &Authenticator{accounts: accounts, issuer: issuer}
}

// Login returns a credential for a valid username and password. Unknown
// users and wrong passwords get the same error.
func (a *Authenticator) Login(username, password string) (*Token, error) {
	if username == "" || password == "" {
		return nil, model.Validationf("username and password are required")
	}
	acct, ok := a.accounts[username]
	if !ok {
		return nil, model.Errorf(model.ErrCodeUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, model.Errorf(model.ErrCodeUnauthorized, "invalid credentials")
	}
	return a.issuer.Issue(username, acct.Role)
}

// HashPassword returns a bcrypt hash suitable for Account.PasswordHash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Allowed reports whether role is one of roles. An empty list allows any
// valid role.
func Allowed(role model.Role, roles ...model.Role) bool {
	if len(roles) == 0 {
		return role.Valid()
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Expiry reads the exp claim of a credential without verifying its
// signature. Clients use it to decide when to log in again.
func Expiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
