// Package auth guards the HTTP trigger surface with API tokens.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Config is the [server.auth] section. Each token is either the plain
// secret or its bcrypt hash as printed by HashToken.
type Config struct {
	Tokens     []string `toml:"tokens" mapstructure:"tokens"`
	BcryptCost int      `toml:"bcrypt_cost" mapstructure:"bcrypt_cost"`
}

// Authenticator checks presented tokens. A zero-token Authenticator lets
// every request through.
type Authenticator struct {
	plain  [][]byte
	hashes [][]byte
}

func New(c Config) (*Authenticator, error) {
	if err := checkCost(c.BcryptCost); err != nil {
		return nil, err
	}
	a := &Authenticator{}
	for i, t := range c.Tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("auth token %d is empty", i)
		}
		if isBcrypt(t) {
			if _, err := bcrypt.Cost([]byte(t)); err != nil {
				return nil, fmt.Errorf("auth token %d: %w", i, err)
			}
			a.hashes = append(a.hashes, []byte(t))
			continue
		}
		a.plain = append(a.plain, []byte(t))
	}
	return a, nil
}

func checkCost(cost int) error {
	if cost != 0 && (cost < bcrypt.MinCost || cost > bcrypt.MaxCost) {
		return fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func (a *Authenticator) Enabled() bool { return len(a.plain)+len(a.hashes) > 0 }

// Check reports whether token matches a configured token.
func (a *Authenticator) Check(token string) error {
	if token == "" {
		return ErrInvalidCredentials
	}
	b := []byte(token)
	for _, p := range a.plain {
		if subtle.ConstantTimeCompare(p, b) == 1 {
			return nil
		}
	}
	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, b) == nil {
			return nil
		}
	}
	return ErrInvalidCredentials
}

// HashToken returns the bcrypt hash to put in the config instead of the
// token itself. cost 0 means bcrypt.DefaultCost.
func HashToken(token string, cost int) (string, error) {
	if err := checkCost(cost); err != nil {
		return "", err
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// GenerateToken returns a random 256-bit token, hex encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
