package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrMismatchedPassword is returned by Hasher.Verify for a wrong password.
var ErrMismatchedPassword = errors.New("auth: password does not match")

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

// NewHasher returns the hasher selected by cfg.
func NewHasher(cfg PasswordConfig) Hasher {
	cfg.ApplyDefaults()
	if cfg.Algorithm == "argon2id" {
		return &Argon2Hasher{Time: cfg.Argon2Time, Memory: cfg.Argon2Memory, Threads: cfg.Argon2Threads}
	}
	return BcryptHasher{Cost: cfg.BcryptCost}
}

// BcryptHasher hashes with bcrypt. A zero Cost uses bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("auth: bcrypt: %w", err)
	}
	return string(hash), nil
}

func (h BcryptHasher) Verify(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatchedPassword
	}
	return err
}

// Argon2Hasher hashes with argon2id into the PHC string format.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

const argon2KeyLen, argon2SaltLen = 32, 16

func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: argon2 salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.Time, h.Memory, h.Threads, argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func (h *Argon2Hasher) Verify(password, encoded string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return errors.New("auth: not an argon2id hash")
	}
	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return fmt.Errorf("auth: argon2id parameters: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("auth: argon2id salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("auth: argon2id key: %w", err)
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrMismatchedPassword
	}
	return nil
}

// UserLookup finds a principal and its password hash by username.
type UserLookup[P any] func(ctx context.Context, username string) (principal P, hash string, found bool, err error)

// PasswordAuthenticator verifies basic credentials against hashes returned
// by lookup.
func PasswordAuthenticator[P any](lookup UserLookup[P], hasher Hasher) Authenticator[BasicCredentials, P] {
	return AuthenticatorFunc[BasicCredentials, P](func(ctx context.Context, creds BasicCredentials) (P, bool, error) {
		var zero P
		principal, hash, found, err := lookup(ctx, creds.Username)
		if err != nil || !found {
			return zero, false, err
		}
		switch err := hasher.Verify(creds.Password, hash); {
		case errors.Is(err, ErrMismatchedPassword):
			return zero, false, nil
		case err != nil:
			return zero, false, err
		}
		return principal, true, nil
	})
}
