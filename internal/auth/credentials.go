package auth

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown user and for a wrong
// password alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Credentials is the fixed set of users allowed to log in, keyed by username
// with bcrypt password hashes.
type Credentials struct {
	hashes map[string][]byte
}

// NewCredentials builds a Credentials from username -> bcrypt hash.
func NewCredentials(hashes map[string]string) *Credentials {
	c := &Credentials{hashes: make(map[string][]byte, len(hashes))}
	for user, hash := range hashes {
		c.hashes[user] = []byte(hash)
	}
	return c
}

// Usernames returns the configured users, sorted.
func (c *Credentials) Usernames() []string {
	out := make([]string, 0, len(c.hashes))
	for u := range c.hashes {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// Check verifies a username/password pair.
func (c *Credentials) Check(username, password string) error {
	hash, ok := c.hashes[username]
	if !ok {
		// Compare anyway so unknown users take as long as known ones.
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unused"), bcrypt.DefaultCost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns the bcrypt hash stored in the credential config.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

// GeneratePassword returns a random password of length n.
func GeneratePassword(n int) (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[idx.Int64()]
	}
	return string(out), nil
}
