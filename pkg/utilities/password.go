package utilities

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	// GeneratedPasswordLength is the length of passwords issued at staff creation and reset.
	GeneratedPasswordLength = 12
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72

	letters  = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
	digits   = "23456789"
	alphabet = letters + digits
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// GeneratePassword returns a random password of n characters containing at
// least one letter and one digit. Ambiguous glyphs (0, O, 1, l, I) are excluded.
func GeneratePassword(n int) (string, error) {
	if n < 2 {
		return "", errors.New("password length must be at least 2")
	}
	buf := make([]byte, n)
	for i := range buf {
		c, err := pick(alphabet)
		if err != nil {
			return "", err
		}
		buf[i] = c
	}
	// force one letter and one digit at random positions
	li, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return "", err
	}
	di := li.Int64()
	for di == li.Int64() {
		r, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
		if err != nil {
			return "", err
		}
		di = r.Int64()
	}
	if buf[li.Int64()], err = pick(letters); err != nil {
		return "", err
	}
	if buf[di], err = pick(digits); err != nil {
		return "", err
	}
	return string(buf), nil
}

func pick(set string) (byte, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return set[i.Int64()], nil
}
