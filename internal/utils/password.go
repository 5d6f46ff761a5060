package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordLength is returned for empty passwords and for passwords
// bcrypt would silently truncate.
var ErrPasswordLength = errors.New("password must be 1 to 72 bytes")

// absentHash is compared against when a login names no account, so
// unknown and known emails cost the same bcrypt work.
var absentHash, _ = bcrypt.GenerateFromPassword([]byte("no such staff account"), bcrypt.MinCost)

// HashPassword returns the bcrypt hash of a staff password at cost.
func HashPassword(plain string, cost int) (string, error) {
	if len(plain) == 0 || len(plain) > 72 {
		return "", ErrPasswordLength
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches hash.  An empty hash
// still runs a comparison and always fails.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(absentHash, []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
