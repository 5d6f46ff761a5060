package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "encoding/hex"  // hex encoding of random bytes
    "time"          // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// VerificationSecretBytes is the amount of randomness in a ticket
// secret: 32 bytes, i.e. 256 bits, hex encoded to 64 characters.
const VerificationSecretBytes = 32

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.  Access tokens are sent in the
// Authorization header when calling staff and admin endpoints.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a staff account.  The
// token carries the account ID as subject, its role, and its email so
// check-ins can record who confirmed them.
func NewAccessToken(secret string, userID uint64, email, role string, ttlMin int) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":   userID,
        "email": email,
        "role":  role,
        "exp":   exp.Unix(),
        "iat":   now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// NewVerificationSecret returns a fresh ticket secret.  Secrets are
// issued once per registrant, at allocation commit, and never rotated.
func NewVerificationSecret() (string, error) {
    return randomHex(VerificationSecretBytes)
}

// IsVerificationSecret reports whether s has the shape of a secret
// produced by NewVerificationSecret.
func IsVerificationSecret(s string) bool {
    if len(s) != VerificationSecretBytes*2 {
        return false
    }
    _, err := hex.DecodeString(s)
    return err == nil
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
