package user

import (
	"crypto/rand"
	"math/big"
	"time"
)

const (
	verificationTokenLen   = 40
	verificationTokenChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Email verification outcome codes, sent back to the frontend on redirect.
const (
	VerifyMissingToken = "missing_token"
	VerifyInvalidToken = "invalid_or_used_token"
	VerifyExpiredToken = "expired_token"
	VerifyUserNotFound = "user_not_found"
	VerifyServerError  = "server_error"
)

// VerificationToken is a single-use token emailed to confirm an address.
type VerificationToken struct {
	ID        string
	Email     string
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

func (vt VerificationToken) IsExpired(now time.Time) bool {
	return now.After(vt.ExpiresAt)
}

// VerificationError reports why an email verification failed.
type VerificationError struct {
	Code string
}

func (e VerificationError) Error() string {
	return "email verification failed: " + e.Code
}

func newVerificationToken() (string, error) {
	max := big.NewInt(int64(len(verificationTokenChars)))
	buf := make([]byte, verificationTokenLen)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = verificationTokenChars[n.Int64()]
	}
	return string(buf), nil
}
