// Package crypto provides cryptographic utilities for Truly.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Character sets and lengths for key generation
const (
	// digitChars contains characters used in verification codes.
	digitChars = "0123456789"

	// VerifyCodeLength is the number of digits in a verification code.
	VerifyCodeLength = 6

	// SecretSize is the number of random bytes in a generated signing secret.
	SecretSize = 32
)

// GenerateVerifyCode generates a random 6-digit verification code.
// Leading zeros are kept, so the code is always exactly VerifyCodeLength digits.
func GenerateVerifyCode() (string, error) {
	return generateRandomString(VerifyCodeLength, digitChars)
}

// GenerateSecret generates a random signing secret.
// Returns the secret as a 64-character hex string.
func GenerateSecret() (string, error) {
	key := make([]byte, SecretSize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// EqualCodes compares two codes in constant time.
func EqualCodes(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// generateRandomString generates a random string of the specified length
// using characters from the provided character set.
// Bytes that would bias the distribution toward the start of charset are discarded.
func generateRandomString(length int, charset string) (string, error) {
	result := make([]byte, 0, length)
	charsetLen := len(charset)
	limit := 256 - (256 % charsetLen)

	buf := make([]byte, length*2)
	for len(result) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			result = append(result, charset[int(b)%charsetLen])
			if len(result) == length {
				break
			}
		}
	}

	return string(result), nil
}
