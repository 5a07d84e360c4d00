package security

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost defines the bcrypt work factor.
const bcryptCost = 12

// randomPasswordLength is the length of admin-generated one-time passwords.
const randomPasswordLength = 12

// randomPasswordAlphabet excludes +, / and = so generated passwords stay
// URL-safe and copy-paste safe.
const randomPasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a plaintext password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateRandomPassword returns a fixed-length random password for admin
// resets. The caller shows it to the admin once; only the hash is stored.
func GenerateRandomPassword() (string, error) {
	buf := make([]byte, randomPasswordLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("security: random password: %w", err)
	}
	out := make([]byte, randomPasswordLength)
	for i, b := range buf {
		out[i] = randomPasswordAlphabet[int(b)%len(randomPasswordAlphabet)]
	}
	return string(out), nil
}
