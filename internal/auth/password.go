package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength = 16
	iterations = 10000
	keyLength  = 32
)

// SaltAndHash derives a salted PBKDF2 hash of the password. The returned
// blob is salt||key so a single bytea column stores both.
func SaltAndHash(password string) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha256.New)
	return append(salt, key...), nil
}

// Matches reports whether the plaintext password corresponds to a blob
// produced by SaltAndHash.
func Matches(password string, saltedHash []byte) bool {
	if len(saltedHash) != saltLength+keyLength {
		return false
	}
	salt := saltedHash[:saltLength]
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha256.New)
	return subtle.ConstantTimeCompare(key, saltedHash[saltLength:]) == 1
}
