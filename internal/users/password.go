package users

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength     = 16
	argonTime      = 1
	argonMemoryKiB = 64 * 1024
	argonThreads   = 4
	argonKeyLength = 32
)

// hashPassword derives an argon2id digest of the password with a fresh
// random salt. Plaintext is never persisted.
func hashPassword(password string) (hash, salt []byte, err error) {
	salt = make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("users: salt generation failed: %w", err)
	}
	hash = argon2.IDKey([]byte(password), salt, argonTime, argonMemoryKiB, argonThreads, argonKeyLength)
	return hash, salt, nil
}

// verifyPassword re-derives the digest with the stored salt and compares
// in constant time.
func verifyPassword(password string, salt, expected []byte) bool {
	if len(salt) == 0 || len(expected) == 0 {
		return false
	}
	derived := argon2.IDKey([]byte(password), salt, argonTime, argonMemoryKiB, argonThreads, argonKeyLength)
	return subtle.ConstantTimeCompare(derived, expected) == 1
}
