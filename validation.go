package encrypteddata

import (
	"fmt"
	"strings"
)

// Input validation helpers

// ValidateFileName checks that a logical file name can be used as the stem of
// a data file. Callers normalize case separately.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{
			Field:   "file_name",
			Message: "file name cannot be empty",
		}
	}
	if name == "." || name == ".." {
		return &ValidationError{
			Field:   "file_name",
			Value:   name,
			Message: "file name cannot be a relative directory reference",
		}
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return &ValidationError{
			Field:   "file_name",
			Value:   name,
			Message: "file name cannot contain path separators or NUL",
		}
	}
	return nil
}

// ValidateVersion checks that a version number can address stored data
func ValidateVersion(version int) error {
	if version <= 0 {
		return &ValidationError{
			Field:   "version",
			Value:   version,
			Message: "version must be a positive integer",
		}
	}
	return nil
}

// ValidateNonce checks if a nonce has the correct size for a cipher
func ValidateNonce(nonce []byte, cipher CipherSuite) error {
	if nonce == nil {
		return &ValidationError{
			Field:   "nonce",
			Message: "nonce cannot be nil",
		}
	}

	var expectedSize int
	switch cipher {
	case CipherAES256GCM, CipherChaCha20Poly1305:
		expectedSize = 12
	default:
		return &ValidationError{
			Field:   "cipher",
			Value:   cipher,
			Message: "unsupported cipher suite for nonce validation",
			Err:     ErrUnsupportedCipher,
		}
	}

	if len(nonce) != expectedSize {
		return &ValidationError{
			Field:   "nonce",
			Value:   len(nonce),
			Message: fmt.Sprintf("invalid nonce size: got %d bytes, expected %d bytes for %s", len(nonce), expectedSize, cipher.String()),
		}
	}

	return nil
}

// ValidateKey checks if a key has the correct size
func ValidateKey(key []byte, expectedSize int) error {
	if key == nil {
		return &ValidationError{
			Field:   "key",
			Message: "key cannot be nil",
			Err:     ErrInvalidKey,
		}
	}

	if len(key) != expectedSize {
		return &ValidationError{
			Field:   "key",
			Value:   len(key),
			Message: fmt.Sprintf("invalid key size: got %d bytes, expected %d bytes", len(key), expectedSize),
			Err:     ErrInvalidKey,
		}
	}

	return nil
}
