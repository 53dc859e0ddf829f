package encrypteddata

import (
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// KeyDerivation maps a registered version to its symmetric key. It must be
// deterministic: the same metadata, file name and version always yield the
// same key, otherwise older versions become unreadable.
type KeyDerivation interface {
	DeriveKey(meta VersionMetadata, fileName string, version int) ([]byte, error)
}

// KeyDerivationFunc adapts an ordinary function to KeyDerivation
type KeyDerivationFunc func(meta VersionMetadata, fileName string, version int) ([]byte, error)

// DeriveKey calls f(meta, fileName, version)
func (f KeyDerivationFunc) DeriveKey(meta VersionMetadata, fileName string, version int) ([]byte, error) {
	return f(meta, fileName, version)
}

// Names accepted by LookupKeyDerivation
const (
	AlgorithmHKDFSHA256   = "hkdf-sha256"
	AlgorithmArgon2id     = "argon2id"
	AlgorithmPBKDF2SHA256 = "pbkdf2-sha256"
	AlgorithmPBKDF2SHA512 = "pbkdf2-sha512"
)

const defaultKeySize = 32

// bindingContext is the byte string every provider mixes into the key so that
// two versions never share one.
func bindingContext(meta VersionMetadata, fileName string, version int) []byte {
	b := make([]byte, 0, 64+len(fileName)+len(meta.Author))
	b = append(b, "encrypteddata/v1"...)
	b = append(b, 0)
	b = append(b, fileName...)
	b = append(b, 0)
	b = strconv.AppendInt(b, int64(version), 10)
	b = append(b, 0)
	b = append(b, meta.Author...)
	b = append(b, 0)
	b = append(b, meta.CreatedAt.UTC().Format(time.RFC3339)...)
	return b
}

// HKDFKeyDerivation expands a master secret with HKDF-SHA256
type HKDFKeyDerivation struct {
	secret  []byte
	keySize int
}

// NewHKDFKeyDerivation creates an HKDF-SHA256 derivation over secret
func NewHKDFKeyDerivation(secret []byte) (*HKDFKeyDerivation, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("master secret must be at least 16 bytes, got %d", len(secret))
	}
	return &HKDFKeyDerivation{secret: secret, keySize: defaultKeySize}, nil
}

// DeriveKey implements KeyDerivation
func (h *HKDFKeyDerivation) DeriveKey(meta VersionMetadata, fileName string, version int) ([]byte, error) {
	r := hkdf.New(sha256.New, h.secret, nil, bindingContext(meta, fileName, version))
	key := make([]byte, h.keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to expand key: %w", err)
	}
	return key, nil
}

// PasswordKeyDerivation implements KeyDerivation using password-based key
// derivation, salted per version
type PasswordKeyDerivation struct {
	password     []byte
	useArgon2id  bool
	pbkdf2Params PBKDF2Params
	argon2Params Argon2idParams
}

// NewPasswordKeyDerivationPBKDF2 creates a new password-based derivation using PBKDF2
func NewPasswordKeyDerivationPBKDF2(password []byte, params PBKDF2Params) *PasswordKeyDerivation {
	if params.Iterations == 0 {
		params.Iterations = 100000
	}
	if params.KeySize == 0 {
		params.KeySize = defaultKeySize
	}

	return &PasswordKeyDerivation{
		password:     password,
		pbkdf2Params: params,
	}
}

// NewPasswordKeyDerivation creates a new password-based derivation using Argon2id (recommended)
func NewPasswordKeyDerivation(password []byte, params Argon2idParams) *PasswordKeyDerivation {
	if params.Memory == 0 {
		params.Memory = 64 * 1024 // 64 MB
	}
	if params.Iterations == 0 {
		params.Iterations = 3
	}
	if params.Parallelism == 0 {
		params.Parallelism = 4
	}
	if params.KeySize == 0 {
		params.KeySize = defaultKeySize
	}

	return &PasswordKeyDerivation{
		password:     password,
		useArgon2id:  true,
		argon2Params: params,
	}
}

// DeriveKey implements KeyDerivation
func (p *PasswordKeyDerivation) DeriveKey(meta VersionMetadata, fileName string, version int) ([]byte, error) {
	if len(p.password) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	salt := sha256.Sum256(bindingContext(meta, fileName, version))

	if p.useArgon2id {
		return argon2.IDKey(
			p.password,
			salt[:],
			p.argon2Params.Iterations,
			p.argon2Params.Memory,
			p.argon2Params.Parallelism,
			uint32(p.argon2Params.KeySize),
		), nil
	}

	var hashFunc func() hash.Hash
	switch p.pbkdf2Params.HashFunc {
	case SHA256:
		hashFunc = sha256.New
	case SHA512:
		hashFunc = sha512.New
	default:
		return nil, fmt.Errorf("unsupported hash function: %v", p.pbkdf2Params.HashFunc)
	}

	return pbkdf2.Key(p.password, salt[:], p.pbkdf2Params.Iterations, p.pbkdf2Params.KeySize, hashFunc), nil
}

// NewEnvKeyDerivation reads the master secret from an environment variable
// once and returns an HKDF derivation over it. Later changes to the variable
// have no effect on the returned value.
func NewEnvKeyDerivation(envVar string) (*HKDFKeyDerivation, error) {
	secret := os.Getenv(envVar)
	if secret == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	return NewHKDFKeyDerivation([]byte(secret))
}

// LookupKeyDerivation resolves a derivation by name. The secret is the
// master key for HKDF and the password for the password-based algorithms.
func LookupKeyDerivation(name string, secret []byte) (KeyDerivation, error) {
	if len(secret) == 0 {
		return nil, NewValidationError("secret", nil, "key derivation secret cannot be empty")
	}
	switch name {
	case "", AlgorithmHKDFSHA256:
		return NewHKDFKeyDerivation(secret)
	case AlgorithmArgon2id:
		return NewPasswordKeyDerivation(secret, Argon2idParams{}), nil
	case AlgorithmPBKDF2SHA256:
		return NewPasswordKeyDerivationPBKDF2(secret, PBKDF2Params{HashFunc: SHA256}), nil
	case AlgorithmPBKDF2SHA512:
		return NewPasswordKeyDerivationPBKDF2(secret, PBKDF2Params{HashFunc: SHA512}), nil
	default:
		return nil, NewValidationError("algorithm", name, "unknown key derivation algorithm")
	}
}
