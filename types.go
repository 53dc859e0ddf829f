package encrypteddata

import (
	"errors"

	"go.uber.org/zap"
)

// CipherSuite represents the encryption algorithm to use
type CipherSuite uint8

const (
	// CipherAuto automatically selects the best cipher based on hardware capabilities
	CipherAuto CipherSuite = iota
	// CipherAES256GCM uses AES-256 with Galois/Counter Mode
	CipherAES256GCM
	// CipherChaCha20Poly1305 uses ChaCha20 stream cipher with Poly1305 MAC
	CipherChaCha20Poly1305
)

// String returns the string representation of the cipher suite
func (c CipherSuite) String() string {
	switch c {
	case CipherAuto:
		return "auto"
	case CipherAES256GCM:
		return "aes-256-gcm"
	case CipherChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return "unknown"
	}
}

// Known reports whether c names a concrete AEAD
func (c CipherSuite) Known() bool {
	return c == CipherAES256GCM || c == CipherChaCha20Poly1305
}

// ParseCipherSuite is the inverse of CipherSuite.String. The empty string maps
// to CipherAuto.
func ParseCipherSuite(s string) (CipherSuite, error) {
	switch s {
	case "", "auto":
		return CipherAuto, nil
	case "aes-256-gcm":
		return CipherAES256GCM, nil
	case "chacha20-poly1305":
		return CipherChaCha20Poly1305, nil
	default:
		return 0, ErrUnsupportedCipher
	}
}

// HashFunc represents hash function types for PBKDF2
type HashFunc uint8

const (
	// SHA256 hash function
	SHA256 HashFunc = iota
	// SHA512 hash function
	SHA512
)

// PBKDF2Params contains parameters for PBKDF2 key derivation
type PBKDF2Params struct {
	Iterations int      // Number of iterations (minimum 100,000 recommended)
	HashFunc   HashFunc // Hash function to use
	KeySize    int      // Derived key size in bytes (default 32 for AES-256)
}

// Argon2idParams contains parameters for Argon2id key derivation
type Argon2idParams struct {
	Memory      uint32 // Memory in KiB (e.g., 64*1024 for 64MB)
	Iterations  uint32 // Number of iterations (time parameter)
	Parallelism uint8  // Degree of parallelism
	KeySize     int    // Derived key size in bytes (default 32 for AES-256)
}

// Defaults used when a Config field is left empty.
const (
	DefaultConfigPath = "/encrypteddata/files.json"
	DefaultFilePath   = "/encrypteddata/files"
	DefaultSecretEnv  = "ENCRYPTEDDATA_SECRET"
)

// Config contains configuration for an EncryptedData instance. Every field is
// optional; New fills in defaults once and Reconfigure replaces only the
// fields it is given.
type Config struct {
	// ConfigPath is the location of the persisted ConfigStore snapshot
	ConfigPath string

	// FilePath is the directory holding the encrypted data files
	FilePath string

	// Algorithm derives per-version keys. When nil, New falls back to an
	// HKDF derivation keyed by the DefaultSecretEnv environment variable.
	Algorithm KeyDerivation

	// Cipher suite used by the default codec
	Cipher CipherSuite

	// Codec overrides the AEAD codec built from Cipher
	Codec Codec

	// Serializer turns values into plaintext payloads (default JSON)
	Serializer Serializer

	// Logger receives operational logs (default no-op)
	Logger *zap.Logger

	// Parallel controls VerifyAll fan-out
	Parallel ParallelConfig
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Algorithm == nil {
		return ErrNilKeyDerivation
	}
	if c.Codec == nil && c.Cipher != CipherAuto && !c.Cipher.Known() {
		return ErrUnsupportedCipher
	}
	if err := c.Parallel.Validate(); err != nil {
		return err
	}
	return nil
}

// withDefaults returns a copy of c with empty fields filled in.
func (c Config) withDefaults() (Config, error) {
	if c.ConfigPath == "" {
		c.ConfigPath = DefaultConfigPath
	}
	if c.FilePath == "" {
		c.FilePath = DefaultFilePath
	}
	if c.Cipher == CipherAuto {
		// Auto-select AES-256-GCM (in future, detect AES-NI support)
		c.Cipher = CipherAES256GCM
	}
	if c.Algorithm == nil {
		kd, err := NewEnvKeyDerivation(DefaultSecretEnv)
		if err != nil {
			return c, errors.Join(ErrNilKeyDerivation, err)
		}
		c.Algorithm = kd
	}
	if c.Codec == nil && c.Cipher.Known() {
		c.Codec = NewAEADCodec(c.Cipher)
	}
	if c.Serializer == nil {
		c.Serializer = JSONSerializer{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Parallel == (ParallelConfig{}) {
		c.Parallel = DefaultParallelConfig()
	}
	return c, nil
}
