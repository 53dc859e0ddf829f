package encrypteddata

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Codec encrypts and decrypts whole payloads with a caller-supplied key.
// Decrypt must fail, rather than return garbage, on a wrong key or
// corrupted input.
type Codec interface {
	Encrypt(plaintext, key []byte) ([]byte, error)
	Decrypt(ciphertext, key []byte) ([]byte, error)
}

// CipherEngine provides AEAD encryption/decryption for a fixed key
type CipherEngine interface {
	// Seal encrypts plaintext with the given nonce and additional data
	Seal(nonce, plaintext, additional []byte) ([]byte, error)

	// Open decrypts ciphertext with the given nonce and additional data
	Open(nonce, ciphertext, additional []byte) ([]byte, error)

	// NonceSize returns the size of nonces in bytes
	NonceSize() int

	// Suite reports the cipher suite backing the engine
	Suite() CipherSuite
}

// aeadEngine adapts a cipher.AEAD to CipherEngine
type aeadEngine struct {
	aead  cipher.AEAD
	suite CipherSuite
}

// NewCipherEngine creates a new cipher engine based on the cipher suite
func NewCipherEngine(suite CipherSuite, key []byte) (CipherEngine, error) {
	if suite == CipherAuto {
		suite = CipherAES256GCM
	}

	switch suite {
	case CipherAES256GCM:
		if err := ValidateKey(key, 32); err != nil {
			return nil, err
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create AES cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return &aeadEngine{aead: aead, suite: suite}, nil

	case CipherChaCha20Poly1305:
		if err := ValidateKey(key, chacha20poly1305.KeySize); err != nil {
			return nil, err
		}
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
		}
		return &aeadEngine{aead: aead, suite: suite}, nil

	default:
		return nil, ErrUnsupportedCipher
	}
}

func (e *aeadEngine) Seal(nonce, plaintext, additional []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	return e.aead.Seal(nil, nonce, plaintext, additional), nil
}

func (e *aeadEngine) Open(nonce, ciphertext, additional []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, additional)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func (e *aeadEngine) NonceSize() int {
	return e.aead.NonceSize()
}

func (e *aeadEngine) Suite() CipherSuite {
	return e.suite
}

// GenerateNonce generates a random nonce of the given size
func GenerateNonce(size int) ([]byte, error) {
	nonce := make([]byte, size)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// AEADCodec is the default Codec. Output is a FileHeader followed by the AEAD
// ciphertext; the encoded header is authenticated as additional data.
type AEADCodec struct {
	suite CipherSuite
}

// NewAEADCodec returns a codec that encrypts with the given suite. Decrypt
// honours whatever suite the header names.
func NewAEADCodec(suite CipherSuite) *AEADCodec {
	if suite == CipherAuto {
		suite = CipherAES256GCM
	}
	return &AEADCodec{suite: suite}
}

// Suite returns the cipher suite used for new ciphertexts
func (c *AEADCodec) Suite() CipherSuite {
	return c.suite
}

// Encrypt implements Codec
func (c *AEADCodec) Encrypt(plaintext, key []byte) ([]byte, error) {
	engine, err := NewCipherEngine(c.suite, key)
	if err != nil {
		return nil, err
	}
	nonce, err := GenerateNonce(engine.NonceSize())
	if err != nil {
		return nil, err
	}

	header := NewFileHeader(c.suite, nonce)
	var buf bytes.Buffer
	if _, err := header.WriteTo(&buf); err != nil {
		return nil, err
	}
	ad := bytes.Clone(buf.Bytes())

	sealed, err := engine.Seal(nonce, plaintext, ad)
	if err != nil {
		return nil, err
	}
	buf.Write(sealed)
	return buf.Bytes(), nil
}

// Decrypt implements Codec. Every failure is a *DecryptionError.
func (c *AEADCodec) Decrypt(ciphertext, key []byte) ([]byte, error) {
	r := bytes.NewReader(ciphertext)
	var header FileHeader
	n, err := header.ReadFrom(r)
	if err != nil {
		return nil, NewDecryptionError("", err)
	}
	if err := header.Validate(); err != nil {
		return nil, NewDecryptionError("", err)
	}

	engine, err := NewCipherEngine(header.Cipher, key)
	if err != nil {
		return nil, NewDecryptionError("", err)
	}
	plaintext, err := engine.Open(header.Nonce, ciphertext[n:], ciphertext[:n])
	if err != nil {
		return nil, NewDecryptionError("", err)
	}
	return plaintext, nil
}
