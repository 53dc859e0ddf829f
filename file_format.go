package encrypteddata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// MagicBytes identifies encrypted data files (ASCII: "EDAT")
	MagicBytes = uint32(0x45444154)

	// CurrentVersion is the current file format version
	CurrentVersion = uint8(1)

	// MinHeaderSize is the fixed part of the header:
	// 4 bytes (magic) + 1 byte (version) + 1 byte (cipher) + 2 bytes (nonce size)
	MinHeaderSize = 8
)

// FileHeader prefixes every ciphertext produced by AEADCodec
type FileHeader struct {
	Magic     uint32      // Magic bytes to identify encrypted files
	Version   uint8       // File format version
	Cipher    CipherSuite // Cipher suite used for encryption
	NonceSize uint16      // Size of the nonce in bytes
	Nonce     []byte      // Nonce for encryption
}

// NewFileHeader creates a new file header with the given parameters
func NewFileHeader(cipher CipherSuite, nonce []byte) *FileHeader {
	return &FileHeader{
		Magic:     MagicBytes,
		Version:   CurrentVersion,
		Cipher:    cipher,
		NonceSize: uint16(len(nonce)),
		Nonce:     nonce,
	}
}

// Size returns the total size of the header in bytes
func (h *FileHeader) Size() int {
	return MinHeaderSize + len(h.Nonce)
}

// WriteTo writes the header to the given writer
func (h *FileHeader) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)

	for _, field := range []struct {
		name  string
		value any
	}{
		{"magic bytes", h.Magic},
		{"version", h.Version},
		{"cipher", h.Cipher},
		{"nonce size", h.NonceSize},
	} {
		if err := binary.Write(buf, binary.LittleEndian, field.value); err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", field.name, err)
		}
	}
	buf.Write(h.Nonce)

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadFrom reads the header from the given reader
func (h *FileHeader) ReadFrom(r io.Reader) (int64, error) {
	var totalRead int64

	if err := binary.Read(r, binary.LittleEndian, &h.Magic); err != nil {
		return totalRead, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	totalRead += 4

	if h.Magic != MagicBytes {
		return totalRead, ErrInvalidHeader
	}

	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return totalRead, fmt.Errorf("failed to read version: %w", err)
	}
	totalRead++

	if h.Version > CurrentVersion {
		return totalRead, ErrUnsupportedVersion
	}

	if err := binary.Read(r, binary.LittleEndian, &h.Cipher); err != nil {
		return totalRead, fmt.Errorf("failed to read cipher: %w", err)
	}
	totalRead++

	if err := binary.Read(r, binary.LittleEndian, &h.NonceSize); err != nil {
		return totalRead, fmt.Errorf("failed to read nonce size: %w", err)
	}
	totalRead += 2

	h.Nonce = make([]byte, h.NonceSize)
	n, err := io.ReadFull(r, h.Nonce)
	totalRead += int64(n)
	if err != nil {
		return totalRead, fmt.Errorf("failed to read nonce: %w", err)
	}

	return totalRead, nil
}

// Validate checks if the header is valid
func (h *FileHeader) Validate() error {
	if h.Magic != MagicBytes {
		return ErrInvalidHeader
	}
	if h.Version > CurrentVersion {
		return ErrUnsupportedVersion
	}
	if h.Cipher != CipherAES256GCM && h.Cipher != CipherChaCha20Poly1305 {
		return ErrUnsupportedCipher
	}
	return ValidateNonce(h.Nonce, h.Cipher)
}
