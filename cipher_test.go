package encrypteddata

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestAEADCodec_RoundTrip(t *testing.T) {
	for _, suite := range []CipherSuite{CipherAES256GCM, CipherChaCha20Poly1305} {
		t.Run(suite.String(), func(t *testing.T) {
			codec := NewAEADCodec(suite)
			plaintext := []byte(`{"k":"v"}`)

			ct, err := codec.Encrypt(plaintext, testKey(1))
			require.NoError(t, err)
			assert.NotContains(t, string(ct), `"k"`)

			var header FileHeader
			n, err := header.ReadFrom(bytes.NewReader(ct))
			require.NoError(t, err)
			assert.Equal(t, int64(header.Size()), n)
			assert.Equal(t, suite, header.Cipher)
			assert.Equal(t, MagicBytes, header.Magic)

			pt, err := codec.Decrypt(ct, testKey(1))
			require.NoError(t, err)
			assert.Equal(t, plaintext, pt)

			// fresh nonce per encryption
			ct2, err := codec.Encrypt(plaintext, testKey(1))
			require.NoError(t, err)
			assert.NotEqual(t, ct, ct2)
		})
	}
}

func TestAEADCodec_DecryptHonoursHeaderSuite(t *testing.T) {
	ct, err := NewAEADCodec(CipherChaCha20Poly1305).Encrypt([]byte("x"), testKey(2))
	require.NoError(t, err)

	pt, err := NewAEADCodec(CipherAES256GCM).Decrypt(ct, testKey(2))
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), pt)
}

func TestAEADCodec_DecryptFailures(t *testing.T) {
	codec := NewAEADCodec(CipherAES256GCM)
	ct, err := codec.Encrypt([]byte("secret"), testKey(1))
	require.NoError(t, err)

	flip := func(i int) []byte {
		c := bytes.Clone(ct)
		c[i] ^= 0x01
		return c
	}

	tests := []struct {
		name    string
		data    []byte
		key     []byte
		wantErr error
	}{
		{"wrong key", ct, testKey(2), ErrAuthFailed},
		{"tampered ciphertext", flip(len(ct) - 1), testKey(1), ErrAuthFailed},
		{"tampered header nonce", flip(MinHeaderSize), testKey(1), ErrAuthFailed},
		{"bad magic", flip(0), testKey(1), ErrInvalidHeader},
		{"future format", func() []byte { c := bytes.Clone(ct); c[4] = CurrentVersion + 1; return c }(), testKey(1), ErrUnsupportedVersion},
		{"unknown cipher", func() []byte { c := bytes.Clone(ct); c[5] = 99; return c }(), testKey(1), ErrUnsupportedCipher},
		{"truncated", ct[:3], testKey(1), nil},
		{"empty", nil, testKey(1), nil},
		{"short key", ct, []byte("short"), ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decrypt(tt.data, tt.key)
			require.Error(t, err)
			assert.True(t, IsDecryptionError(err), "got %T %v", err, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAEADCodec_EncryptRejectsBadKey(t *testing.T) {
	_, err := NewAEADCodec(CipherAES256GCM).Encrypt([]byte("x"), []byte("too short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.True(t, IsValidationError(err))
}

func TestNewCipherEngine(t *testing.T) {
	tests := []struct {
		suite   CipherSuite
		want    CipherSuite
		wantErr bool
	}{
		{CipherAuto, CipherAES256GCM, false},
		{CipherAES256GCM, CipherAES256GCM, false},
		{CipherChaCha20Poly1305, CipherChaCha20Poly1305, false},
		{CipherSuite(42), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.suite.String(), func(t *testing.T) {
			engine, err := NewCipherEngine(tt.suite, testKey(1))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedCipher)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, engine.Suite())
			assert.Equal(t, 12, engine.NonceSize())

			nonce, err := GenerateNonce(engine.NonceSize())
			require.NoError(t, err)
			sealed, err := engine.Seal(nonce, []byte("data"), []byte("ad"))
			require.NoError(t, err)

			_, err = engine.Open(nonce, sealed, []byte("other ad"))
			assert.ErrorIs(t, err, ErrAuthFailed)

			_, err = engine.Seal(nonce[:4], []byte("data"), nil)
			assert.Error(t, err)
		})
	}
}

func TestParseCipherSuite(t *testing.T) {
	for _, s := range []CipherSuite{CipherAuto, CipherAES256GCM, CipherChaCha20Poly1305} {
		got, err := ParseCipherSuite(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := ParseCipherSuite("")
	require.NoError(t, err)
	assert.Equal(t, CipherAuto, got)

	_, err = ParseCipherSuite("rot13")
	assert.ErrorIs(t, err, ErrUnsupportedCipher)
	assert.Equal(t, "unknown", CipherSuite(42).String())
}

func TestFileHeader_WriteRead(t *testing.T) {
	nonce := bytes.Repeat([]byte{7}, 12)
	h := NewFileHeader(CipherChaCha20Poly1305, nonce)
	require.NoError(t, h.Validate())

	var buf bytes.Buffer
	n, err := h.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(h.Size()), n)
	assert.Equal(t, MinHeaderSize+12, buf.Len())
	assert.Equal(t, []byte("TADE"), buf.Bytes()[:4], "magic is little-endian")

	var got FileHeader
	_, err = got.ReadFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, *h, got)
}

func TestFileHeader_Validate(t *testing.T) {
	nonce := make([]byte, 12)
	tests := []struct {
		name    string
		header  FileHeader
		wantErr error
	}{
		{"bad magic", FileHeader{Magic: 1, Version: 1, Cipher: CipherAES256GCM, Nonce: nonce}, ErrInvalidHeader},
		{"future version", FileHeader{Magic: MagicBytes, Version: 9, Cipher: CipherAES256GCM, Nonce: nonce}, ErrUnsupportedVersion},
		{"auto cipher", FileHeader{Magic: MagicBytes, Version: 1, Cipher: CipherAuto, Nonce: nonce}, ErrUnsupportedCipher},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.header.Validate(), tt.wantErr)
		})
	}

	short := FileHeader{Magic: MagicBytes, Version: 1, Cipher: CipherAES256GCM, Nonce: nonce[:8]}
	assert.True(t, IsValidationError(short.Validate()))
}
