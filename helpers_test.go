package encrypteddata

import (
	"crypto/rand"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// testClock has sub-second precision so tests notice if it leaks into keys
var testClock = time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)

func newTestFS(tb testing.TB) absfs.FileSystem {
	tb.Helper()
	fs, err := memfs.NewFS()
	require.NoError(tb, err)
	return fs
}

func testKeyDerivation(tb testing.TB) *HKDFKeyDerivation {
	tb.Helper()
	kd, err := NewHKDFKeyDerivation([]byte(testSecret))
	require.NoError(tb, err)
	return kd
}

func newTestData(tb testing.TB, fs absfs.FileSystem, mutate ...func(*Config)) *EncryptedData {
	tb.Helper()
	cfg := &Config{Algorithm: testKeyDerivation(tb)}
	for _, m := range mutate {
		m(cfg)
	}
	ed, err := New(fs, cfg)
	require.NoError(tb, err)
	ed.now = func() time.Time { return testClock }
	return ed
}

// countingKeyDerivation counts calls to the wrapped derivation
type countingKeyDerivation struct {
	inner KeyDerivation
	calls int
}

func (c *countingKeyDerivation) DeriveKey(meta VersionMetadata, fileName string, version int) ([]byte, error) {
	c.calls++
	return c.inner.DeriveKey(meta, fileName, version)
}

// randomKeyDerivation returns a fresh key each call, which no reader can match
var randomKeyDerivation = KeyDerivationFunc(func(VersionMetadata, string, int) ([]byte, error) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	return key, err
})

// tamperingCodec encrypts normally but Decrypt returns a different, still
// well-formed, payload
type tamperingCodec struct {
	Codec
}

func (c tamperingCodec) Decrypt(ciphertext, key []byte) ([]byte, error) {
	if _, err := c.Codec.Decrypt(ciphertext, key); err != nil {
		return nil, err
	}
	return []byte(`"tampered"`), nil
}

// brokenCodec encrypts normally and always fails to decrypt
type brokenCodec struct {
	Codec
}

func (brokenCodec) Decrypt([]byte, []byte) ([]byte, error) {
	return nil, errors.New("codec misconfigured")
}

// strictSerializer is JSON that refuses falsy top-level payloads, like
// serializers that treat false, 0 and "" as a failed parse
type strictSerializer struct {
	JSONSerializer
}

func (s strictSerializer) Unmarshal(data []byte, target any) error {
	switch string(data) {
	case "false", "0", `""`, "null":
		return errors.New("falsy payload")
	}
	return s.JSONSerializer.Unmarshal(data, target)
}

// faultyFS fails selected operations on top of a working filesystem
type faultyFS struct {
	absfs.FileSystem
	failRename bool
	failRemove bool

	// refuseOverwrite rejects renames onto an existing file
	refuseOverwrite bool
	// failTmpRename rejects renames of temporary snapshot files
	failTmpRename bool
}

func (f *faultyFS) Rename(oldpath, newpath string) error {
	if f.failRename || (f.failTmpRename && strings.Contains(oldpath, ".tmp-")) {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: errors.New("injected failure")}
	}
	if f.refuseOverwrite {
		if _, err := f.FileSystem.Stat(newpath); err == nil {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: os.ErrExist}
		}
	}
	return f.FileSystem.Rename(oldpath, newpath)
}

func (f *faultyFS) Remove(name string) error {
	if f.failRemove {
		return &os.PathError{Op: "remove", Path: name, Err: errors.New("injected failure")}
	}
	return f.FileSystem.Remove(name)
}
