package encrypteddata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv(DefaultSecretEnv, testSecret)
	fs := newTestFS(t)

	ed, err := New(fs, nil)
	require.NoError(t, err)

	cfg := ed.Config()
	assert.Equal(t, DefaultConfigPath, cfg.ConfigPath)
	assert.Equal(t, DefaultFilePath, cfg.FilePath)
	assert.Equal(t, CipherAES256GCM, cfg.Cipher)
	assert.IsType(t, JSONSerializer{}, cfg.Serializer)
	assert.IsType(t, &AEADCodec{}, cfg.Codec)
	assert.NotNil(t, cfg.Logger)
	assert.Equal(t, DefaultParallelConfig(), cfg.Parallel)
	assert.Same(t, fs, ed.FileSystem())

	info, err := fs.Stat(DefaultFilePath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, &Config{Algorithm: testKeyDerivation(t)})
	assert.ErrorIs(t, err, ErrNilFileSystem)

	t.Setenv(DefaultSecretEnv, "")
	_, err = New(newTestFS(t), nil)
	assert.ErrorIs(t, err, ErrNilKeyDerivation)

	_, err = New(newTestFS(t), &Config{Algorithm: testKeyDerivation(t), Cipher: CipherSuite(77)})
	assert.ErrorIs(t, err, ErrUnsupportedCipher)

	fs := newTestFS(t)
	require.NoError(t, fs.MkdirAll("/encrypteddata", 0755))
	require.NoError(t, writeFile(fs, DefaultConfigPath, []byte("]"), 0600))
	_, err = New(fs, &Config{Algorithm: testKeyDerivation(t)})
	assert.True(t, IsIOError(err))
}

func TestReconfigure(t *testing.T) {
	fs := newTestFS(t)
	ed := newTestData(t, fs)

	rec, err := ed.PrepInitialVersion("secrets", "v1", "alice")
	require.NoError(t, err)
	require.NoError(t, rec.Activate())
	store := ed.Store()

	t.Run("only supplied fields change", func(t *testing.T) {
		require.NoError(t, ed.Reconfigure(Config{Cipher: CipherChaCha20Poly1305}))
		cfg := ed.Config()
		assert.Equal(t, CipherChaCha20Poly1305, cfg.Cipher)
		assert.Equal(t, CipherChaCha20Poly1305, cfg.Codec.(*AEADCodec).Suite())
		assert.Equal(t, DefaultFilePath, cfg.FilePath)
		assert.Same(t, store, ed.Store())

		// old AES data still decrypts, new data uses ChaCha20
		got, err := rec.Read()
		require.NoError(t, err)
		assert.Equal(t, "v1", got)
	})

	t.Run("new file path", func(t *testing.T) {
		require.NoError(t, ed.Reconfigure(Config{FilePath: "/elsewhere"}))
		info, err := fs.Stat("/elsewhere")
		require.NoError(t, err)
		assert.True(t, info.IsDir())

		moved, err := ed.PrepInitialVersion("moved", 1, "alice")
		require.NoError(t, err)
		assert.Equal(t, "/elsewhere/moved.1", moved.Path())
	})

	t.Run("new config path reloads the store", func(t *testing.T) {
		require.NoError(t, ed.Reconfigure(Config{ConfigPath: "/other/files.json"}))
		assert.NotSame(t, store, ed.Store())
		_, ok := ed.Store().Get("secrets")
		assert.False(t, ok)

		require.NoError(t, ed.Reconfigure(Config{ConfigPath: DefaultConfigPath, FilePath: DefaultFilePath}))
		entry, ok := ed.Store().Get("secrets")
		require.True(t, ok)
		assert.Equal(t, 1, entry.Active)
	})

	t.Run("invalid update is rejected whole", func(t *testing.T) {
		before := ed.Config()
		err := ed.Reconfigure(Config{FilePath: "/never", Parallel: ParallelConfig{Enabled: true, MaxWorkers: -1}})
		require.Error(t, err)
		assert.Equal(t, before.FilePath, ed.Config().FilePath)
	})
}

func TestReconfigure_Logger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ed := newTestData(t, newTestFS(t))
	store := ed.Store()

	require.NoError(t, ed.Reconfigure(Config{Logger: zap.New(core)}))
	assert.Same(t, store, ed.Store(), "a logger change keeps the loaded store")

	rec, err := ed.PrepInitialVersion("secrets", "x", "alice")
	require.NoError(t, err)
	require.NoError(t, rec.Activate())

	assert.Equal(t, 1, logs.FilterMessage("version written").Len())
	assert.Equal(t, 1, logs.FilterMessage("version prepared").Len())
	assert.Equal(t, 2, logs.FilterMessage("config store persisted").FilterField(zap.Int("files", 1)).Len())
	activated := logs.FilterMessage("version activated").All()
	require.Len(t, activated, 1)
	assert.Equal(t, zapcore.InfoLevel, activated[0].Level)
	assert.Equal(t, "secrets", activated[0].ContextMap()["file"])
}

func TestOpen(t *testing.T) {
	ed := newTestData(t, newTestFS(t))

	rec, err := ed.Open("MixedCase", 3)
	require.NoError(t, err)
	assert.Equal(t, "mixedcase", rec.FileName())
	assert.Equal(t, 3, rec.Version())
	assert.Equal(t, "/encrypteddata/files/mixedcase.3", rec.Path())

	_, err = ed.Open("", 0)
	assert.True(t, IsValidationError(err))
	_, err = ed.Open("a/b", 0)
	assert.True(t, IsValidationError(err))
	_, err = ed.Open("ok", -1)
	assert.True(t, IsValidationError(err))
}

func TestPrepInitialVersion_InvalidName(t *testing.T) {
	ed := newTestData(t, newTestFS(t))
	rec, err := ed.PrepInitialVersion("..", "x", "alice")
	assert.Nil(t, rec)
	assert.True(t, IsValidationError(err))

	rec, err = ed.PrepInitialVersion("ok", "x", "")
	require.NotNil(t, rec)
	assert.ErrorIs(t, err, ErrMissingAuthor)
	assert.Equal(t, 0, rec.Version())
}
