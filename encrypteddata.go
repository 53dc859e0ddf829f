package encrypteddata

import (
	"fmt"
	"time"

	"github.com/absfs/absfs"
	"go.uber.org/zap"
)

// EncryptedData stores versioned, encrypted values on an absfs.FileSystem.
// It holds the resolved configuration and the ConfigStore; Records opened
// from it share both.
type EncryptedData struct {
	fs     absfs.FileSystem
	config Config
	store  *ConfigStore
	log    *zap.Logger
	now    func() time.Time
}

// New creates an EncryptedData on top of fs. A nil config means all
// defaults. The ConfigStore snapshot is loaded (or started empty) and the data
// directory is created.
func New(fs absfs.FileSystem, config *Config) (*EncryptedData, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}

	var cfg Config
	if config != nil {
		cfg = *config
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := OpenConfigStore(fs, cfg.ConfigPath, cfg.Logger)
	if err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(cfg.FilePath, 0755); err != nil {
		return nil, NewIOError("mkdir", cfg.FilePath, err)
	}

	return &EncryptedData{
		fs:     fs,
		config: cfg,
		store:  store,
		log:    cfg.Logger,
		now:    time.Now,
	}, nil
}

// Reconfigure replaces only the fields set in update. A new ConfigPath
// reloads the store from that location; anything left zero keeps its
// current value.
func (e *EncryptedData) Reconfigure(update Config) error {
	merged := e.config
	if update.ConfigPath != "" {
		merged.ConfigPath = update.ConfigPath
	}
	if update.FilePath != "" {
		merged.FilePath = update.FilePath
	}
	if update.Algorithm != nil {
		merged.Algorithm = update.Algorithm
	}
	if update.Cipher != CipherAuto {
		merged.Cipher = update.Cipher
		merged.Codec = nil
	}
	if update.Codec != nil {
		merged.Codec = update.Codec
	}
	if update.Serializer != nil {
		merged.Serializer = update.Serializer
	}
	if update.Logger != nil {
		merged.Logger = update.Logger
	}
	if update.Parallel != (ParallelConfig{}) {
		merged.Parallel = update.Parallel
	}
	merged, err := merged.withDefaults()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store := e.store
	if update.ConfigPath != "" {
		s, err := OpenConfigStore(e.fs, merged.ConfigPath, merged.Logger)
		if err != nil {
			return err
		}
		store = s
	} else {
		store.log = merged.Logger
	}
	if update.FilePath != "" {
		if err := e.fs.MkdirAll(merged.FilePath, 0755); err != nil {
			return NewIOError("mkdir", merged.FilePath, err)
		}
	}

	e.config = merged
	e.store = store
	e.log = merged.Logger
	return nil
}

// Config returns a copy of the resolved configuration
func (e *EncryptedData) Config() Config {
	return e.config
}

// Store returns the ConfigStore backing this instance
func (e *EncryptedData) Store() *ConfigStore {
	return e.store
}

// FileSystem returns the filesystem holding data files and the snapshot
func (e *EncryptedData) FileSystem() absfs.FileSystem {
	return e.fs
}

// Open binds a Record to fileName. Version 0 resolves to the active version,
// or leaves the record unversioned when none is active.
func (e *EncryptedData) Open(fileName string, version int) (*Record, error) {
	name, err := NormalizeFileName(fileName)
	if err != nil {
		return nil, err
	}
	if version < 0 {
		return nil, NewValidationError("version", version, "version cannot be negative")
	}
	if version == 0 {
		if entry, ok := e.store.Get(name); ok {
			version = entry.Active
		}
	}
	return &Record{ed: e, file: name, version: version}, nil
}

// PrepInitialVersion opens fileName, prepares its next version and writes
// data to it. The record is returned even when the write fails, so callers
// can inspect the consumed version.
func (e *EncryptedData) PrepInitialVersion(fileName string, data any, author string) (*Record, error) {
	r, err := e.Open(fileName, 0)
	if err != nil {
		return nil, err
	}
	if _, err := r.PrepareNextVersion(author); err != nil {
		return r, err
	}
	return r, r.Write(data)
}

// deriveKey resolves the metadata for (fileName, version) and hands it to the
// configured KeyDerivation. Unregistered versions never reach the provider.
func (e *EncryptedData) deriveKey(fileName string, version int) ([]byte, error) {
	meta, ok := e.store.Metadata(fileName, version)
	if !ok {
		return nil, &VersionNotFoundError{File: fileName, Version: version}
	}
	key, err := e.config.Algorithm.DeriveKey(meta, fileName, version)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key for %s (v%d): %w", fileName, version, err)
	}
	return key, nil
}

func (e *EncryptedData) dataPath(fileName string, version int) string {
	return DataFilePath(e.config.FilePath, fileName, version)
}
