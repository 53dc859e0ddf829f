package encrypteddata

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/absfs/absfs"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is the prefix for environment overrides of Options, so
// EDATA_FILE_PATH overrides file_path and EDATA_LOG_LEVEL overrides log.level.
const EnvPrefix = "EDATA"

// Options is the file/environment form of Config
type Options struct {
	ConfigPath string `mapstructure:"config_path"`
	FilePath   string `mapstructure:"file_path"`

	// Algorithm names the key derivation (see LookupKeyDerivation)
	Algorithm string `mapstructure:"algorithm"`

	// AlgorithmPath is a file holding the derivation secret. When empty the
	// secret is read from the SecretEnv environment variable.
	AlgorithmPath string `mapstructure:"algorithm_path"`
	SecretEnv     string `mapstructure:"secret_env"`

	Cipher     string `mapstructure:"cipher"`
	Serializer string `mapstructure:"serializer"`
	Workers    int    `mapstructure:"workers"`

	Log LogOptions `mapstructure:"log"`
}

// LogOptions configures the logger built by the edata command
type LogOptions struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoadOptions reads options from the file at path (YAML, JSON or TOML by
// extension) with EDATA_* environment overrides. An empty path reads the
// environment and defaults only.
func LoadOptions(path string) (*Options, error) {
	v := viper.New()
	setOptionDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &opts, nil
}

// DefaultOptionsDir is where LoadOptions puts the snapshot and data files
// when nothing is configured: edata under the user's config directory, or
// .edata in the working directory when that is unknown.
func DefaultOptionsDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "edata")
	}
	return ".edata"
}

// setOptionDefaults registers every key, which also makes AutomaticEnv see
// them during Unmarshal
func setOptionDefaults(v *viper.Viper) {
	dir := DefaultOptionsDir()
	v.SetDefault("config_path", filepath.Join(dir, "files.json"))
	v.SetDefault("file_path", filepath.Join(dir, "files"))
	v.SetDefault("algorithm", AlgorithmHKDFSHA256)
	v.SetDefault("algorithm_path", "")
	v.SetDefault("secret_env", DefaultSecretEnv)
	v.SetDefault("cipher", CipherAES256GCM.String())
	v.SetDefault("serializer", "json")
	v.SetDefault("workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
}

// Build resolves the named algorithm, cipher and serializer into a Config.
// The derivation secret is read from AlgorithmPath on fs when set.
func (o *Options) Build(fs absfs.FileSystem, logger *zap.Logger) (*Config, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}

	secret, err := o.secret(fs)
	if err != nil {
		return nil, err
	}
	kd, err := LookupKeyDerivation(o.Algorithm, secret)
	if err != nil {
		return nil, err
	}

	suite, err := ParseCipherSuite(o.Cipher)
	if err != nil {
		return nil, NewValidationError("cipher", o.Cipher, "unknown cipher suite")
	}
	ser, err := LookupSerializer(o.Serializer)
	if err != nil {
		return nil, err
	}

	parallel := DefaultParallelConfig()
	if o.Workers < 0 {
		return nil, NewValidationError("workers", o.Workers, "workers cannot be negative")
	}
	if o.Workers == 1 {
		parallel.Enabled = false
	} else if o.Workers > 1 {
		parallel.MaxWorkers = o.Workers
	}

	return &Config{
		ConfigPath: o.ConfigPath,
		FilePath:   o.FilePath,
		Algorithm:  kd,
		Cipher:     suite,
		Serializer: ser,
		Logger:     logger,
		Parallel:   parallel,
	}, nil
}

func (o *Options) secret(fs absfs.FileSystem) ([]byte, error) {
	if o.AlgorithmPath != "" {
		data, err := readFile(fs, o.AlgorithmPath)
		if err != nil {
			return nil, NewIOError("read", o.AlgorithmPath, err)
		}
		secret := bytes.TrimSpace(data)
		if len(secret) == 0 {
			return nil, NewValidationError("algorithm_path", o.AlgorithmPath, "secret file is empty")
		}
		return secret, nil
	}

	env := o.SecretEnv
	if env == "" {
		env = DefaultSecretEnv
	}
	secret := os.Getenv(env)
	if secret == "" {
		return nil, NewValidationError("secret_env", env, "environment variable not set")
	}
	return []byte(secret), nil
}
