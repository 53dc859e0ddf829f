package encrypteddata

import (
	"errors"
	"fmt"
)

// Error types represent different categories of errors

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// VersionNotFoundError is returned when key derivation or a read is requested
// for a version that has no metadata in the ConfigStore.
type VersionNotFoundError struct {
	File    string
	Version int
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("settings not found for file %q (v%d)", e.File, e.Version)
}

// DecryptionError represents a cipher-level failure: wrong key, corrupted or
// foreign ciphertext, unknown format version or cipher suite.
type DecryptionError struct {
	Path    string // File path, if applicable
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *DecryptionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("decrypt error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("decrypt error: %s", e.Message)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// DataDecodeError means the payload decrypted fine but does not deserialize
// to a legitimate value.
type DataDecodeError struct {
	Path string
	Err  error
}

func (e *DataDecodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("could not decode data: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("could not decode data: %v", e.Err)
}

func (e *DataDecodeError) Unwrap() error {
	return e.Err
}

// IOError represents a file system I/O error
type IOError struct {
	Operation string // "read", "write", "remove", "load", etc.
	Path      string // File path
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("io error: %s: %s", e.Operation, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// PersistenceError is returned when the ConfigStore snapshot could not be
// written.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist config store %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// WriteVerificationError reports a write whose candidate file failed the
// round-trip check and was removed. Err is the decode or decryption failure,
// or ErrValueMismatch.
type WriteVerificationError struct {
	File    string
	Version int
	Err     error
}

func (e *WriteVerificationError) Error() string {
	return fmt.Sprintf("write verification failed for %s (v%d): %v", e.File, e.Version, e.Err)
}

func (e *WriteVerificationError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrMissingAuthor      = errors.New("file author is required")
	ErrInvalidAuthor      = errors.New("version author cannot be empty")
	ErrValueMismatch      = errors.New("re-read value does not match written value")
	ErrNoVersion          = errors.New("record has no version")
	ErrInvalidKey         = errors.New("invalid encryption key")
	ErrAuthFailed         = errors.New("authentication failed - data may be corrupted or tampered")
	ErrInvalidHeader      = errors.New("invalid file header")
	ErrUnsupportedVersion = errors.New("unsupported file format version")
	ErrUnsupportedCipher  = errors.New("unsupported cipher suite")
	ErrNilConfig          = errors.New("config cannot be nil")
	ErrNilFileSystem      = errors.New("filesystem cannot be nil")
	ErrNilKeyDerivation   = errors.New("key derivation cannot be nil")
)

// Helper functions for creating structured errors

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewDecryptionError creates a new decryption error
func NewDecryptionError(path string, err error) error {
	return &DecryptionError{
		Path:    path,
		Message: err.Error(),
		Err:     err,
	}
}

// NewIOError creates a new I/O error
func NewIOError(operation, path string, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}

// Error checking helpers

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsVersionNotFound checks if an error is a missing-version error
func IsVersionNotFound(err error) bool {
	var ve *VersionNotFoundError
	return errors.As(err, &ve)
}

// IsDecryptionError checks if an error is a decryption error
func IsDecryptionError(err error) bool {
	var de *DecryptionError
	return errors.As(err, &de)
}

// IsDataDecodeError checks if an error is a data decode error
func IsDataDecodeError(err error) bool {
	var de *DataDecodeError
	return errors.As(err, &de)
}

// IsIOError checks if an error is an I/O error
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

// IsPersistenceError checks if an error is a persistence error
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsWriteVerificationError checks if an error came from a rolled-back write
func IsWriteVerificationError(err error) bool {
	var we *WriteVerificationError
	return errors.As(err, &we)
}
