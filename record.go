package encrypteddata

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"go.uber.org/zap"
)

// Record addresses one version of one logical file. It is cheap to create
// and owns nothing beyond its name and version; all state lives in the
// ConfigStore and on disk.
//
// A version moves through these states:
//
//	unversioned (0) -> prepared (metadata registered) -> written (data verified)
//
// and independently may be made active.
type Record struct {
	ed      *EncryptedData
	file    string
	version int
}

// FileName returns the normalized logical file name
func (r *Record) FileName() string {
	return r.file
}

// Version returns the version this record targets, 0 when unversioned
func (r *Record) Version() int {
	return r.version
}

// Path returns the data file location for this version
func (r *Record) Path() string {
	return r.ed.dataPath(r.file, r.version)
}

// Metadata returns the registered metadata of this version
func (r *Record) Metadata() (VersionMetadata, bool) {
	return r.ed.store.Metadata(r.file, r.version)
}

// Exists reports whether the data file for this version is present
func (r *Record) Exists() (bool, error) {
	if r.version <= 0 {
		return false, nil
	}
	return fileExists(r.ed.fs, r.Path())
}

// PrepareNextVersion registers a new version authored by author, persists the
// store and moves the record to it. An empty author is rejected before
// anything is touched.
func (r *Record) PrepareNextVersion(author string) (int, error) {
	if strings.TrimSpace(author) == "" {
		return 0, ErrMissingAuthor
	}

	store := r.ed.store
	next := store.NextVersion(r.file)
	if err := store.RegisterVersion(r.file, next, author, r.ed.now()); err != nil {
		return 0, err
	}
	if err := store.Persist(); err != nil {
		store.forgetVersion(r.file, next)
		return 0, err
	}

	r.version = next
	r.ed.log.Debug("version prepared",
		zap.String("file", r.file),
		zap.Int("version", next),
		zap.String("author", author))
	return next, nil
}

// Read decrypts and decodes this version into a generic value: maps, slices,
// strings, numbers, booleans or nil, as produced by the serializer.
func (r *Record) Read() (any, error) {
	var v any
	if err := r.load(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// ReadInto decrypts and decodes this version into target, which must be a
// non-nil pointer.
func (r *Record) ReadInto(target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return NewValidationError("target", target, "target must be a non-nil pointer")
	}
	return r.load(target)
}

// Write stores value under this record's version and verifies it.
//
// The value is serialized, encrypted and written to the canonical path, then
// immediately read back through the same decode path and compared with Equal.
// If the read fails or the values differ the file is removed and a
// *WriteVerificationError is returned. The version's metadata stays
// registered either way, so a failed write leaves a consumed version with no
// data file; FindOrphans reports those.
func (r *Record) Write(value any) error {
	key, err := r.ed.deriveKey(r.file, r.version)
	if err != nil {
		return err
	}

	payload, err := r.ed.config.Serializer.Marshal(value)
	if err != nil {
		return &ValidationError{Field: "value", Message: "value cannot be serialized", Err: err}
	}
	ciphertext, err := r.ed.config.Codec.Encrypt(payload, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s (v%d): %w", r.file, r.version, err)
	}

	p := r.Path()
	if err := writeFile(r.ed.fs, p, ciphertext, 0600); err != nil {
		return NewIOError("write", p, err)
	}

	if err := r.verify(value); err != nil {
		verr := &WriteVerificationError{File: r.file, Version: r.version, Err: err}
		r.ed.log.Warn("write verification failed, removing candidate",
			zap.String("file", r.file),
			zap.Int("version", r.version),
			zap.Error(err))
		if rmErr := r.ed.fs.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return errors.Join(verr, NewIOError("remove", p, rmErr))
		}
		return verr
	}

	r.ed.log.Debug("version written",
		zap.String("file", r.file),
		zap.Int("version", r.version),
		zap.Int("bytes", len(ciphertext)))
	return nil
}

// Rotate re-encrypts the current contents under a freshly prepared version.
// The previous version's file is left untouched; the new version is not
// activated.
func (r *Record) Rotate(author string) error {
	data, err := r.Read()
	if err != nil {
		return err
	}
	from := r.version
	if _, err := r.PrepareNextVersion(author); err != nil {
		return err
	}
	if err := r.Write(data); err != nil {
		return err
	}

	r.ed.log.Info("version rotated",
		zap.String("file", r.file),
		zap.Int("from", from),
		zap.Int("to", r.version),
		zap.String("author", author))
	return nil
}

// Activate makes this version the file's default and persists the change
func (r *Record) Activate() error {
	store := r.ed.store
	prev := 0
	if entry, ok := store.Get(r.file); ok {
		prev = entry.Active
	}

	store.SetActive(r.file, r.version)
	if err := store.Persist(); err != nil {
		store.SetActive(r.file, prev)
		return err
	}

	r.ed.log.Info("version activated",
		zap.String("file", r.file),
		zap.Int("version", r.version),
		zap.Int("previous", prev))
	return nil
}

// load reads, decrypts and decodes the data file into target
func (r *Record) load(target any) error {
	key, err := r.ed.deriveKey(r.file, r.version)
	if err != nil {
		return err
	}

	p := r.Path()
	ciphertext, err := readFile(r.ed.fs, p)
	if err != nil {
		return NewIOError("read", p, err)
	}

	plaintext, err := r.ed.config.Codec.Decrypt(ciphertext, key)
	if err != nil {
		var de *DecryptionError
		if errors.As(err, &de) && de.Path == "" {
			de.Path = p
			return de
		}
		return NewDecryptionError(p, err)
	}

	return r.decode(plaintext, target, p)
}

// decode deserializes payload into target. A payload that is exactly the
// serializer's encoding of false is accepted as false even if the serializer
// itself reports it as invalid.
func (r *Record) decode(payload []byte, target any, p string) error {
	s := r.ed.config.Serializer
	err := s.Unmarshal(payload, target)
	if err == nil {
		return nil
	}
	if falseLiteral, mErr := s.Marshal(false); mErr == nil && bytes.Equal(payload, falseLiteral) {
		if setFalse(target) {
			return nil
		}
	}
	return &DataDecodeError{Path: p, Err: err}
}

// verify re-reads this version into a fresh value of value's dynamic type
// and compares the two
func (r *Record) verify(value any) error {
	target := newTargetFor(value)
	if err := r.load(target); err != nil {
		return err
	}
	got := reflect.ValueOf(target).Elem().Interface()
	if !Equal(value, got) {
		return ErrValueMismatch
	}
	return nil
}

func newTargetFor(value any) any {
	if value == nil {
		return new(any)
	}
	return reflect.New(reflect.TypeOf(value)).Interface()
}

func setFalse(target any) bool {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	elem := rv.Elem()
	switch {
	case elem.Kind() == reflect.Bool:
		elem.SetBool(false)
	case elem.Kind() == reflect.Interface && reflect.TypeOf(false).AssignableTo(elem.Type()):
		elem.Set(reflect.ValueOf(false))
	default:
		return false
	}
	return true
}
