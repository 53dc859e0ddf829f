package encrypteddata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/absfs/absfs"
)

// NormalizeFileName lower-cases a logical file name and validates it
func NormalizeFileName(name string) (string, error) {
	name = strings.ToLower(name)
	if err := ValidateFileName(name); err != nil {
		return "", err
	}
	return name, nil
}

// DataFilePath returns {dir}/{fileName}.{version}
func DataFilePath(dir, fileName string, version int) string {
	return path.Join(dir, fileName+"."+strconv.Itoa(version))
}

// ParseDataFileName splits a data file base name into its logical file name
// and version. ok is false for anything that is not {name}.{positive int}.
func ParseDataFileName(base string) (fileName string, version int, ok bool) {
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 || idx == len(base)-1 {
		return "", 0, false
	}
	v, err := strconv.Atoi(base[idx+1:])
	if err != nil || v <= 0 {
		return "", 0, false
	}
	return base[:idx], v, true
}

// readFile reads a whole file from fs
func readFile(fs absfs.FileSystem, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// writeFile creates or truncates name and writes data to it
func writeFile(fs absfs.FileSystem, name string, data []byte, perm os.FileMode) error {
	f, err := fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	n, err := f.Write(data)
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// fileExists reports whether name exists on fs. Errors other than "not
// found" are returned.
func fileExists(fs absfs.FileSystem, name string) (bool, error) {
	_, err := fs.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
