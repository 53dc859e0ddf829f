package encrypteddata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VersionMetadata describes one version of a logical file. It never changes
// after registration.
type VersionMetadata struct {
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"update"`
}

// FileEntry holds the version history of one logical file
type FileEntry struct {
	Active   int                     `json:"active"`
	Versions map[int]VersionMetadata `json:"versions"`
}

// Clone returns a deep copy of the entry
func (e *FileEntry) Clone() FileEntry {
	out := FileEntry{Active: e.Active, Versions: make(map[int]VersionMetadata, len(e.Versions))}
	for v, m := range e.Versions {
		out.Versions[v] = m
	}
	return out
}

// SortedVersions returns the registered version numbers in ascending order
func (e *FileEntry) SortedVersions() []int {
	versions := make([]int, 0, len(e.Versions))
	for v := range e.Versions {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// ConfigStore owns all version metadata and persists it as a single JSON
// snapshot. It is not safe for concurrent mutation: callers must serialize
// writers per store, and two processes persisting the same snapshot race with
// last-writer-wins semantics.
type ConfigStore struct {
	fs      absfs.FileSystem
	path    string
	entries map[string]*FileEntry
	log     *zap.Logger
}

// OpenConfigStore loads the snapshot at path, or starts an empty store when
// the file does not exist yet.
func OpenConfigStore(fs absfs.FileSystem, path string, log *zap.Logger) (*ConfigStore, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &ConfigStore{
		fs:      fs,
		path:    path,
		entries: make(map[string]*FileEntry),
		log:     log,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ConfigStore) load() error {
	data, err := readFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("config store not found, starting empty", zap.String("path", s.path))
			return nil
		}
		return NewIOError("load", s.path, err)
	}

	entries := make(map[string]*FileEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return NewIOError("load", s.path, fmt.Errorf("failed to decode config store: %w", err))
	}
	for name, entry := range entries {
		if entry == nil {
			entry = &FileEntry{}
		}
		if entry.Versions == nil {
			entry.Versions = make(map[int]VersionMetadata)
		}
		s.entries[strings.ToLower(name)] = entry
	}

	s.log.Debug("config store loaded", zap.String("path", s.path), zap.Int("files", len(s.entries)))
	return nil
}

// Path returns the location of the persisted snapshot
func (s *ConfigStore) Path() string {
	return s.path
}

// Get returns a copy of the entry for fileName
func (s *ConfigStore) Get(fileName string) (FileEntry, bool) {
	entry, ok := s.entries[strings.ToLower(fileName)]
	if !ok {
		return FileEntry{}, false
	}
	return entry.Clone(), true
}

// Metadata returns the metadata registered for one version
func (s *ConfigStore) Metadata(fileName string, version int) (VersionMetadata, bool) {
	entry, ok := s.entries[strings.ToLower(fileName)]
	if !ok {
		return VersionMetadata{}, false
	}
	meta, ok := entry.Versions[version]
	return meta, ok
}

// Files returns every known logical file name, sorted
func (s *ConfigStore) Files() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextVersion returns max(existing)+1, or 1 for a file without versions
func (s *ConfigStore) NextVersion(fileName string) int {
	entry, ok := s.entries[strings.ToLower(fileName)]
	if !ok {
		return 1
	}
	next := 1
	for v := range entry.Versions {
		if v >= next {
			next = v + 1
		}
	}
	return next
}

// RegisterVersion records metadata for a new version. The timestamp is stored
// at second precision, which is what the snapshot keeps, so keys derived
// before and after a reload agree.
func (s *ConfigStore) RegisterVersion(fileName string, version int, author string, ts time.Time) error {
	if strings.TrimSpace(author) == "" {
		return ErrInvalidAuthor
	}
	if err := ValidateVersion(version); err != nil {
		return err
	}

	name := strings.ToLower(fileName)
	entry, ok := s.entries[name]
	if !ok {
		entry = &FileEntry{Versions: make(map[int]VersionMetadata)}
		s.entries[name] = entry
	}
	if _, exists := entry.Versions[version]; exists {
		return NewValidationError("version", version, "version already registered")
	}

	entry.Versions[version] = VersionMetadata{
		Author:    author,
		CreatedAt: ts.UTC().Truncate(time.Second),
	}
	return nil
}

// forgetVersion drops a registration that never reached the snapshot
func (s *ConfigStore) forgetVersion(fileName string, version int) {
	name := strings.ToLower(fileName)
	entry, ok := s.entries[name]
	if !ok {
		return
	}
	delete(entry.Versions, version)
	if len(entry.Versions) == 0 && entry.Active == 0 {
		delete(s.entries, name)
	}
}

// SetActive points the file at version without checking that it exists
func (s *ConfigStore) SetActive(fileName string, version int) {
	name := strings.ToLower(fileName)
	entry, ok := s.entries[name]
	if !ok {
		entry = &FileEntry{Versions: make(map[int]VersionMetadata)}
		s.entries[name] = entry
	}
	entry.Active = version
}

// Persist writes the whole store to a temporary sibling and renames it over
// the snapshot path. On filesystems that refuse to rename over an existing
// file (memfs among them) the old snapshot is first moved aside, so a crash
// between the two renames leaves only the .bak- sibling behind.
func (s *ConfigStore) Persist() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	if err := s.fs.MkdirAll(path.Dir(s.path), 0755); err != nil {
		return &PersistenceError{Path: s.path, Err: fmt.Errorf("failed to create config directory: %w", err)}
	}

	tmp := s.path + ".tmp-" + uuid.NewString()
	if err := writeFile(s.fs, tmp, data, 0600); err != nil {
		_ = s.fs.Remove(tmp)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := s.replace(tmp); err != nil {
		_ = s.fs.Remove(tmp)
		return &PersistenceError{Path: s.path, Err: fmt.Errorf("failed to replace snapshot: %w", err)}
	}

	s.log.Debug("config store persisted", zap.String("path", s.path), zap.Int("files", len(s.entries)))
	return nil
}

// replace renames tmp over the snapshot. When the direct rename fails and a
// snapshot exists, the snapshot is moved to a backup name, tmp takes its
// place and the backup is removed. The old snapshot is restored if tmp
// cannot be moved in.
func (s *ConfigStore) replace(tmp string) error {
	err := s.fs.Rename(tmp, s.path)
	if err == nil {
		return nil
	}
	exists, statErr := fileExists(s.fs, s.path)
	if statErr != nil || !exists {
		return err
	}

	bak := s.path + ".bak-" + uuid.NewString()
	if err := s.fs.Rename(s.path, bak); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		if restoreErr := s.fs.Rename(bak, s.path); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("failed to restore snapshot from %s: %w", bak, restoreErr))
		}
		return err
	}
	if err := s.fs.Remove(bak); err != nil {
		s.log.Warn("failed to remove snapshot backup", zap.String("path", bak), zap.Error(err))
	}
	return nil
}
