package encrypteddata

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// VersionRef names one version of one logical file
type VersionRef struct {
	File    string
	Version int
	Err     error
}

func (v VersionRef) String() string {
	if v.Err != nil {
		return fmt.Sprintf("%s (v%d): %v", v.File, v.Version, v.Err)
	}
	return fmt.Sprintf("%s (v%d)", v.File, v.Version)
}

// RotateOptions contains options for bulk rotation
type RotateOptions struct {
	// Activate makes each newly written version the active one
	Activate bool

	// DryRun reports what would be rotated without making changes
	DryRun bool
}

// RotationReport summarizes a RotateAll run
type RotationReport struct {
	// Rotated lists the new versions that were written
	Rotated []VersionRef

	// Skipped lists files that have no active version
	Skipped []string

	// Failed lists the active versions that could not be rotated
	Failed []VersionRef
}

// RotateAll re-encrypts the active version of every known file under a new
// version authored by author. Files without an active version are skipped.
// Per-file failures are collected; the returned error summarizes them.
func (e *EncryptedData) RotateAll(author string, opts RotateOptions) (RotationReport, error) {
	var report RotationReport
	if strings.TrimSpace(author) == "" {
		return report, ErrMissingAuthor
	}

	for _, name := range e.store.Files() {
		entry, _ := e.store.Get(name)
		if entry.Active == 0 {
			report.Skipped = append(report.Skipped, name)
			continue
		}

		if opts.DryRun {
			e.log.Info("dry run: would rotate",
				zap.String("file", name),
				zap.Int("version", entry.Active))
			report.Rotated = append(report.Rotated, VersionRef{File: name, Version: entry.Active})
			continue
		}

		r := &Record{ed: e, file: name, version: entry.Active}
		from := r.version
		if err := r.Rotate(author); err != nil {
			report.Failed = append(report.Failed, VersionRef{File: name, Version: from, Err: err})
			continue
		}
		if opts.Activate {
			if err := r.Activate(); err != nil {
				report.Failed = append(report.Failed, VersionRef{File: name, Version: r.version, Err: err})
				continue
			}
		}
		report.Rotated = append(report.Rotated, VersionRef{File: name, Version: r.version})
	}

	if len(report.Failed) > 0 {
		errs := make([]error, 0, len(report.Failed))
		for _, f := range report.Failed {
			errs = append(errs, f.Err)
		}
		return report, fmt.Errorf("rotation completed with %d errors (rotated %d files): %w",
			len(report.Failed), len(report.Rotated), errors.Join(errs...))
	}

	e.log.Info("rotation complete",
		zap.Int("rotated", len(report.Rotated)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Bool("dry_run", opts.DryRun))
	return report, nil
}

// Verify checks that a version can be decrypted and decoded. Version 0
// means the active version. Nothing is modified.
func (e *EncryptedData) Verify(fileName string, version int) error {
	r, err := e.Open(fileName, version)
	if err != nil {
		return err
	}
	if r.version == 0 {
		return ErrNoVersion
	}
	var v any
	return r.load(&v)
}

// VerifyAll verifies every registered version of every file and returns the
// ones that failed. Verification fans out according to Config.Parallel.
func (e *EncryptedData) VerifyAll() ([]VersionRef, error) {
	var jobs []verifyJob
	for _, name := range e.store.Files() {
		entry, _ := e.store.Get(name)
		for _, v := range entry.SortedVersions() {
			jobs = append(jobs, verifyJob{ref: VersionRef{File: name, Version: v}})
		}
	}

	runVerifyJobs(e.config.Parallel, jobs, func(ref VersionRef) error {
		r := &Record{ed: e, file: ref.File, version: ref.Version}
		var v any
		return r.load(&v)
	})

	var failed []VersionRef
	for _, j := range jobs {
		if j.err != nil {
			failed = append(failed, VersionRef{File: j.ref.File, Version: j.ref.Version, Err: j.err})
		}
	}

	if len(failed) > 0 {
		e.log.Warn("verification found failures",
			zap.Int("checked", len(jobs)),
			zap.Int("failed", len(failed)))
		return failed, fmt.Errorf("%d versions failed verification", len(failed))
	}

	e.log.Debug("verification complete", zap.Int("checked", len(jobs)))
	return nil, nil
}

// FindOrphans returns registered versions whose data file is missing. These
// are left behind by writes that failed verification.
func (e *EncryptedData) FindOrphans() ([]VersionRef, error) {
	var orphans []VersionRef
	for _, name := range e.store.Files() {
		entry, _ := e.store.Get(name)
		for _, v := range entry.SortedVersions() {
			ok, err := fileExists(e.fs, e.dataPath(name, v))
			if err != nil {
				return orphans, NewIOError("stat", e.dataPath(name, v), err)
			}
			if !ok {
				orphans = append(orphans, VersionRef{File: name, Version: v})
			}
		}
	}
	return orphans, nil
}

// FindStrays returns data files in the data directory that have no
// registered version, such as files written by another ConfigStore.
func (e *EncryptedData) FindStrays() ([]VersionRef, error) {
	infos, err := e.fs.ReadDir(e.config.FilePath)
	if err != nil {
		return nil, NewIOError("readdir", e.config.FilePath, err)
	}

	var strays []VersionRef
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		name, v, ok := ParseDataFileName(info.Name())
		if !ok {
			continue
		}
		if _, registered := e.store.Metadata(name, v); !registered {
			strays = append(strays, VersionRef{File: name, Version: v})
		}
	}
	sort.Slice(strays, func(i, j int) bool {
		if strays[i].File != strays[j].File {
			return strays[i].File < strays[j].File
		}
		return strays[i].Version < strays[j].Version
	})
	return strays, nil
}
