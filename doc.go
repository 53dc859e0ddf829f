// Package encrypteddata stores structured values as encrypted, versioned
// files on an absfs.FileSystem.
//
// # Overview
//
// Every value lives under a logical file name. Each write goes to a new,
// immutable version; one version per file may be marked active and is what
// Open returns by default. Version metadata (author and creation time) is kept
// in a ConfigStore that is persisted as a single JSON snapshot.
//
// # Basic Usage
//
//	base, _ := osfs.NewFS()
//
//	kd, err := encrypteddata.NewHKDFKeyDerivation(masterSecret)
//	if err != nil {
//	    panic(err)
//	}
//
//	ed, err := encrypteddata.New(base, &encrypteddata.Config{Algorithm: kd})
//	if err != nil {
//	    panic(err)
//	}
//
//	rec, err := ed.PrepInitialVersion("secrets", map[string]any{"api": "k"}, "alice")
//	if err != nil {
//	    panic(err)
//	}
//	_ = rec.Activate()
//
//	rec, _ = ed.Open("secrets", 0) // active version
//	value, _ := rec.Read()
//
// # Write Verification
//
// Record.Write serializes and encrypts the value, writes it, then reads it
// back through the same decrypt and decode path and compares the result with
// Equal. If anything in that round trip fails the data file is removed and a
// *WriteVerificationError is returned, so a data file that exists can always
// be decrypted back to what was written. The version number is still
// consumed: its metadata stays registered with no data file behind it.
// FindOrphans lists such versions.
//
// # Key Derivation
//
// Keys are never stored. A KeyDerivation computes the key for a version from
// its metadata, file name and version number, so it must be deterministic.
// Built in:
//   - HKDF-SHA256 over a master secret (NewHKDFKeyDerivation, NewEnvKeyDerivation)
//   - Argon2id over a password (NewPasswordKeyDerivation)
//   - PBKDF2-SHA256/512 over a password (NewPasswordKeyDerivationPBKDF2)
//
// # File Format
//
// Data files are named {FilePath}/{fileName}.{version} and written by
// AEADCodec as:
//
//	[Magic "EDAT" 4][Version 1][Cipher 1][NonceSize 2][Nonce N][Ciphertext+Tag]
//
// The header is authenticated as additional data.
//
// # Concurrency
//
// The package performs no locking. It assumes a single writer per logical
// file and per ConfigStore snapshot: two writers may compute the same next
// version, and two processes persisting the same snapshot race with
// last-writer-wins results. Callers that need more must lock around
// EncryptedData themselves; the edata command does so with a lock file.
// VerifyAll is the only operation that runs concurrently and it only reads.
package encrypteddata
