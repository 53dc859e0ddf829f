package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/absfs/encrypteddata"
	"github.com/absfs/osfs"
	"github.com/gofrs/flock"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var flagConfig = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to an options file (yaml, json or toml)",
	EnvVars: []string{"EDATA_OPTIONS"},
}

var flagLogJSON = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var flagLogDebug = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var flagAuthor = &cli.StringFlag{
	Name:     "author",
	Aliases:  []string{"a"},
	Required: true,
	Usage:    "Author recorded in the new version's metadata",
}

var flagVersion = &cli.IntFlag{
	Name:    "version",
	Aliases: []string{"v"},
	Usage:   "Version to use, 0 for the active version",
}

var flagActivate = &cli.BoolFlag{
	Name:  "activate",
	Usage: "Make the new version active",
}

var flagValue = &cli.StringFlag{
	Name:  "value",
	Usage: "Value to store, in the configured serializer's format",
}

var flagIn = &cli.StringFlag{
	Name:  "in",
	Usage: "Read the value from this file, - for stdin",
}

func main() {
	app := &cli.App{
		Name:  "edata",
		Usage: "Manage encrypted, versioned data files",
		Flags: []cli.Flag{
			flagConfig,
			flagLogJSON,
			flagLogDebug,
		},
		Commands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "Store a value under a new version",
				ArgsUsage: "NAME",
				Flags:     []cli.Flag{flagAuthor, flagValue, flagIn, flagActivate},
				Action: func(cCtx *cli.Context) error {
					name, err := nameArg(cCtx)
					if err != nil {
						return err
					}
					return withData(cCtx, func(ed *encrypteddata.EncryptedData) error {
						value, err := readValue(cCtx, ed.Config().Serializer)
						if err != nil {
							return err
						}
						rec, err := ed.PrepInitialVersion(name, value, cCtx.String(flagAuthor.Name))
						if err != nil {
							return err
						}
						if cCtx.Bool(flagActivate.Name) {
							if err := rec.Activate(); err != nil {
								return err
							}
						}
						fmt.Fprintf(cCtx.App.Writer, "%s v%d\n", rec.FileName(), rec.Version())
						return nil
					})
				},
			},
			{
				Name:      "get",
				Usage:     "Print a stored value",
				ArgsUsage: "NAME",
				Flags:     []cli.Flag{flagVersion},
				Action: func(cCtx *cli.Context) error {
					name, err := nameArg(cCtx)
					if err != nil {
						return err
					}
					return withData(cCtx, func(ed *encrypteddata.EncryptedData) error {
						rec, err := ed.Open(name, cCtx.Int(flagVersion.Name))
						if err != nil {
							return err
						}
						if rec.Version() == 0 {
							return fmt.Errorf("%s: %w", name, encrypteddata.ErrNoVersion)
						}
						value, err := rec.Read()
						if err != nil {
							return err
						}
						out, err := ed.Config().Serializer.Marshal(value)
						if err != nil {
							return err
						}
						_, err = fmt.Fprintln(cCtx.App.Writer, string(out))
						return err
					})
				},
			},
			{
				Name:      "rotate",
				Usage:     "Re-encrypt a file, or every file, under a new version",
				ArgsUsage: "[NAME]",
				Flags: []cli.Flag{
					flagAuthor,
					flagActivate,
					&cli.BoolFlag{Name: "all", Usage: "Rotate the active version of every file"},
					&cli.BoolFlag{Name: "dry-run", Usage: "Only report what would be rotated"},
				},
				Action: func(cCtx *cli.Context) error {
					author := cCtx.String(flagAuthor.Name)
					if cCtx.Bool("all") {
						return withData(cCtx, func(ed *encrypteddata.EncryptedData) error {
							report, err := ed.RotateAll(author, encrypteddata.RotateOptions{
								Activate: cCtx.Bool(flagActivate.Name),
								DryRun:   cCtx.Bool("dry-run"),
							})
							for _, r := range report.Rotated {
								fmt.Fprintf(cCtx.App.Writer, "rotated %s\n", r)
							}
							for _, name := range report.Skipped {
								fmt.Fprintf(cCtx.App.Writer, "skipped %s (no active version)\n", name)
							}
							for _, r := range report.Failed {
								fmt.Fprintf(cCtx.App.Writer, "failed %s\n", r)
							}
							return err
						})
					}

					name, err := nameArg(cCtx)
					if err != nil {
						return err
					}
					return withData(cCtx, func(ed *encrypteddata.EncryptedData) error {
						rec, err := ed.Open(name, 0)
						if err != nil {
							return err
						}
						if rec.Version() == 0 {
							return fmt.Errorf("%s: %w", name, encrypteddata.ErrNoVersion)
						}
						if err := rec.Rotate(author); err != nil {
							return err
						}
						if cCtx.Bool(flagActivate.Name) {
							if err := rec.Activate(); err != nil {
								return err
							}
						}
						fmt.Fprintf(cCtx.App.Writer, "%s v%d\n", rec.FileName(), rec.Version())
						return nil
					})
				},
			},
			{
				Name:      "activate",
				Usage:     "Make a registered version the default",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: flagVersion.Name, Aliases: flagVersion.Aliases, Required: true, Usage: "Version to activate"},
				},
				Action: func(cCtx *cli.Context) error {
					name, err := nameArg(cCtx)
					if err != nil {
						return err
					}
					return withData(cCtx, func(ed *encrypteddata.EncryptedData) error {
						rec, err := ed.Open(name, cCtx.Int(flagVersion.Name))
						if err != nil {
							return err
						}
						if _, ok := rec.Metadata(); !ok {
							return &encrypteddata.VersionNotFoundError{File: rec.FileName(), Version: rec.Version()}
						}
						return rec.Activate()
					})
				},
			},
			{
				Name:      "versions",
				Usage:     "List the versions of a file",
				ArgsUsage: "NAME",
				Action: func(cCtx *cli.Context) error {
					name, err := nameArg(cCtx)
					if err != nil {
						return err
					}
					return withData(cCtx, func(ed *encrypteddata.EncryptedData) error {
						entry, ok := ed.Store().Get(name)
						if !ok {
							return fmt.Errorf("%s: %w", name, encrypteddata.ErrNoVersion)
						}
						for _, v := range entry.SortedVersions() {
							meta := entry.Versions[v]
							marker := " "
							if v == entry.Active {
								marker = "*"
							}
							fmt.Fprintf(cCtx.App.Writer, "%s %4d  %-20s %s\n",
								marker, v, meta.Author, meta.CreatedAt.Format(time.RFC3339))
						}
						return nil
					})
				},
			},
			{
				Name:      "verify",
				Usage:     "Check that versions decrypt, one or all",
				ArgsUsage: "[NAME]",
				Flags:     []cli.Flag{flagVersion},
				Action: func(cCtx *cli.Context) error {
					return withData(cCtx, func(ed *encrypteddata.EncryptedData) error {
						if cCtx.Args().Len() > 0 {
							return ed.Verify(cCtx.Args().First(), cCtx.Int(flagVersion.Name))
						}
						failed, err := ed.VerifyAll()
						for _, f := range failed {
							fmt.Fprintf(cCtx.App.Writer, "failed %s\n", f)
						}
						return err
					})
				},
			},
			{
				Name:  "orphans",
				Usage: "List versions without data files and data files without versions",
				Action: func(cCtx *cli.Context) error {
					return withData(cCtx, func(ed *encrypteddata.EncryptedData) error {
						orphans, err := ed.FindOrphans()
						if err != nil {
							return err
						}
						for _, o := range orphans {
							fmt.Fprintf(cCtx.App.Writer, "missing data  %s\n", o)
						}
						strays, err := ed.FindStrays()
						if err != nil {
							return err
						}
						for _, s := range strays {
							fmt.Fprintf(cCtx.App.Writer, "unregistered  %s\n", s)
						}
						return nil
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// withData loads options, builds the logger and the EncryptedData, and runs
// fn while holding an exclusive lock next to the config snapshot
func withData(cCtx *cli.Context, fn func(*encrypteddata.EncryptedData) error) error {
	opts, err := encrypteddata.LoadOptions(cCtx.String(flagConfig.Name))
	if err != nil {
		return err
	}

	logger, err := initLogger(opts.Log, cCtx.Bool(flagLogDebug.Name), cCtx.Bool(flagLogJSON.Name))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fs, err := osfs.NewFS()
	if err != nil {
		return fmt.Errorf("failed to open filesystem: %w", err)
	}

	lockPath := opts.ConfigPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("%s is locked by another process", lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Error("failed to release lock", zap.String("path", lockPath), zap.Error(err))
		}
	}()
	logger.Debug("lock acquired", zap.String("path", lockPath))

	cfg, err := opts.Build(fs, logger)
	if err != nil {
		return err
	}
	ed, err := encrypteddata.New(fs, cfg)
	if err != nil {
		return err
	}
	return fn(ed)
}

func nameArg(cCtx *cli.Context) (string, error) {
	if cCtx.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one NAME argument, got %d", cCtx.Args().Len())
	}
	return cCtx.Args().First(), nil
}

// readValue decodes --value or --in with the configured serializer
func readValue(cCtx *cli.Context, s encrypteddata.Serializer) (any, error) {
	var data []byte
	switch {
	case cCtx.IsSet(flagValue.Name) && cCtx.IsSet(flagIn.Name):
		return nil, errors.New("--value and --in are mutually exclusive")
	case cCtx.IsSet(flagValue.Name):
		data = []byte(cCtx.String(flagValue.Name))
	case cCtx.String(flagIn.Name) == "-":
		b, err := io.ReadAll(cCtx.App.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		data = b
	case cCtx.IsSet(flagIn.Name):
		b, err := os.ReadFile(cCtx.String(flagIn.Name))
		if err != nil {
			return nil, err
		}
		data = b
	default:
		return nil, errors.New("one of --value or --in is required")
	}

	var value any
	if err := s.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to parse value: %w", err)
	}
	return value, nil
}
