package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/djabi/snapkeep/internal/config"
	"github.com/djabi/snapkeep/internal/engine"
	"github.com/djabi/snapkeep/internal/enginerr"
	"github.com/djabi/snapkeep/internal/filter"
	"github.com/djabi/snapkeep/internal/logging"
	"github.com/djabi/snapkeep/internal/staleness"
	"github.com/urfave/cli/v2"
)

const profileName = ".snapkeep/profile.toml"

// run holds everything a command needs once the global flags, the
// discovery profile, and the declarative config file have been merged.
// It is built once in Before and read by every command.
type run struct {
	ctx        *engine.Context
	sourceRoot string
	backupRoot string
	osLabel    string
	values     config.Values
}

func main() {
	var r run

	app := &cli.App{
		Name:    "snapkeep",
		Usage:   "Hard-link snapshot backup engine",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Aliases: []string{"d"}, Usage: "Source directory to back up"},
			&cli.StringFlag{Name: "backup-root", Aliases: []string{"b"}, Usage: "Backup root directory"},
			&cli.StringFlag{Name: "config", Usage: "Declarative run configuration file"},
			&cli.StringFlag{Name: "filter", Usage: "Filter rule file"},
			&cli.BoolFlag{Name: "compare-contents", Usage: "Use byte-for-byte staleness comparison"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Assume yes on prompts"},
		},
		Before: func(c *cli.Context) error {
			cmdName := c.Args().First()
			if cmdName == "version" || cmdName == "init" || cmdName == "help" || cmdName == "h" {
				return nil
			}
			built, err := buildRun(c)
			if err != nil {
				return err
			}
			r = built
			return nil
		},
		Commands: []*cli.Command{
			versionCommand(),
			initCommand(),
			backupCommand(&r),
			statusCommand(&r),
			snapshotsCommand(&r),
			treeCommand(&r),
			previewFilterCommand(&r),
			pruneCommand(&r),
			checksumCommand(&r),
			verifyChecksumCommand(&r),
			verifyCommand(&r),
			findMissingCommand(&r),
			recoverCommand(&r),
			listCommand(&r),
			restoreCommand(&r),
			purgeCommand(&r),
			moveBackupCommand(&r),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "snapkeep:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return enginerr.ExitCode(err)
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(c *cli.Context) error {
			fmt.Printf("snapkeep version %s\n", c.App.Version)
			return nil
		},
	}
}

// buildRun resolves source/backup roots and the merged configuration:
// profile discovery (walking up for .snapkeep/profile.toml) supplies
// defaults, the declarative --config file layers on top, and explicit CLI
// flags win last.
func buildRun(c *cli.Context) (run, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return run{}, enginerr.NewFatalIOError("getwd", err)
	}

	profile, profileDir := discoverProfile(cwd)

	values := make(config.Values)
	if configPath := c.String("config"); configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return run{}, enginerr.NewConfigError("open config file %s: %v", configPath, err)
		}
		defer f.Close()
		parsed, err := config.ParseFile(f)
		if err != nil {
			return run{}, enginerr.NewConfigError("parse config file %s: %v", configPath, err)
		}
		values = parsed
	}

	sourceRoot := c.String("source")
	if sourceRoot == "" {
		sourceRoot = values.String("source", profile.SourceRoot)
	}
	if sourceRoot == "" {
		sourceRoot = profileDir
	}
	if sourceRoot == "" {
		sourceRoot = cwd
	}

	backupRoot := c.String("backup-root")
	if backupRoot == "" {
		backupRoot = values.String("backup-root", profile.BackupRoot)
	}
	if backupRoot == "" {
		return run{}, enginerr.NewConfigError("no backup root: pass --backup-root, set backup_root in %s, or add \"backup-root: <path>\" to --config", profileName)
	}

	sourceRoot, err = filepath.Abs(sourceRoot)
	if err != nil {
		return run{}, enginerr.NewConfigError("resolve source root: %v", err)
	}
	backupRoot, err = filepath.Abs(backupRoot)
	if err != nil {
		return run{}, enginerr.NewConfigError("resolve backup root: %v", err)
	}

	f := &filter.Filter{}
	if filterPath := c.String("filter"); filterPath != "" {
		file, err := os.Open(filterPath)
		if err != nil {
			return run{}, enginerr.NewConfigError("open filter file %s: %v", filterPath, err)
		}
		defer file.Close()
		compiled, err := filter.Compile(file)
		if err != nil {
			return run{}, enginerr.NewConfigError("compile filter: %v", err)
		}
		f = compiled
	}

	log := logging.New(os.Stdout, c.Bool("debug"))
	ctx := engine.New(log, f)
	if c.Bool("compare-contents") {
		ctx.Compare = staleness.Deep{}
	}

	return run{
		ctx:        ctx,
		sourceRoot: sourceRoot,
		backupRoot: backupRoot,
		osLabel:    osLabel(),
		values:     values,
	}, nil
}

func osLabel() string {
	return runtime.GOOS
}

// discoverProfile walks up from dir looking for .snapkeep/profile.toml,
// stopping at the first directory that has one.
func discoverProfile(dir string) (config.Profile, string) {
	d := dir
	for {
		candidate := filepath.Join(d, profileName)
		if _, err := os.Stat(candidate); err == nil {
			p, err := config.LoadProfile(candidate)
			if err == nil {
				return p, d
			}
		}
		parent := filepath.Dir(d)
		if parent == d {
			return config.Profile{}, ""
		}
		d = parent
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Write a .snapkeep/profile.toml discovery profile",
		ArgsUsage: "[source-dir]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "backup-root", Usage: "Default backup root for this source tree"},
			&cli.StringFlag{Name: "name", Usage: "Profile label"},
		},
		Action: func(c *cli.Context) error {
			dir := c.Args().First()
			if dir == "" {
				dir = "."
			}
			return runInit(dir, c.String("backup-root"), c.String("name"))
		},
	}
}

