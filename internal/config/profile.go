package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Profile is the additive, TOML-based discovery file written into a
// ".snapkeep" directory found by walking up from the current working
// directory: it lets a user run the tool from anywhere inside a known
// source tree without repeating --source/--backup-root on every
// invocation. It is independent of (and layered underneath) the
// declarative run configuration in config.go: a profile supplies
// defaults, the run config and CLI flags still win.
type Profile struct {
	// SourceRoot is the default source tree to back up.
	SourceRoot string `toml:"source_root"`
	// BackupRoot is the default backup root to write snapshots under.
	BackupRoot string `toml:"backup_root"`
	// Name labels the profile for display only.
	Name string `toml:"name"`
}

// LoadProfile reads a profile TOML file. A missing file is not an error;
// it returns a zero Profile.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	_, err := toml.DecodeFile(path, &p)
	if os.IsNotExist(err) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Save writes the profile as TOML to path, creating parent directories.
func (p Profile) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}
