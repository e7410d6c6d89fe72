package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional seven configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	SSH      SSHConfig      `toml:"ssh"`

	// Unknown lists keys present in the file that no field consumed.
	Unknown []string `toml:"-"`
}

// DefaultsConfig holds persistent flag defaults. Nil means "not set".
type DefaultsConfig struct {
	Workers       *int    `toml:"workers"`
	Verify        *bool   `toml:"verify"`
	Overwrite     *bool   `toml:"overwrite"`
	CRC           *bool   `toml:"crc"`
	PreserveTimes *bool   `toml:"preserve_times"`
	CacheFolders  *int    `toml:"cache_folders"`
	BWLimit       *string `toml:"bwlimit"`
}

// SSHConfig holds defaults for archives read over SFTP.
type SSHConfig struct {
	User    *string `toml:"user"`
	Port    *int    `toml:"port"`
	KeyFile *string `toml:"key_file"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "seven", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero
// Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	for _, key := range md.Undecoded() {
		cfg.Unknown = append(cfg.Unknown, key.String())
	}
	return cfg, nil
}
