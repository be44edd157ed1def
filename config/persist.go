package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/noculars/errors"
)

// Save writes the configuration to the given path as TOML, creating rotating
// backups (.back1, .back2, .back3) of any existing file first.
func Save(cfg *Config, path string) error {
	if err := createBackup(path); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config to %s", path)
	}

	return nil
}

// Default returns a fully populated configuration with built-in defaults,
// suitable for writing a starter noculars.toml.
func Default() (*Config, error) {
	v := newDefaultViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal default config")
	}
	return &cfg, nil
}

// createBackup creates rotating backups before modifying the config file.
// Rotation: .back3 deleted, .back2 -> .back3, .back1 -> .back2, current -> .back1.
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete oldest backup")
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, 0o644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}
