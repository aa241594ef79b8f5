// Package config holds the trustgate CLI configuration.
package config

import (
	"os"
	"path/filepath"
)

// appName names the trustgate directory under the XDG base directories.
const appName = "trustgate"

// FileName is the name of the config file inside Dir.
const FileName = "config.yaml"

// Dir returns the trustgate config directory.
// Uses XDG_CONFIG_HOME/trustgate, defaulting to ~/.config/trustgate.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// File returns the path of the default config file.
func File() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}
