package config

import (
	"os"
	"path/filepath"
)

// configExts are the config file formats understood by viper, in lookup order
var configExts = []string{"yml", "yaml", "json", "toml"}

// FindLocalConfig finds local config file by walking up directories
func FindLocalConfig(dir string) string {
	for {
		for _, ext := range configExts {
			path := filepath.Join(dir, ".incbuild."+ext)

			if _, err := os.Stat(path); err == nil {
				return path
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// FindGlobalConfig returns the first config file in the user config directory
func FindGlobalConfig(base string) string {
	if base == "" {
		return ""
	}

	for _, ext := range configExts {
		path := filepath.Join(base, "incbuild", "config."+ext)

		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
