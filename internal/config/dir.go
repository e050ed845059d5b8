// Package config loads the coursemd configuration file and locates the
// global configuration directory.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Dir returns the coursemd configuration directory.
//
// Resolution:
//   - $COURSEMD_CONFIG_HOME if set
//   - $XDG_CONFIG_HOME/coursemd if set (any platform)
//   - %AppData%/coursemd on Windows
//   - ~/.config/coursemd on macOS and Linux
func Dir() string {
	if dir := os.Getenv("COURSEMD_CONFIG_HOME"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// DefaultPath is the config file read when neither --config nor
// $COURSEMD_CONFIG names one.
func DefaultPath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

const appName = "coursemd"
