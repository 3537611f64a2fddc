// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// OS name constants for runtime.GOOS comparisons.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// UserConfigHome returns the base directory for per-user configuration on
// goos: %APPDATA% on Windows, ~/Library/Application Support on macOS, and
// $XDG_CONFIG_HOME (defaulting to ~/.config) elsewhere.
func UserConfigHome(goos string) (string, error) {
	switch goos {
	case Windows:
		if dir := os.Getenv("APPDATA"); dir != "" {
			return dir, nil
		}
		return filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming"), nil
	case Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
			return dir, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, ".config"), nil
	}
}

// HomeEnv names the variable holding the user's home directory on goos.
func HomeEnv(goos string) string {
	if goos == Windows {
		return "USERPROFILE"
	}
	return "HOME"
}

// IsWindows reports whether esdata runs on Windows.
func IsWindows() bool {
	return runtime.GOOS == Windows
}
