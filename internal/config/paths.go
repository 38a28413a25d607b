package config

import (
	"os"
	"path/filepath"
)

// GetUserConfigDir returns ~/.config/glycin, honoring XDG_CONFIG_HOME.
func GetUserConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "glycin"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "glycin"), nil
}

// GetLoaderConfigDirs returns the XDG data directories searched for
// LoaderDescriptor files, in override order: system dirs first, user dir
// last so a user-installed loader config wins on MIME collision.
func GetLoaderConfigDirs() ([]string, error) {
	var dirs []string
	if xdgDirs := os.Getenv("XDG_DATA_DIRS"); xdgDirs != "" {
		for _, d := range filepath.SplitList(xdgDirs) {
			dirs = append(dirs, filepath.Join(d, "glycin-loaders"))
		}
	} else {
		dirs = append(dirs, "/usr/share/glycin-loaders", "/usr/local/share/glycin-loaders")
	}
	userDir, err := GetUserConfigDir()
	if err != nil {
		return dirs, nil
	}
	dirs = append(dirs, filepath.Join(userDir, "loaders"))
	return dirs, nil
}

func EnsureConfigDirs(userConfigDir string) error {
	return os.MkdirAll(userConfigDir, 0755)
}
