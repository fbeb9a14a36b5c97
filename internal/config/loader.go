package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is the configuration file name looked up in the
	// current and home directories.
	DefaultConfigFile = ".feedscan"

	// xdgConfigFile is the configuration file name inside XDGConfigDir.
	xdgConfigFile = "config.yaml"
)

// LoadConfigFile reads a configuration file. It returns ErrConfigNotFound
// when the file does not exist.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path is intentional
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if cf.Sites == nil {
		cf.Sites = make(map[string]SiteConfig)
	}

	if cf.Defaults.SearchMode != "" && !cf.Defaults.SearchMode.Valid() {
		return nil, fmt.Errorf("%s: defaults: %w: %q", path, ErrInvalidSearchMode, cf.Defaults.SearchMode)
	}
	for host, site := range cf.Sites {
		if site.SearchMode != "" && !site.SearchMode.Valid() {
			return nil, fmt.Errorf("%s: sites.%s: %w: %q", path, host, ErrInvalidSearchMode, site.SearchMode)
		}
	}

	return &cf, nil
}

// FindConfigFile returns the configuration file to load, or "" if there
// is none. An explicit configPath is used only if it exists; otherwise
// .feedscan in the current directory, .feedscan in the home directory and
// config.yaml in XDGConfigDir are tried in that order.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), xdgConfigFile))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
