package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Loaded is the resolved configuration of one invocation.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	// Exists is false when no file was found and the built-in defaults apply.
	Exists bool
}

// Load resolves the config path and parses it over the built-in defaults. A
// missing file is not an error: steno runs on defaults and says so.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := readConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Loaded{
			Path:     path,
			Config:   Default(),
			Warnings: []Warning{{Message: fmt.Sprintf("no config at %q (not found); running with built-in defaults", path)}},
		}, nil
	}
	if err != nil {
		return Loaded{}, err
	}

	cfg, warnings, err := Parse(content, Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return Loaded{Path: path, Config: cfg, Warnings: warnings, Exists: true}, nil
}

func readConfig(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		return "", fmt.Errorf("stat config %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config %q is a directory", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config %q: %w", path, err)
	}
	return string(content), nil
}
