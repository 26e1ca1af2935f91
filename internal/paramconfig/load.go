package paramconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/labtranscriber/labtranscriber/internal/labparse"
)

// FileNames are tried in order in every discovery directory.
var FileNames = []string{"config.json", "config.yaml", "config.yml"}

// Discover resolves the parameter configuration path. An explicit path must
// exist. Otherwise the executable's directory, its parent and the working
// directory are searched in that order.
func Discover(explicit string, logger zerolog.Logger) (string, error) {
	if explicit != "" {
		if !isFile(explicit) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, explicit)
		}
		return explicit, nil
	}

	var dirs []string
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		dir := filepath.Dir(exe)
		dirs = append(dirs, dir, filepath.Dir(dir))
	}
	for _, dir := range dirs {
		if p, ok := findIn(dir); ok {
			return p, nil
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		if p, ok := findIn(cwd); ok {
			logger.Warn().Str("path", p).Msg("using parameter configuration from the working directory")
			return p, nil
		}
		dirs = append(dirs, cwd)
	}

	logger.Error().Strs("searched", dirs).Msg("parameter configuration not found")
	return "", ErrNotFound
}

func findIn(dir string) (string, bool) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if isFile(p) {
			return p, true
		}
	}
	return "", false
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

// Loaded is a decoded configuration file.
type Loaded struct {
	Path     string
	Config   *labparse.Configuration
	Warnings []string
}

// LoadFile reads and decodes one configuration file.
func LoadFile(path string) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read parameter configuration: %w", err)
	}
	cfg, warnings, err := Decode(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Loaded{Path: path, Config: cfg, Warnings: warnings}, nil
}
