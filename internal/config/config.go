// Package config loads flatten configuration from YAML with sensible
// defaults. CLI flags override file settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the config file location relative to the working
// directory.
const DefaultConfigPath = ".flatten/config.yaml"

// ArchiveConfig controls archive handling during a run.
type ArchiveConfig struct {
	// Extract enables the archive pre-pass: supported archives found
	// among the candidates are unpacked and their contents flattened.
	Extract bool `yaml:"extract"`

	// Recurse extracts archives discovered inside extracted output, up
	// to MaxDepth nesting levels.
	Recurse bool `yaml:"recurse"`

	// MaxDepth bounds recursive extraction. Ignored unless Recurse.
	MaxDepth int `yaml:"max_depth"`

	// DeleteAfter removes a source archive once its extraction fully
	// succeeded.
	DeleteAfter bool `yaml:"delete_after"`
}

// Config holds all flatten settings.
type Config struct {
	// AllowedRoots is the whitelist of directories whose subdirectories
	// may be flattened. Empty means the current user's home directory.
	AllowedRoots []string `yaml:"allowed_roots"`

	// MaxDepth limits scan depth (0 = unlimited).
	MaxDepth int `yaml:"max_depth"`

	// IncludeHidden includes hidden files and directories in scans.
	IncludeHidden bool `yaml:"include_hidden"`

	// Extensions restricts processing to these file extensions.
	Extensions []string `yaml:"extensions"`

	// DedupSameName deletes a source whose content matches the
	// same-named destination file.
	DedupSameName bool `yaml:"dedup_same_name"`

	// DedupGlobal deletes a source whose content matches any file
	// already at the destination root, regardless of name.
	DedupGlobal bool `yaml:"dedup_global"`

	// RemoveEmptyDirs removes directories left empty after flattening.
	RemoveEmptyDirs bool `yaml:"remove_empty_dirs"`

	// LogLevel sets console verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Archive configures archive extraction.
	Archive ArchiveConfig `yaml:"archive"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:        0,
		IncludeHidden:   false,
		DedupSameName:   true,
		DedupGlobal:     false,
		RemoveEmptyDirs: true,
		LogLevel:        "info",
		Archive: ArchiveConfig{
			Extract:  false,
			Recurse:  false,
			MaxDepth: 3,
		},
	}
}

// LoadConfig loads configuration from path. A missing file returns the
// defaults without error; a malformed file is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// ResolvedAllowedRoots returns the configured whitelist, defaulting to
// the user's home directory when none is set.
func (c *Config) ResolvedAllowedRoots() ([]string, error) {
	if len(c.AllowedRoots) > 0 {
		roots := make([]string, 0, len(c.AllowedRoots))
		for _, root := range c.AllowedRoots {
			abs, err := filepath.Abs(root)
			if err != nil {
				return nil, fmt.Errorf("resolve allowed root %s: %w", root, err)
			}
			roots = append(roots, abs)
		}
		return roots, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return []string{home}, nil
}
