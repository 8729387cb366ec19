// Package config resolves runtime settings from defaults, an optional YAML
// file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mchmarny/readmit/pkg/bundle"
	"gopkg.in/yaml.v3"
)

const (
	// HomeDirName is the per-user directory for the registry and token file.
	HomeDirName = ".readmit"

	// RegistryFileName is the default sqlite registry inside the home dir.
	RegistryFileName = "registry.db"

	// FileName is the config file read from the home dir when no path is given.
	FileName = "config.yaml"

	dirMode  = 0700
	fileMode = 0600
)

// Environment variables read by Load.
const (
	EnvModelPath    = "MODEL_PATH"
	EnvLabelCol     = "LABEL_COL"
	EnvDataDir      = "DATA_DIR"
	EnvArtifactsDir = "ARTIFACTS_DIR"
	EnvRegistry     = "READMIT_REGISTRY"
	EnvAddress      = "READMIT_ADDRESS"
	EnvLogLevel     = "LOG_LEVEL"
	EnvCacheDir     = "READMIT_CACHE_DIR"
	EnvFetchRetries = "READMIT_FETCH_RETRIES"
)

// Config represents app config object.
type Config struct {
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir"`
	LabelCol     string `json:"label_col,omitempty" yaml:"label_col,omitempty"`
	ModelPath    string `json:"model_path,omitempty" yaml:"model_path,omitempty"`
	Address      string `json:"address" yaml:"address"`
	Registry     string `json:"registry,omitempty" yaml:"registry,omitempty"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	CacheDir     string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
	FetchRetries uint64 `json:"fetch_retries" yaml:"fetch_retries"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DataDir:      "data",
		ArtifactsDir: "artifacts",
		Address:      ":8080",
		LogLevel:     "info",
		FetchRetries: 5,
	}
}

// ModelSource returns MODEL_PATH, or the bundle inside the artifacts dir.
func (c *Config) ModelSource() string {
	if c.ModelPath != "" {
		return c.ModelPath
	}
	return filepath.Join(c.ArtifactsDir, bundle.FileName)
}

// CachePath returns the directory remote bundles are downloaded into.
func (c *Config) CachePath() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return filepath.Join(os.TempDir(), "readmit")
}

// Load builds the config from defaults, the YAML file at path when it is
// not empty, and the environment.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
		}
		slog.Debug("config file loaded", "path", path)
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides fields from set, non-empty environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		EnvModelPath:    &c.ModelPath,
		EnvLabelCol:     &c.LabelCol,
		EnvDataDir:      &c.DataDir,
		EnvArtifactsDir: &c.ArtifactsDir,
		EnvRegistry:     &c.Registry,
		EnvAddress:      &c.Address,
		EnvLogLevel:     &c.LogLevel,
		EnvCacheDir:     &c.CacheDir,
	}
	for k, p := range str {
		if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
			*p = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup(EnvFetchRetries); ok && v != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", EnvFetchRetries, v, err)
		}
		c.FetchRetries = n
	}
	return nil
}

// DefaultPath returns ~/.readmit/config.yaml without creating anything.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home dir: %w", err)
	}
	return filepath.Join(home, HomeDirName, FileName), nil
}

// Resolve returns path when set, otherwise DefaultPath when that file
// exists, otherwise an empty string.
func Resolve(path string) string {
	if path != "" {
		return path
	}
	p, err := DefaultPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// Save writes the config as YAML, creating the parent directory.
func Save(path string, c *Config) error {
	if path == "" {
		return errors.New("config path required")
	}
	if c == nil {
		return errors.New("config required")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", path, err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		err := os.Mkdir(dir, dirMode)
		if err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
