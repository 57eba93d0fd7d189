package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "semmigrate.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/semmigrate"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment variables that override file configuration. Credentials are
// expected here rather than in files.
const (
	EnvSPARQLURL      = "SEMMIGRATE_SPARQL_URL"
	EnvSPARQLUsername = "SEMMIGRATE_SPARQL_USERNAME"
	EnvSPARQLPassword = "SEMMIGRATE_SPARQL_PASSWORD"
	EnvStoreURL       = "SEMMIGRATE_STORE_URL"
	EnvStoreUsername  = "SEMMIGRATE_STORE_USERNAME"
	EnvStorePassword  = "SEMMIGRATE_STORE_PASSWORD"
	EnvMongoURI       = "SEMMIGRATE_MONGO_URI"
	EnvNATSURL        = "SEMMIGRATE_NATS_URL"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
	getenv func(string) string
	home   func() (string, error)
	cwd    func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger: logger,
		getenv: os.Getenv,
		home:   os.UserHomeDir,
		cwd:    os.Getwd,
	}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/semmigrate/config.yaml)
// 3. Project config (semmigrate.yaml in current or parent directories)
// 4. The explicit file, when path is set
// 5. Environment variables
func (l *Loader) Load(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load user config
	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		if userConfig, err := readLayer(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	// Load project config
	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := readLayer(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	// An explicitly named file must exist
	if path != "" {
		explicit, err := readLayer(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", path))
		config.Merge(explicit)
	}

	l.applyEnv(config)

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnv overrides connection settings from the environment.
func (l *Loader) applyEnv(c *Config) {
	overrides := []struct {
		name string
		dst  *string
	}{
		{EnvSPARQLURL, &c.SPARQL.URL},
		{EnvSPARQLUsername, &c.SPARQL.Username},
		{EnvSPARQLPassword, &c.SPARQL.Password},
		{EnvStoreURL, &c.Store.URL},
		{EnvStoreUsername, &c.Store.Username},
		{EnvStorePassword, &c.Store.Password},
		{EnvMongoURI, &c.Mongo.URI},
		{EnvNATSURL, &c.Cache.NATSURL},
	}
	for _, o := range overrides {
		if v := l.getenv(o.name); v != "" {
			*o.dst = v
			l.logger.Debug("Applied environment override", slog.String("var", o.name))
		}
	}
}

// readLayer parses a config file without defaults so that only the keys it
// sets take part in the merge.
func readLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var layer Config
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &layer, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return fmt.Errorf("cannot determine home directory")
	}

	// Check if it already exists
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil // Already exists
	}

	// Create default config
	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := l.home()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for semmigrate.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := l.cwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}
