// Package config resolves broker settings from defaults, an optional
// config.yaml in the base directory, and MEMBROKER_* environment
// variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rcliao/membroker/internal/embedding"
)

// Config is the resolved broker configuration.
type Config struct {
	// BaseDir holds sessions, the global partition, policies, and the
	// persistent vector store.
	BaseDir string `mapstructure:"base_dir"`

	// ProjectDir holds the project partition. Empty triggers discovery
	// from the working directory.
	ProjectDir string `mapstructure:"project_dir"`

	// SessionID pins the session. Usually left empty and set per run.
	SessionID string `mapstructure:"session_id"`

	Semantic SemanticConfig `mapstructure:"semantic"`
}

// SemanticConfig configures the similarity index and its embedder.
type SemanticConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Persist  bool   `mapstructure:"persist"`
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Dims     int    `mapstructure:"dims"`
}

// EmbeddingSettings converts the semantic section into provider
// settings.
func (s SemanticConfig) EmbeddingSettings() embedding.Settings {
	return embedding.Settings{
		Provider: s.Provider,
		Model:    s.Model,
		BaseURL:  s.BaseURL,
		APIKey:   s.APIKey,
		Dims:     s.Dims,
	}
}

// Load resolves the configuration. A missing config file is fine;
// a malformed one is an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEMBROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("base_dir", defaultBaseDir())
	v.SetDefault("project_dir", "")
	v.SetDefault("session_id", "")
	v.SetDefault("semantic.enabled", false)
	v.SetDefault("semantic.persist", true)
	v.SetDefault("semantic.provider", "hash")
	v.SetDefault("semantic.model", "")
	v.SetDefault("semantic.base_url", "")
	v.SetDefault("semantic.api_key", "")
	v.SetDefault("semantic.dims", 0)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("base_dir"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ProjectDir == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.ProjectDir = DiscoverProjectDir(wd)
		}
	}
	return &cfg, nil
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "membroker")
	}
	return filepath.Join(home, ".config", "membroker")
}

// DiscoverProjectDir walks up from start looking for a repository root
// and returns its .membroker directory, or "" when no root is found.
func DiscoverProjectDir(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return filepath.Join(dir, ".membroker")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
