// Package cli implements the membroker CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/membroker/internal/broker"
	"github.com/rcliao/membroker/internal/config"
	"github.com/rcliao/membroker/internal/embedding"
	"github.com/rcliao/membroker/internal/semantic"
	"github.com/rcliao/membroker/internal/semantic/chromem"
)

var (
	baseDirFlag  string
	projectFlag  string
	sessionFlag  string
	semanticFlag bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "membroker",
	Short: "Shared memory for multi-agent sessions",
	Long: "membroker is a persistent, multi-scope memory store for agent sessions.\n" +
		"Memories are scored, redacted, and routed to session, project, or global\n" +
		"partitions, and recalled by keyword, similarity, or token budget.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&baseDirFlag, "dir", "d", "", "Base directory (default: $MEMBROKER_BASE_DIR or ~/.config/membroker)")
	RootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "Project directory override (default: discovered from the repo root)")
	RootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "Session id (default: $MEMBROKER_SESSION_ID or a fresh one)")
	RootCmd.PersistentFlags().BoolVar(&semanticFlag, "semantic", false, "Enable the semantic index for this invocation")
}

// loadConfig resolves config and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if baseDirFlag != "" {
		cfg.BaseDir = baseDirFlag
	}
	if projectFlag != "" {
		cfg.ProjectDir = projectFlag
	}
	if sessionFlag != "" {
		cfg.SessionID = sessionFlag
	}
	if semanticFlag {
		cfg.Semantic.Enabled = true
	}
	return cfg, nil
}

func openBroker() (*broker.Broker, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var index semantic.Index
	if cfg.Semantic.Enabled {
		index, err = openIndex(cfg)
		if err != nil {
			return nil, err
		}
	}

	return broker.New(broker.Options{
		BaseDir:    cfg.BaseDir,
		ProjectDir: cfg.ProjectDir,
		SessionID:  cfg.SessionID,
		Semantic:   index,
	})
}

func openIndex(cfg *config.Config) (semantic.Index, error) {
	embedder, err := embedding.New(cfg.Semantic.EmbeddingSettings())
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, nil
	}
	fn := embedding.AsChromemFunc(embedder)
	if cfg.Semantic.Persist {
		return chromem.NewPersistent(filepath.Join(cfg.BaseDir, "vectors"), fn)
	}
	return chromem.New(fn)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
