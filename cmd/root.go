package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/timewise-games/content-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "content-cli",
	Short: "LLM-driven historical event generation pipeline",
	Long:  "Generates year-guessing clues through a generate/critique/revise pipeline, validates them against a leaky-phrase knowledge base, and maintains a balanced event pool.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
