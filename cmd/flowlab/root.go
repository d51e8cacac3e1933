package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/flowlab-core/internal/infrastructure/config"
)

// defaultConfigPath is used when neither --config nor FLOWLAB_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the flowlab CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "flowlab",
		Short:   "FlowLab Core - flow-chemistry protocol runner",
		Long:    "Run laboratory protocols against real or simulated devices, with pause/resume, dry runs and a run archive.",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", getConfigPath(), "path to the configuration file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))

	return cmd
}

// getConfigPath returns FLOWLAB_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("FLOWLAB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the configuration file. A missing file at the default
// path falls back to built-in defaults; a missing file the user named is
// an error.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err == nil {
		return cfg, nil
	}

	explicit := cmd.Flags().Changed("config") || os.Getenv("FLOWLAB_CONFIG") != ""
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		cfg = config.Default()
		if vErr := cfg.Validate(); vErr != nil {
			return nil, fmt.Errorf("validating default config: %w", vErr)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}
