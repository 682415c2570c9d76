package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"media-worker/internal/engine"
	"media-worker/internal/logging"
	"media-worker/internal/startup"

	"github.com/spf13/cobra"
)

var errNoServer = errors.New("no daemon address: pass --server or set ARTIFACTCTL_SERVER")

func newRootCommand() *cobra.Command {
	var configFlag, serverFlag string
	var verbose bool

	ctx := newCommandContext(&configFlag, &serverFlag, &verbose)

	rootCmd := &cobra.Command{
		Use:           "artifactctl",
		Short:         "Generate and inspect video library artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logging.SetLevel(logging.LevelDebug)
			} else if logging.GetLevel() < logging.LevelWarn {
				logging.SetLevel(logging.LevelWarn)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "TOML configuration file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", os.Getenv("ARTIFACTCTL_SERVER"), "Daemon base URL, e.g. http://localhost:8080")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity")

	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newDupesCommand(ctx))
	rootCmd.AddCommand(newCoverageCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))

	return rootCmd
}

type commandContext struct {
	configFlag *string
	serverFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *startup.Config
	configErr  error
}

func newCommandContext(configFlag, serverFlag *string, verbose *bool) *commandContext {
	return &commandContext{configFlag: configFlag, serverFlag: serverFlag, verbose: verbose}
}

func (c *commandContext) ensureConfig() (*startup.Config, error) {
	c.configOnce.Do(func() {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			if err := os.Setenv("CONFIG_FILE", path); err != nil {
				c.configErr = err
				return
			}
		}
		cfg, err := startup.Load()
		if err != nil {
			c.configErr = err
			return
		}
		// Batch runs never backfill on their own.
		cfg.Engine.Idle.Enabled = false
		c.config = cfg
	})
	return c.config, c.configErr
}

// withEngine opens an engine for the duration of fn. Background loops are
// not started.
func (c *commandContext) withEngine(ctx context.Context, fn func(*engine.Engine) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	eng, err := engine.New(ctx, cfg.Engine)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Shutdown(context.Background()); err != nil {
			logging.Warn("engine shutdown: %v", err)
		}
	}()
	return fn(eng)
}

// client returns a daemon API client, or errNoServer.
func (c *commandContext) client() (*apiClient, error) {
	server := strings.TrimSpace(*c.serverFlag)
	if server == "" {
		return nil, errNoServer
	}
	return newAPIClient(server), nil
}

func (c *commandContext) hasServer() bool {
	return strings.TrimSpace(*c.serverFlag) != ""
}
