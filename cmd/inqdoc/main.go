// Package main is the inqdoc CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/cli"
	"github.com/hyperjump/inqdoc/internal/config"
	"github.com/hyperjump/inqdoc/internal/pipeline"
	"github.com/hyperjump/inqdoc/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/inqdoc/config.yaml"

// app holds the global flags shared by every command.
type app struct {
	configPath string
	debug      bool
	output     string
	serverURL  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "inqdoc",
		Short: "Index documents and answer questions about them",
		Long: `inqdoc extracts text from stored documents, chunks and embeds it into a
vector store, and answers questions with retrieved context through a chain of
completion providers.`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", defaultConfigPath, "config file path")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.StringVarP(&a.output, "output", "o", "text", "output format: text or json")
	pf.StringVar(&a.serverURL, "server", "", "send search, ask and status to a running server at this URL")

	root.AddCommand(
		a.newServeCmd(),
		a.newIngestCmd(),
		a.newSearchCmd(),
		a.newAskCmd(),
		a.newDeleteCmd(),
		a.newListCmd(),
		a.newWatchCmd(),
		a.newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present; when neither exists, defaults are used.
// Returns the config and the path that was loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			local := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(local); err == nil {
				cfg, err := config.Load(local)
				if err != nil {
					return nil, "", err
				}
				return cfg, local, nil
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func (a *app) format() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(a.output)
}

// setup loads config and builds a logger.
func (a *app) setup() (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(a.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	debug := cfg.Debug || a.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger, nil
}

// open builds the pipeline for commands that work on local storage.
func (a *app) open(ctx context.Context) (*pipeline.Pipeline, *config.Config, *zap.Logger, error) {
	cfg, logger, err := a.setup()
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := pipeline.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, fmt.Errorf("initialize: %w", err)
	}
	return p, cfg, logger, nil
}

// joinArgs joins positional args so multi-word queries work with or without quotes.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("inqdoc version %s\n", version)
		},
	}
}
