package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/barke-deploy/barke/internal/config"
	"github.com/barke-deploy/barke/internal/utils"
	"github.com/barke-deploy/barke/internal/version"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

func newRootCmd() *cobra.Command {
	var logCloser io.Closer

	cmd := &cobra.Command{
		Use:           "barke",
		Short:         "Upload only what changed since the last deployment",
		Version:       version.Detailed(),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			logFile, _ := cmd.Flags().GetString("log-file")

			logger, closer, err := utils.NewLogger(utils.LogOptions{
				Console: os.Stderr,
				File:    logFile,
				Verbose: verbose,
			})
			if err != nil {
				return fmt.Errorf("log file '%s': %w", logFile, err)
			}
			slog.SetDefault(logger)
			logCloser = closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringP("config", "c", config.DefaultFileName, "deploy config file")
	cmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the config")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log every compared file and the clock offsets")
	cmd.PersistentFlags().String("log-file", "", "also write debug logs to this file")

	cmd.AddCommand(newFindCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", red("ERROR"), err)
		os.Exit(1)
	}
}

// loadConfig reads the dotenv file, the config file and BARKE_* variables,
// in that order of increasing precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("env file '%s': %w", envFile, err)
		}
	}

	configPath, _ := cmd.Flags().GetString("config")
	configPath, err := utils.ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigFile(configPath)
	if filepath.Ext(configPath) == "" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config '%s' not found, run `barke init` to create one", configPath)
		}
		return nil, fmt.Errorf("config read '%s': %w", configPath, err)
	}

	v.SetEnvPrefix("BARKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
