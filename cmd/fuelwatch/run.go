// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wneessen/fuelwatch/internal/config"
	"github.com/wneessen/fuelwatch/internal/i18n"
	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/service"
)

var confPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fuelwatch daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
		defer cancel()
		return runDaemon(ctx)
	},
}

func init() {
	runCmd.Flags().StringVar(&confPath, "config", "", "path to the config file")
	rootCmd.AddCommand(runCmd)
}

func runDaemon(ctx context.Context) error {
	log := logger.New(slog.LevelError)

	conf, err := loadConfig(confPath)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		return err
	}

	log = logger.New(conf.LogLevel)
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		return err
	}

	serv, err := service.New(conf, log, t)
	if err != nil {
		log.Error("failed to initialize fuelwatch service", logger.Err(err))
		return err
	}

	log.Info(t.Get("starting fuelwatch service"), slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(t.Get("failed to start fuelwatch service"), logger.Err(err))
		return err
	}
	log.Info(t.Get("shutting down fuelwatch service"))
	return nil
}

// loadConfig reads the config file at path. Without a path the default location is tried
// and the built-in defaults are used if there is no file either.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.NewFromFile(filepath.Dir(path), filepath.Base(path))
	}
	if dir, file := findConfigFile(); dir != "" && file != "" {
		return config.NewFromFile(dir, file)
	}
	return config.New()
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", "fuelwatch", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
