/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tomoncle/loginsvc/auth"
	"github.com/tomoncle/loginsvc/bootstrap"
	"github.com/tomoncle/loginsvc/config"
	"github.com/tomoncle/loginsvc/database"
	"github.com/tomoncle/loginsvc/server"
	"github.com/tomoncle/loginsvc/utils"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "loginsvc",
		Short: "Login management API",
		Long: `loginsvc serves a login management HTTP API backed by MySQL, PostgreSQL
or SQLite.

  loginsvc initdb    Create the database and tables, then verify connectivity
  loginsvc serve     Start the HTTP server
  loginsvc config    Print the resolved configuration with secrets masked

Settings come from DB_*, SERVER_*, SECRET_KEY and LOG_* environment variables,
an optional .env file and an optional YAML config file.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file (default .env when present)")

	root.AddCommand(
		newServeCmd(opts),
		newInitDBCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Settings, error) {
	settings, err := config.Load(config.LoadOptions{ConfigFile: o.configFile, EnvFile: o.envFile})
	if err != nil {
		return nil, err
	}
	utils.ConfigureLogLevel(settings.Log.Level)
	utils.ConfigureConsoleLogFormat(settings.Log.Format)
	utils.ConfigureFileLog(settings.Log.FileEnabled, utils.FileLogOptions{
		Dir:        settings.Log.FileDir,
		MaxSizeMB:  100,
		MaxBackups: 7,
		MaxAgeDays: 30,
	})
	return settings, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, settings)
		},
	}
}

func serve(ctx context.Context, settings *config.Settings) error {
	logger := utils.NewLogger("MAIN")
	if settings.Auth.EphemeralSecret {
		logger.Warn("SECRET_KEY is not set, using an ephemeral key: tokens will not survive a restart")
	}

	engines := database.NewFactory(database.NewLogger(nil))
	defer engines.Close()
	engine, err := engines.Build(settings.ConnectionConfig())
	if err != nil {
		return err
	}
	logger.WithField("max_open_conns", engine.Stats().MaxOpenConns).Info("Connection pool configured")

	reg := database.NewSchemaRegistry()
	if err := auth.RegisterSchema(reg); err != nil {
		return err
	}

	tokens := auth.NewTokenIssuer(settings.Auth.SecretKey, settings.Auth.AccessTokenTTL(), settings.Auth.Issuer)
	svc, err := auth.NewService(auth.DefaultHasher, tokens, nil)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Deps{
		Settings: settings,
		Engine:   engine,
		Registry: reg,
		Auth:     auth.NewHandler(svc, nil),
	})
	if err != nil {
		return err
	}
	logger.WithField("version", version).WithField("database", engine.Descriptor().String()).Info("Starting loginsvc")
	return srv.Run(ctx)
}

var errInitDBFailed = errors.New("database initialization failed")

func newInitDBCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database and tables, then verify connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.load()
			if err != nil {
				return err
			}
			return initDB(cmd.Context(), settings, cmd)
		},
	}
}

func initDB(ctx context.Context, settings *config.Settings, cmd *cobra.Command) error {
	engines := database.NewFactory(database.NewLogger(nil))
	defer engines.Close()
	engine, err := engines.Build(settings.ConnectionConfig())
	if err != nil {
		return err
	}

	reg := database.NewSchemaRegistry()
	if err := auth.RegisterSchema(reg); err != nil {
		return err
	}
	proc, err := bootstrap.ForEngine(engine, reg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := proc.Run(ctx); err != nil {
		return fmt.Errorf("%w: %w", errInitDBFailed, err)
	}
	return nil
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.load()
			if err != nil {
				return err
			}
			out, err := settings.Redacted()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
}
