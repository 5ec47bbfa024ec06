/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
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
	"fmt"
	"os"
	"strconv"

	"stars-storefront-go/internal/common"
	"stars-storefront-go/internal/config"
	"stars-storefront-go/internal/database"
	"stars-storefront-go/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

// environment is what every admin command runs against
type environment struct {
	cfg    *models.Config
	db     *database.Service
	logger *zap.Logger
}

type runFunc func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "storectl",
		Short:         "Administer the storefront database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(productCmd())
	rootCmd.AddCommand(codesCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(maintenanceCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(campaignCmd())
	return rootCmd
}

// withStore opens the configured database for the duration of one command.
// Opening applies any pending migrations.
func withStore(run runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		logger, loggerCleanup := common.InitializeLogger()
		defer loggerCleanup()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
		dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbService.Close()

		return run(ctx, &environment{cfg: cfg, db: dbService, logger: logger}, cmd, args)
	}
}

func parseId(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, raw)
	}
	return id, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and report the version",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			version, dirty, err := env.db.SchemaVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty: %t)\n", version, dirty)
			return nil
		}),
	}
}
