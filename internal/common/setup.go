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

package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"stars-storefront-go/internal/botapi"
	"stars-storefront-go/internal/database"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/settings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Settings  *settings.Runtime
	Bot       *botapi.Client
}

// InitializeLogger installs a production zap logger as the global logger.
// LOG_LEVEL overrides the default info level.
func InitializeLogger() (*zap.Logger, func()) {
	zapConfig := zap.NewProductionConfig()
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		level, err := zapcore.ParseLevel(raw)
		if err != nil {
			log.Printf("Ignoring invalid LOG_LEVEL %q: %v\n", raw, err)
		} else {
			zapConfig.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the store, loads runtime settings and builds the
// bot API client
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	runtime, err := settings.NewRuntime(ctx, dbService, cfg.Store.MaintenanceMode)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	zap.L().Info("Runtime settings loaded",
		zap.Bool("maintenance", runtime.Maintenance()),
		zap.Int64("version", runtime.Current().Version))

	bot, err := botapi.NewClient(cfg.Bot)
	if err != nil {
		dbService.Close()
		return nil, fmt.Errorf("failed to create bot client: %w", err)
	}

	return &Services{
		DbService: dbService,
		Settings:  runtime,
		Bot:       bot,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service without the bot API.
// Useful for admin operations run from the command line.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
