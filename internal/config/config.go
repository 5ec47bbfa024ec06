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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/validation"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	busyTimeout, err := getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	gateWindow, err := getEnvDuration("GATE_WINDOW", 60*time.Second)
	if err != nil {
		return nil, err
	}

	banDuration, err := getEnvDuration("GATE_BAN_DURATION", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	botTimeout, err := getEnvDuration("BOT_REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	preCheckoutTimeout, err := getEnvDuration("SERVER_PRE_CHECKOUT_TIMEOUT", 8*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	staleRateLimitAge, err := getEnvDuration("JOBS_STALE_RATE_LIMIT_AGE", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	adminIds, err := getEnvInt64List("ADMIN_IDS")
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "storefront.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
		},
		Gate: models.GateConfig{
			MaxRequests: getEnvInt("GATE_MAX_REQUESTS", 20),
			Window:      gateWindow,
			MaxFailures: getEnvInt("GATE_MAX_FAILURES", 5),
			BanDuration: banDuration,
		},
		Store: models.StoreConfig{
			Currency:        getEnvString("STORE_CURRENCY", "XTR"),
			ReferralEnabled: getEnvBool("REFERRAL_ENABLED", true),
			ReferralReward:  getEnvInt64("REFERRAL_REWARD", 10),
			PointsPerStar:   getEnvInt64("POINTS_PER_STAR", 10),
			DonationMin:     getEnvInt64("DONATION_MIN", 1),
			DonationMax:     getEnvInt64("DONATION_MAX", 2500),
			NotifyAdmins:    getEnvBool("NOTIFY_ADMINS", true),
			SupportContact:  getEnvString("SUPPORT_CONTACT", ""),
			MaintenanceMode: getEnvBool("MAINTENANCE_MODE", false),
		},
		Bot: models.BotConfig{
			Token:          os.Getenv("BOT_TOKEN"),
			ApiUrl:         getEnvString("BOT_API_URL", "https://api.telegram.org"),
			RequestTimeout: botTimeout,
			AdminIds:       adminIds,
		},
		Server: models.ServerConfig{
			ListenAddr:         getEnvString("LISTEN_ADDR", ":8080"),
			WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
			WorkerPoolSize:     getEnvInt("WORKER_POOL_SIZE", 16),
			PreCheckoutTimeout: preCheckoutTimeout,
			ShutdownTimeout:    shutdownTimeout,
			MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		},
		Jobs: models.JobsConfig{
			Enabled:                getEnvBool("JOBS_ENABLED", true),
			BanSweepSchedule:       getEnvString("JOBS_BAN_SWEEP_SCHEDULE", "@every 10m"),
			ReconcileSchedule:      getEnvString("JOBS_RECONCILE_SCHEDULE", "@hourly"),
			StockResyncSchedule:    getEnvString("JOBS_STOCK_RESYNC_SCHEDULE", "@every 5m"),
			SettingsReloadSchedule: getEnvString("JOBS_SETTINGS_RELOAD_SCHEDULE", "@every 30s"),
			StaleRateLimitAge:      staleRateLimitAge,
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every config group against its struct tags.
func Validate(cfg *models.Config) error {
	if err := validation.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvInt64List parses a comma separated list such as ADMIN_IDS=1,2,3
func getEnvInt64List(key string) ([]int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}

	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer in %s: %q (%w)", key, part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
