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

package models

import (
	"slices"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Gate     GateConfig
	Store    StoreConfig
	Bot      BotConfig
	Server   ServerConfig
	Jobs     JobsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string `validate:"required"`
	MaxOpenConns    int    `validate:"gt=0"`
	MaxIdleConns    int    `validate:"gte=0"`
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration `validate:"gt=0"`
	BusyTimeout     time.Duration `validate:"gte=0"`
}

// GateConfig holds request gate limits
type GateConfig struct {
	MaxRequests int           `validate:"gt=0"`
	Window      time.Duration `validate:"gt=0"`
	MaxFailures int           `validate:"gt=0"`
	BanDuration time.Duration `validate:"gt=0"`
}

// StoreConfig holds commerce rules
type StoreConfig struct {
	Currency        string `validate:"required"`
	ReferralEnabled bool
	ReferralReward  int64 `validate:"gte=0"`
	PointsPerStar   int64 `validate:"gt=0"`
	DonationMin     int64 `validate:"gt=0"`
	DonationMax     int64 `validate:"gtefield=DonationMin"`
	NotifyAdmins    bool
	SupportContact  string
	MaintenanceMode bool
}

// BotConfig holds host platform credentials and administrators
type BotConfig struct {
	Token          string
	ApiUrl         string        `validate:"required,url"`
	RequestTimeout time.Duration `validate:"gt=0"`
	AdminIds       []int64
}

// IsAdministrator reports whether userId is a configured administrator
func (c BotConfig) IsAdministrator(userId int64) bool {
	return slices.Contains(c.AdminIds, userId)
}

// ServerConfig holds inbound webhook settings
type ServerConfig struct {
	ListenAddr         string `validate:"required"`
	WebhookSecret      string
	WorkerPoolSize     int           `validate:"gt=0"`
	PreCheckoutTimeout time.Duration `validate:"gt=0"`
	ShutdownTimeout    time.Duration `validate:"gt=0"`
	MetricsEnabled     bool
}

// JobsConfig holds cron schedules for maintenance sweeps
type JobsConfig struct {
	Enabled                bool
	BanSweepSchedule       string
	ReconcileSchedule      string
	StockResyncSchedule    string
	SettingsReloadSchedule string
	StaleRateLimitAge      time.Duration
}
