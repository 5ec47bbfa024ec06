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

package gate

import (
	"context"
	"errors"
	"time"

	"stars-storefront-go/internal/metrics"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

type Decision int

const (
	Allowed Decision = iota
	RateLimited
	Banned
	Maintenance
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case RateLimited:
		return "rate_limited"
	case Banned:
		return "banned"
	case Maintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// Backend is the persisted state the gate reads and writes
type Backend interface {
	store.RateLimitStore
	GetUser(ctx context.Context, userId int64) (*models.User, error)
}

// MaintenanceFlag reports whether the store is closed to customers
type MaintenanceFlag interface {
	Maintenance() bool
}

// Gate admits or rejects inbound requests per user. Counters are persisted
// on every decision so limits survive restarts. They are advisory: a storage
// error is logged and the request is admitted.
type Gate struct {
	backend         Backend
	cfg             models.GateConfig
	isAdministrator func(userId int64) bool
	maintenance     MaintenanceFlag
	metrics         *metrics.BusinessMetrics
	now             func() time.Time
}

func New(
	backend Backend,
	cfg models.GateConfig,
	isAdministrator func(userId int64) bool,
	maintenance MaintenanceFlag,
	m *metrics.BusinessMetrics,
) *Gate {
	return &Gate{
		backend:         backend,
		cfg:             cfg,
		isAdministrator: isAdministrator,
		maintenance:     maintenance,
		metrics:         m,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Admit decides whether userId may proceed. Administrators always pass.
func (g *Gate) Admit(ctx context.Context, userId int64) Decision {
	decision := g.admit(ctx, userId)
	g.metrics.GateDecisions.WithLabelValues(decision.String()).Inc()
	if decision != Allowed {
		zap.L().Info("Request rejected by gate",
			zap.Int64("user_id", userId),
			zap.String("decision", decision.String()))
	}
	return decision
}

func (g *Gate) admit(ctx context.Context, userId int64) Decision {
	if g.isAdministrator != nil && g.isAdministrator(userId) {
		return Allowed
	}
	if g.maintenance != nil && g.maintenance.Maintenance() {
		return Maintenance
	}

	user, err := g.backend.GetUser(ctx, userId)
	switch {
	case err == nil && user.IsBanned:
		return Banned
	case err != nil && !errors.Is(err, store.ErrUserNotFound):
		zap.L().Warn("Gate could not read user, admitting", zap.Int64("user_id", userId), zap.Error(err))
	}

	now := g.now()
	record, err := g.backend.GetRateLimit(ctx, userId)
	if err != nil {
		zap.L().Warn("Gate could not read rate limit, admitting", zap.Int64("user_id", userId), zap.Error(err))
		return Allowed
	}

	if record != nil && record.IsTempBanned {
		if record.TempBanUntil != nil && now.Before(*record.TempBanUntil) {
			return Banned
		}
		if err := g.backend.ClearTempBan(ctx, userId); err != nil {
			zap.L().Warn("Failed to clear expired ban", zap.Int64("user_id", userId), zap.Error(err))
		} else {
			zap.L().Info("Temporary ban expired", zap.Int64("user_id", userId))
		}
	}

	if record == nil || now.Sub(record.WindowStart) >= g.cfg.Window {
		g.saveWindow(ctx, userId, 1, now)
		return Allowed
	}

	if record.RequestCount >= int64(g.cfg.MaxRequests) {
		return RateLimited
	}

	g.saveWindow(ctx, userId, record.RequestCount+1, record.WindowStart)
	return Allowed
}

func (g *Gate) saveWindow(ctx context.Context, userId, count int64, windowStart time.Time) {
	if err := g.backend.SaveRequestWindow(ctx, userId, count, windowStart); err != nil {
		zap.L().Warn("Failed to persist request window", zap.Int64("user_id", userId), zap.Error(err))
	}
}

// RecordFailure counts an authentication or validation failure against
// userId and reports whether the user is now temporarily banned.
func (g *Gate) RecordFailure(ctx context.Context, userId int64, reason string) (bool, error) {
	if g.isAdministrator != nil && g.isAdministrator(userId) {
		return false, nil
	}

	record, err := g.backend.RecordFailedAttempt(ctx, userId, g.cfg.MaxFailures, g.now().Add(g.cfg.BanDuration))
	if err != nil {
		return false, err
	}

	zap.L().Warn("Failure recorded",
		zap.Int64("user_id", userId),
		zap.String("reason", reason),
		zap.Int64("failed_attempts", record.FailedAttempts),
		zap.Bool("banned", record.IsTempBanned))
	return record.IsTempBanned, nil
}
