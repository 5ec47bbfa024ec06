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

package jobs

import (
	"context"
	"fmt"
	"time"

	"stars-storefront-go/internal/metrics"
	"stars-storefront-go/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Backend is the maintenance surface of the relational store
type Backend interface {
	SweepRateLimits(ctx context.Context, now, staleBefore time.Time) (int64, error)
	ReconcileCampaigns(ctx context.Context) ([]models.CampaignMismatch, error)
	ReconcileAllBalances(ctx context.Context) ([]models.BalanceMismatch, error)
	ResyncCodeStock(ctx context.Context) (int64, error)
}

// SettingsReloader picks up settings changed by another process
type SettingsReloader interface {
	Reload(ctx context.Context) error
}

const jobTimeout = 5 * time.Minute

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

// Scheduler runs periodic maintenance against the store
type Scheduler struct {
	cron     *cron.Cron
	backend  Backend
	settings SettingsReloader
	cfg      models.JobsConfig
	metrics  *metrics.BusinessMetrics
	now      func() time.Time
}

// NewScheduler creates a scheduler. settings may be nil.
func NewScheduler(backend Backend, settings SettingsReloader, cfg models.JobsConfig, m *metrics.BusinessMetrics) *Scheduler {
	return &Scheduler{
		// A slow run is skipped rather than stacked behind itself
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		backend:  backend,
		settings: settings,
		cfg:      cfg,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start registers every job with a non-empty schedule and starts the cron
func (s *Scheduler) Start() error {
	schedules := []job{
		{"sweep_rate_limits", s.cfg.BanSweepSchedule, s.SweepRateLimits},
		{"reconcile_campaigns", s.cfg.ReconcileSchedule, s.ReconcileCampaigns},
		{"reconcile_balances", s.cfg.ReconcileSchedule, s.ReconcileBalances},
		{"resync_code_stock", s.cfg.StockResyncSchedule, s.ResyncCodeStock},
	}
	if s.settings != nil {
		schedules = append(schedules, job{"reload_settings", s.cfg.SettingsReloadSchedule, s.settings.Reload})
	}

	for _, j := range schedules {
		j := j
		if j.schedule == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.schedule, func() { s.runJob(j.name, j.run) }); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", j.schedule, j.name, err)
		}
		zap.L().Info("Scheduled job", zap.String("job", j.name), zap.String("schedule", j.schedule))
	}

	s.cron.Start()
	zap.L().Info("Job scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop prevents new runs and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("Job scheduler stopped")
}

func (s *Scheduler) runJob(name string, run func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	if err := run(ctx); err != nil {
		s.metrics.JobRuns.WithLabelValues(name, "error").Inc()
		zap.L().Error("Job failed",
			zap.String("job", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	s.metrics.JobRuns.WithLabelValues(name, "success").Inc()
	zap.L().Debug("Job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}

// SweepRateLimits clears expired temporary bans and drops rate limit rows
// idle for longer than the configured age
func (s *Scheduler) SweepRateLimits(ctx context.Context) error {
	now := s.now()
	if _, err := s.backend.SweepRateLimits(ctx, now, now.Add(-s.cfg.StaleRateLimitAge)); err != nil {
		return fmt.Errorf("failed to sweep rate limits: %w", err)
	}
	return nil
}

// ReconcileCampaigns reports campaigns whose total drifted from their contributions
func (s *Scheduler) ReconcileCampaigns(ctx context.Context) error {
	mismatches, err := s.backend.ReconcileCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile campaigns: %w", err)
	}

	s.metrics.ReconcileMismatches.WithLabelValues("campaigns").Set(float64(len(mismatches)))
	for _, m := range mismatches {
		zap.L().Error("Campaign total out of balance",
			zap.Int64("campaign_id", m.CampaignId),
			zap.Int64("total_received", m.TotalReceived),
			zap.Int64("contributions_sum", m.ContributionsSum))
	}
	return nil
}

// ReconcileBalances reports users whose balance drifted from their journal
func (s *Scheduler) ReconcileBalances(ctx context.Context) error {
	mismatches, err := s.backend.ReconcileAllBalances(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile balances: %w", err)
	}

	s.metrics.ReconcileMismatches.WithLabelValues("balances").Set(float64(len(mismatches)))
	for _, m := range mismatches {
		zap.L().Error("Balance out of balance with journal",
			zap.Int64("user_id", m.UserId),
			zap.Int64("balance", m.Balance),
			zap.Int64("journal_sum", m.JournalSum))
	}
	return nil
}

// ResyncCodeStock rewrites the stock of code products from their unused codes
func (s *Scheduler) ResyncCodeStock(ctx context.Context) error {
	if _, err := s.backend.ResyncCodeStock(ctx); err != nil {
		return fmt.Errorf("failed to resync code stock: %w", err)
	}
	return nil
}
