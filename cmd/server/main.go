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
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"stars-storefront-go/internal/common"
	"stars-storefront-go/internal/config"
	"stars-storefront-go/internal/delivery"
	"stars-storefront-go/internal/fulfillment"
	"stars-storefront-go/internal/gate"
	"stars-storefront-go/internal/jobs"
	"stars-storefront-go/internal/listener"
	"stars-storefront-go/internal/metrics"
	"stars-storefront-go/internal/payment"
	"stars-storefront-go/internal/webhook"
	"stars-storefront-go/internal/worker"

	"go.uber.org/zap"
)

func main() {
	webhookUrl := flag.String("webhook-url", "", "Public URL to register with the bot API (default: keep the current registration)")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting storefront server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	me, err := services.Bot.GetMe(ctx)
	if err != nil {
		zap.L().Fatal("Bot API credential check failed", zap.Error(err))
	}
	zap.L().Info("Connected to bot API", zap.Int64("bot_id", me.Id), zap.String("username", me.Username))

	if *webhookUrl != "" {
		url := *webhookUrl
		if cfg.Server.WebhookSecret != "" {
			url += "/webhook/" + cfg.Server.WebhookSecret
		} else {
			url += "/webhook"
		}
		if err := services.Bot.SetWebhook(ctx, url, cfg.Server.WebhookSecret); err != nil {
			zap.L().Fatal("Failed to register webhook", zap.Error(err))
		}
		zap.L().Info("Webhook registered", zap.String("url", *webhookUrl))
	}

	// Disabled metrics still count into a private registry that is never served
	var metricsHandler http.Handler
	var businessMetrics *metrics.BusinessMetrics
	if cfg.Server.MetricsEnabled {
		businessMetrics = metrics.NewDefault()
		metricsHandler = businessMetrics.Handler()
	} else {
		businessMetrics = metrics.NewIsolated()
	}

	db := services.DbService
	requestGate := gate.New(db, cfg.Gate, cfg.Bot.IsAdministrator, services.Settings, businessMetrics)
	validator := payment.NewValidator(db, requestGate, cfg.Store, cfg.Server.PreCheckoutTimeout, businessMetrics)
	dispatcher := fulfillment.NewDispatcher(
		db,
		delivery.NewBotRegistry(services.Bot),
		delivery.NewAdminNotifier(services.Bot, cfg.Bot.AdminIds, cfg.Store.NotifyAdmins),
		services.Bot,
		cfg.Store,
		businessMetrics,
	)

	updates := listener.NewUpdateListener(listener.UpdateListenerConfig{
		Validator: validator,
		Payments:  dispatcher,
		Bot:       services.Bot,
		Users:     db,
		Gate:      requestGate,
		Pool:      worker.NewPool(cfg.Server.WorkerPoolSize),
		QueueSize: cfg.Server.WorkerPoolSize * 16,
	})
	updates.Start(ctx)

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(db, services.Settings, cfg.Jobs, businessMetrics)
		if err := scheduler.Start(); err != nil {
			zap.L().Fatal("Failed to start job scheduler", zap.Error(err))
		}
	}

	server := webhook.NewServer(cfg.Server, updates, db, metricsHandler)
	serverErrs := server.Start()

	zap.L().Info("Storefront running",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.Int("workers", cfg.Server.WorkerPoolSize),
		zap.Bool("maintenance", services.Settings.Maintenance()),
		zap.Bool("jobs", cfg.Jobs.Enabled))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping...")
	case err := <-serverErrs:
		zap.L().Error("Webhook server stopped unexpectedly", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop intake first, then let accepted payments finish
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Webhook server shutdown incomplete", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		updates.Stop()
		if scheduler != nil {
			scheduler.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Storefront stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
