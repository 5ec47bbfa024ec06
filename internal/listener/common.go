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

package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"stars-storefront-go/internal/botapi"
	"stars-storefront-go/internal/gate"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"
	"stars-storefront-go/internal/worker"

	"go.uber.org/zap"
)

var (
	ErrQueueFull       = errors.New("update queue is full")
	ErrListenerStopped = errors.New("update listener is stopped")
)

// PreCheckoutValidator approves or rejects a pre-authorization request
type PreCheckoutValidator interface {
	PreCheckout(ctx context.Context, query models.PreCheckoutQuery) models.PreCheckoutResult
}

// PaymentHandler fulfills a confirmed payment
type PaymentHandler interface {
	HandlePayment(ctx context.Context, confirmed models.SuccessfulPayment) models.FulfillmentResult
}

// Bot is the outbound half of the host platform used by the listener
type Bot interface {
	AnswerPreCheckoutQuery(ctx context.Context, queryId string, ok bool, errorMessage string) error
	SendMessage(ctx context.Context, chatId int64, text string) error
}

// UserRegistry registers users on first contact
type UserRegistry interface {
	EnsureUser(ctx context.Context, params store.EnsureUserParams) (*models.User, bool, error)
}

// Gatekeeper admits ordinary commands. Pre-checkout queries are gated by
// the validator and confirmed payments are never gated.
type Gatekeeper interface {
	Admit(ctx context.Context, userId int64) gate.Decision
}

// UpdateListenerConfig contains configuration for UpdateListener
type UpdateListenerConfig struct {
	Validator       PreCheckoutValidator
	Payments        PaymentHandler
	Bot             Bot
	Users           UserRegistry
	Gate            Gatekeeper
	Pool            *worker.Pool
	QueueSize       int
	DedupWindow     time.Duration
	CleanupInterval time.Duration
	WelcomeText     string
}

// UpdateListener consumes platform updates and dispatches them to the
// payment flow on a bounded worker pool
type UpdateListener struct {
	validator PreCheckoutValidator
	payments  PaymentHandler
	bot       Bot
	users     UserRegistry
	gate      Gatekeeper
	pool      *worker.Pool

	// Recently seen update ids; the platform redelivers on slow acks
	processed       *processedSet
	dedupWindow     time.Duration
	cleanupInterval time.Duration
	welcomeText     string

	updates  chan botapi.Update
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewUpdateListener creates a new update listener
func NewUpdateListener(cfg UpdateListenerConfig) *UpdateListener {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	pool := cfg.Pool
	if pool == nil {
		pool = worker.NewPool(8)
	}
	dedupWindow := cfg.DedupWindow
	if dedupWindow <= 0 {
		dedupWindow = 10 * time.Minute
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	welcome := cfg.WelcomeText
	if welcome == "" {
		welcome = "Welcome to the store!"
	}

	return &UpdateListener{
		validator:       cfg.Validator,
		payments:        cfg.Payments,
		bot:             cfg.Bot,
		users:           cfg.Users,
		gate:            cfg.Gate,
		pool:            pool,
		processed:       newProcessedSet(),
		dedupWindow:     dedupWindow,
		cleanupInterval: cleanupInterval,
		welcomeText:     welcome,
		updates:         make(chan botapi.Update, queueSize),
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// cleanupLoop periodically forgets update ids older than the dedup window
func (l *UpdateListener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := l.processed.cleanup(time.Now().Add(-l.dedupWindow)); cleaned > 0 {
				zap.L().Debug("Cleaned up processed update ids",
					zap.Int("cleaned", cleaned),
					zap.Int("remaining", l.processed.len()))
			}
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
