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
	"time"

	"stars-storefront-go/internal/botapi"

	"go.uber.org/zap"
)

// Start begins consuming queued updates
func (l *UpdateListener) Start(ctx context.Context) {
	zap.L().Info("Starting update listener",
		zap.Int("workers", l.pool.Size()),
		zap.Int("queue_size", cap(l.updates)),
		zap.Duration("dedup_window", l.dedupWindow))

	go l.run(ctx)
	go l.cleanupLoop(ctx)
}

// Stop stops accepting updates, drains the queue and waits for in-flight
// handlers. Payments already being fulfilled always run to completion.
func (l *UpdateListener) Stop() {
	l.stopOnce.Do(func() {
		zap.L().Info("Stopping update listener")
		close(l.stopChan)
		<-l.doneChan
		l.pool.Wait()
		zap.L().Info("Update listener stopped")
	})
}

// Enqueue hands an update to the listener without blocking. The webhook
// reports ErrQueueFull to the platform, which then redelivers.
func (l *UpdateListener) Enqueue(update botapi.Update) error {
	select {
	case <-l.stopChan:
		return ErrListenerStopped
	default:
	}

	select {
	case l.updates <- update:
		return nil
	default:
		return ErrQueueFull
	}
}

// run is the main dispatch loop
func (l *UpdateListener) run(ctx context.Context) {
	defer close(l.doneChan)

	for {
		select {
		case update := <-l.updates:
			l.processUpdate(ctx, update)
		case <-l.stopChan:
			l.drain(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain dispatches updates that were accepted before Stop
func (l *UpdateListener) drain(ctx context.Context) {
	for {
		select {
		case update := <-l.updates:
			l.processUpdate(ctx, update)
		default:
			return
		}
	}
}

// processUpdate routes a single update to its handler on the worker pool
func (l *UpdateListener) processUpdate(ctx context.Context, update botapi.Update) {
	if !l.processed.markIfNew(update.UpdateId, time.Now()) {
		zap.L().Debug("Skipping redelivered update", zap.Int64("update_id", update.UpdateId))
		return
	}

	var task func(ctx context.Context)
	switch {
	case update.PreCheckoutQuery != nil:
		query := update.PreCheckoutQuery.ToModel()
		task = func(ctx context.Context) { l.processPreCheckout(ctx, query) }

	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		confirmed, ok := update.Message.PaymentModel()
		if !ok {
			zap.L().Warn("Payment message without sender", zap.Int64("update_id", update.UpdateId))
			return
		}
		task = func(ctx context.Context) { l.processPayment(ctx, confirmed) }

	case update.Message != nil && isStartCommand(update.Message.Text):
		message := *update.Message
		task = func(ctx context.Context) { l.processStart(ctx, message) }

	default:
		return
	}

	// Handlers outlive the request that delivered them; only acquiring a
	// slot is bound to the listener's context.
	workCtx := context.WithoutCancel(ctx)
	if err := l.pool.Go(ctx, func(context.Context) { task(workCtx) }); err != nil {
		l.processed.forget(update.UpdateId)
		zap.L().Error("Dropped update, no worker available",
			zap.Int64("update_id", update.UpdateId),
			zap.Error(err))
	}
}
