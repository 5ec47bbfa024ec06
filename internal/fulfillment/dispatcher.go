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

package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stars-storefront-go/internal/delivery"
	"stars-storefront-go/internal/metrics"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/payment"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

// Backend is the slice of the relational store driven by fulfillment
type Backend interface {
	EnsureUser(ctx context.Context, params store.EnsureUserParams) (*models.User, bool, error)
	GetProduct(ctx context.Context, productId int64) (*models.Product, error)
	Credit(ctx context.Context, params store.LedgerParams) (int64, error)
	Contribute(ctx context.Context, params store.ContributeParams) (bool, error)
	RecordBotDonation(ctx context.Context, params store.BotDonationParams) error
	AddLog(ctx context.Context, params store.AuditParams) error
	store.OrderLedger
}

// Messenger sends plain notices to the payer
type Messenger interface {
	SendMessage(ctx context.Context, chatId int64, text string) error
}

// Dispatcher turns a confirmed payment into an order and its fulfillment.
// Each payment runs to completion or to an explicit failed state; no
// refund is ever issued automatically.
type Dispatcher struct {
	backend   Backend
	deliverer delivery.Deliverer
	notifier  delivery.Notifier
	messenger Messenger
	cfg       models.StoreConfig
	metrics   *metrics.BusinessMetrics

	// Charge ids of product payments currently being fulfilled
	inflight sync.Map
}

func NewDispatcher(
	backend Backend,
	deliverer delivery.Deliverer,
	notifier delivery.Notifier,
	messenger Messenger,
	cfg models.StoreConfig,
	m *metrics.BusinessMetrics,
) *Dispatcher {
	return &Dispatcher{
		backend:   backend,
		deliverer: deliverer,
		notifier:  notifier,
		messenger: messenger,
		cfg:       cfg,
		metrics:   m,
	}
}

// HandlePayment processes one payment-confirmed callback. Replays of the
// same charge id are detected by the store and reported as Duplicate
// without any further side effect, except that a product order left
// pending by an interrupted run is finished.
func (d *Dispatcher) HandlePayment(ctx context.Context, confirmed models.SuccessfulPayment) models.FulfillmentResult {
	pc := &models.PaymentContext{ChargeId: confirmed.ChargeId, UserId: confirmed.UserId}
	ctx = models.WithPaymentContext(ctx, pc)

	result := d.handle(ctx, confirmed, pc)

	kind := string(result.Kind)
	if kind == "" {
		kind = "unknown"
	}
	d.metrics.FulfillmentTotal.WithLabelValues(kind, outcomeLabel(result)).Inc()
	return result
}

func outcomeLabel(result models.FulfillmentResult) string {
	switch {
	case result.Duplicate:
		return "duplicate"
	case result.DeliveryStatus == models.DeliveryStatusFailed && result.Status == models.OrderStatusCompleted:
		return "delivery_failed"
	case result.Success:
		return "completed"
	default:
		return "failed"
	}
}

func (d *Dispatcher) handle(ctx context.Context, confirmed models.SuccessfulPayment, pc *models.PaymentContext) models.FulfillmentResult {
	if confirmed.ChargeId == "" {
		return d.reject(ctx, confirmed, "", "payment without charge id")
	}

	payload, err := payment.ParsePayload(confirmed.InvoicePayload)
	if err != nil {
		return d.reject(ctx, confirmed, "", err.Error())
	}
	pc.Kind = payload.Kind

	if payload.UserId != confirmed.UserId {
		d.audit(ctx, payment.LogTypeSecurity, confirmed.UserId, payment.ActionPaymentFraud,
			fmt.Sprintf("confirmed charge %s for payload user %d", confirmed.ChargeId, payload.UserId))
		return d.reject(ctx, confirmed, payload.Kind, "payload user does not match payer")
	}

	_, _, err = d.backend.EnsureUser(ctx, store.EnsureUserParams{
		UserId:    confirmed.UserId,
		Username:  confirmed.Username,
		FirstName: confirmed.FirstName,
		LastName:  confirmed.LastName,
	})
	if err != nil {
		zap.L().Warn("Failed to ensure payer exists", append(pc.LogFields(), zap.Error(err))...)
	}

	switch payload.Kind {
	case models.PayloadKindProduct:
		return d.handleProduct(ctx, confirmed, payload, pc)
	case models.PayloadKindCampaign:
		return d.handleContribution(ctx, confirmed, payload)
	case models.PayloadKindDonation:
		return d.handleDonation(ctx, confirmed)
	}
	return d.reject(ctx, confirmed, payload.Kind, "unknown payload kind")
}

// reject handles a charge that cannot be matched to anything the store
// sells. No order is created; administrators reconcile it by charge id.
func (d *Dispatcher) reject(ctx context.Context, confirmed models.SuccessfulPayment, kind models.PayloadKind, reason string) models.FulfillmentResult {
	zap.L().Error("Confirmed payment rejected",
		zap.String("charge_id", confirmed.ChargeId),
		zap.Int64("user_id", confirmed.UserId),
		zap.String("payload", confirmed.InvoicePayload),
		zap.String("reason", reason))

	d.audit(ctx, payment.LogTypeError, confirmed.UserId, payment.ActionProcessingError,
		fmt.Sprintf("charge %s: %s", confirmed.ChargeId, reason))
	d.notifyAdministrators(ctx, fmt.Sprintf(
		"⚠️ Unmatched payment\nUser: <code>%d</code>\nCharge: <code>%s</code>\nAmount: %d ⭐\nReason: %s",
		confirmed.UserId, confirmed.ChargeId, confirmed.TotalAmount, reason))
	d.sendSupportMessage(ctx, confirmed.UserId, 0, confirmed.ChargeId)

	return models.FulfillmentResult{Kind: kind, Error: reason}
}

func (d *Dispatcher) sendSupportMessage(ctx context.Context, userId, orderId int64, chargeId string) {
	text := "❌ We could not complete your purchase.\n"
	if orderId != 0 {
		text += fmt.Sprintf("Order: #%d\n", orderId)
	}
	text += fmt.Sprintf("Payment: <code>%s</code>\n\nPlease contact support", chargeId)
	if d.cfg.SupportContact != "" {
		text += ": " + d.cfg.SupportContact
	}
	text += "."
	d.send(ctx, userId, text)
}

func (d *Dispatcher) send(ctx context.Context, userId int64, text string) {
	if d.messenger == nil {
		return
	}
	if err := d.messenger.SendMessage(ctx, userId, text); err != nil {
		zap.L().Warn("Failed to message payer", zap.Int64("user_id", userId), zap.Error(err))
	}
}

func (d *Dispatcher) notifyAdministrators(ctx context.Context, message string) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.NotifyAdministrators(ctx, message); err != nil {
		zap.L().Warn("Failed to notify administrators", zap.Error(err))
	}
}

func (d *Dispatcher) audit(ctx context.Context, logType string, userId int64, action, details string) {
	err := d.backend.AddLog(ctx, store.AuditParams{Type: logType, UserId: userId, Action: action, Details: details})
	if err != nil {
		zap.L().Warn("Failed to write audit log",
			zap.String("action", action),
			zap.Int64("user_id", userId),
			zap.Error(err))
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, store.ErrDuplicateOrder) || errors.Is(err, store.ErrDuplicatePayment)
}
