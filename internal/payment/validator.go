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

package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stars-storefront-go/internal/gate"
	"stars-storefront-go/internal/metrics"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

// Audit log types and actions written by the payment flow
const (
	LogTypeSecurity = "security"
	LogTypePayment  = "payment"
	LogTypePurchase = "purchase"
	LogTypeError    = "error"

	ActionPaymentFraud         = "payment_fraud_attempt"
	ActionDonationFraud        = "donation_fraud_attempt"
	ActionPriceManipulation    = "price_manipulation"
	ActionInvalidPayload       = "invalid_payload"
	ActionPreCheckoutApproved  = "precheckout_approved"
	ActionDonationApproved     = "donation_precheckout_approved"
	ActionPreCheckoutRejected  = "precheckout_rejected"
	ActionPurchaseCompleted    = "purchase_completed"
	ActionBalancePurchase      = "balance_purchase_completed"
	ActionDeliveryFailed       = "delivery_failed"
	ActionDonationReceived     = "donation_received"
	ActionContributionReceived = "campaign_contribution"
	ActionProcessingError      = "payment_processing_error"
	ActionOrderResumed         = "order_resumed"
)

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	errGateRejected        = errors.New("rejected by request gate")
)

// Backend is the read side of the store consulted before a charge
type Backend interface {
	GetProduct(ctx context.Context, productId int64) (*models.Product, error)
	CountAvailableCodes(ctx context.Context, productId int64) (int64, error)
	GetCampaign(ctx context.Context, campaignId int64) (*models.DonationCampaign, error)
	AddLog(ctx context.Context, params store.AuditParams) error
}

// Gatekeeper admits requests and counts validation failures per user
type Gatekeeper interface {
	Admit(ctx context.Context, userId int64) gate.Decision
	RecordFailure(ctx context.Context, userId int64, reason string) (bool, error)
}

// Validator answers pre-checkout queries. It only reads the store; nothing
// is reserved until the payment is confirmed.
type Validator struct {
	backend Backend
	gate    Gatekeeper
	cfg     models.StoreConfig
	timeout time.Duration
	metrics *metrics.BusinessMetrics
}

func NewValidator(
	backend Backend,
	gatekeeper Gatekeeper,
	cfg models.StoreConfig,
	timeout time.Duration,
	m *metrics.BusinessMetrics,
) *Validator {
	return &Validator{
		backend: backend,
		gate:    gatekeeper,
		cfg:     cfg,
		timeout: timeout,
		metrics: m,
	}
}

// rejection is the user-facing reason and metric label for a failed check
type rejection struct {
	outcome string
	reason  string
}

var rejections = []struct {
	err error
	rejection
}{
	{store.ErrInvalidPayload, rejection{"invalid_payload", "Invalid payment data. Please request a new invoice."}},
	{store.ErrPayerMismatch, rejection{"payer_mismatch", "Payment verification failed."}},
	{ErrUnsupportedCurrency, rejection{"currency", "This currency is not accepted."}},
	{store.ErrProductNotFound, rejection{"product_not_found", "Product not found."}},
	{store.ErrInactive, rejection{"inactive", "This product is no longer available."}},
	{store.ErrOutOfStock, rejection{"out_of_stock", "This product is out of stock."}},
	{store.ErrNoCodesAvailable, rejection{"no_codes", "This product is sold out."}},
	{store.ErrPriceMismatch, rejection{"price_mismatch", "The price has changed. Please request a new invoice."}},
	{store.ErrCampaignNotFound, rejection{"campaign_not_found", "Donation campaign not found."}},
	{store.ErrInvalidAmount, rejection{"amount", "Donation amount is out of range."}},
}

func rejectionFor(err error) rejection {
	for _, r := range rejections {
		if errors.Is(err, r.err) {
			return r.rejection
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return rejection{"timeout", "Payment could not be verified in time. Please try again."}
	}
	return rejection{"internal", "Payment could not be verified. Please try again later."}
}

func gateRejection(d gate.Decision) rejection {
	switch d {
	case gate.Maintenance:
		return rejection{d.String(), "The store is under maintenance. Please try again later."}
	case gate.Banned:
		return rejection{d.String(), "Access denied."}
	default:
		return rejection{d.String(), "Too many requests. Please slow down."}
	}
}

// PreCheckout validates a pre-authorization request. Checks run in order and
// the first failure wins. The answer is always produced, even when the store
// is slow: the deadline turns into a rejection the payer can retry.
func (v *Validator) PreCheckout(ctx context.Context, query models.PreCheckoutQuery) models.PreCheckoutResult {
	start := time.Now()
	defer func() {
		v.metrics.PreCheckoutDuration.Observe(time.Since(start).Seconds())
	}()

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	if decision := v.gate.Admit(ctx, query.UserId); decision != gate.Allowed {
		r := gateRejection(decision)
		v.metrics.PreCheckoutTotal.WithLabelValues("unknown", r.outcome).Inc()
		return models.PreCheckoutResult{Approved: false, Reason: r.reason}
	}

	kind, err := v.validate(ctx, query)
	kindLabel := string(kind)
	if kindLabel == "" {
		kindLabel = "unknown"
	}

	if err != nil {
		r := rejectionFor(err)
		v.metrics.PreCheckoutTotal.WithLabelValues(kindLabel, r.outcome).Inc()
		zap.L().Info("Pre-checkout rejected",
			zap.Int64("user_id", query.UserId),
			zap.String("query_id", query.Id),
			zap.String("outcome", r.outcome),
			zap.Error(err))
		return models.PreCheckoutResult{Approved: false, Reason: r.reason, Kind: kind}
	}

	v.metrics.PreCheckoutTotal.WithLabelValues(kindLabel, "approved").Inc()
	return models.PreCheckoutResult{Approved: true, Kind: kind}
}

func (v *Validator) validate(ctx context.Context, query models.PreCheckoutQuery) (models.PayloadKind, error) {
	payload, err := ParsePayload(query.InvoicePayload)
	if err != nil {
		v.audit(ctx, LogTypeSecurity, query.UserId, ActionInvalidPayload,
			fmt.Sprintf("payload=%q", query.InvoicePayload))
		v.recordFailure(ctx, query.UserId, "malformed invoice payload")
		return "", err
	}

	if payload.UserId != query.UserId {
		action := ActionPaymentFraud
		if payload.Kind != models.PayloadKindProduct {
			action = ActionDonationFraud
		}
		v.audit(ctx, LogTypeSecurity, query.UserId, action,
			fmt.Sprintf("payload user %d, payer %d", payload.UserId, query.UserId))
		v.recordFailure(ctx, query.UserId, "payer mismatch")
		return payload.Kind, fmt.Errorf("%w: payload %d, payer %d", store.ErrPayerMismatch, payload.UserId, query.UserId)
	}

	if query.Currency != v.cfg.Currency {
		v.rejected(ctx, query, payload.Kind, "currency "+query.Currency)
		return payload.Kind, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, query.Currency)
	}

	switch payload.Kind {
	case models.PayloadKindProduct:
		err = v.validateProduct(ctx, query, payload)
	case models.PayloadKindCampaign:
		err = v.validateCampaign(ctx, query, payload)
	case models.PayloadKindDonation:
		err = v.validateAmount(ctx, query, payload.Kind)
	default:
		err = fmt.Errorf("%w: kind %q", store.ErrInvalidPayload, payload.Kind)
	}
	if err != nil {
		return payload.Kind, err
	}

	action := ActionPreCheckoutApproved
	details := fmt.Sprintf("product %d, amount %d", payload.TargetId, query.TotalAmount)
	if payload.Kind != models.PayloadKindProduct {
		action = ActionDonationApproved
		details = fmt.Sprintf("%s %d, amount %d", payload.Kind, payload.TargetId, query.TotalAmount)
	}
	v.audit(ctx, LogTypePayment, query.UserId, action, details)
	return payload.Kind, nil
}

func (v *Validator) validateProduct(ctx context.Context, query models.PreCheckoutQuery, payload models.Payload) error {
	product, err := v.backend.GetProduct(ctx, payload.TargetId)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			v.rejected(ctx, query, payload.Kind, fmt.Sprintf("product %d not found", payload.TargetId))
		}
		return err
	}

	if !product.IsActive {
		v.rejected(ctx, query, payload.Kind, fmt.Sprintf("product %d inactive", product.Id))
		return fmt.Errorf("%w: product %d", store.ErrInactive, product.Id)
	}

	if product.IsLimited && product.Stock <= 0 {
		v.rejected(ctx, query, payload.Kind, fmt.Sprintf("product %d out of stock", product.Id))
		return fmt.Errorf("%w: product %d", store.ErrOutOfStock, product.Id)
	}

	if product.Type == models.ProductTypeCode {
		available, err := v.backend.CountAvailableCodes(ctx, product.Id)
		if err != nil {
			return err
		}
		if available <= 0 {
			v.rejected(ctx, query, payload.Kind, fmt.Sprintf("product %d has no codes", product.Id))
			return fmt.Errorf("%w: product %d", store.ErrNoCodesAvailable, product.Id)
		}
	}

	if expected := product.FinalPrice(); query.TotalAmount != expected {
		v.audit(ctx, LogTypeSecurity, query.UserId, ActionPriceManipulation,
			fmt.Sprintf("product %d: expected %d, got %d", product.Id, expected, query.TotalAmount))
		v.recordFailure(ctx, query.UserId, "price mismatch")
		return fmt.Errorf("%w: product %d expected %d, got %d",
			store.ErrPriceMismatch, product.Id, expected, query.TotalAmount)
	}
	return nil
}

func (v *Validator) validateCampaign(ctx context.Context, query models.PreCheckoutQuery, payload models.Payload) error {
	if _, err := v.backend.GetCampaign(ctx, payload.TargetId); err != nil {
		if errors.Is(err, store.ErrCampaignNotFound) {
			v.rejected(ctx, query, payload.Kind, fmt.Sprintf("campaign %d not found", payload.TargetId))
		}
		return err
	}
	return v.validateAmount(ctx, query, payload.Kind)
}

func (v *Validator) validateAmount(ctx context.Context, query models.PreCheckoutQuery, kind models.PayloadKind) error {
	if query.TotalAmount < v.cfg.DonationMin || query.TotalAmount > v.cfg.DonationMax {
		v.rejected(ctx, query, kind, fmt.Sprintf("amount %d outside %d..%d",
			query.TotalAmount, v.cfg.DonationMin, v.cfg.DonationMax))
		return fmt.Errorf("%w: %d", store.ErrInvalidAmount, query.TotalAmount)
	}
	return nil
}

func (v *Validator) rejected(ctx context.Context, query models.PreCheckoutQuery, kind models.PayloadKind, details string) {
	v.audit(ctx, LogTypePayment, query.UserId, ActionPreCheckoutRejected, fmt.Sprintf("%s: %s", kind, details))
}

func (v *Validator) recordFailure(ctx context.Context, userId int64, reason string) {
	if _, err := v.gate.RecordFailure(ctx, userId, reason); err != nil {
		zap.L().Warn("Failed to record validation failure",
			zap.Int64("user_id", userId),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

func (v *Validator) audit(ctx context.Context, logType string, userId int64, action, details string) {
	err := v.backend.AddLog(ctx, store.AuditParams{
		Type:    logType,
		UserId:  userId,
		Action:  action,
		Details: details,
	})
	if err != nil {
		zap.L().Warn("Failed to write audit log",
			zap.String("type", logType),
			zap.String("action", action),
			zap.Int64("user_id", userId),
			zap.Error(err))
	}
}
