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

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/payment"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

// handleContribution books a campaign contribution. The charged amount is
// recorded as is and credited 1:1 as points.
func (d *Dispatcher) handleContribution(ctx context.Context, confirmed models.SuccessfulPayment, payload models.Payload) models.FulfillmentResult {
	result := models.FulfillmentResult{Kind: models.PayloadKindCampaign}

	recorded, err := d.backend.Contribute(ctx, store.ContributeParams{
		CampaignId:    payload.TargetId,
		ContributorId: confirmed.UserId,
		Amount:        confirmed.TotalAmount,
		ChargeId:      confirmed.ChargeId,
	})
	if err != nil {
		if errors.Is(err, store.ErrCampaignNotFound) {
			err = store.E(store.KindIntegrity, "contribute", err)
		}
		return d.reject(ctx, confirmed, result.Kind, fmt.Sprintf("contribution failed: %v", err))
	}
	if !recorded {
		zap.L().Info("Contribution already recorded, skipping",
			zap.String("charge_id", confirmed.ChargeId),
			zap.Int64("campaign_id", payload.TargetId))
		result.Duplicate = true
		return result
	}

	d.metrics.DonationAmountTotal.WithLabelValues("campaign").Add(float64(confirmed.TotalAmount))
	d.audit(ctx, payment.LogTypePayment, confirmed.UserId, payment.ActionContributionReceived,
		fmt.Sprintf("campaign %d: %d (charge %s)", payload.TargetId, confirmed.TotalAmount, confirmed.ChargeId))
	d.send(ctx, confirmed.UserId, fmt.Sprintf(
		"💝 Thank you for your contribution of %d ⭐!\nYou earned %d points.",
		confirmed.TotalAmount, confirmed.TotalAmount))

	result.Success = true
	result.Status = models.OrderStatusCompleted
	return result
}

// handleDonation books a direct donation to the store
func (d *Dispatcher) handleDonation(ctx context.Context, confirmed models.SuccessfulPayment) models.FulfillmentResult {
	result := models.FulfillmentResult{Kind: models.PayloadKindDonation}

	err := d.backend.RecordBotDonation(ctx, store.BotDonationParams{
		UserId:   confirmed.UserId,
		Username: confirmed.Username,
		Amount:   confirmed.TotalAmount,
		ChargeId: confirmed.ChargeId,
	})
	if errors.Is(err, store.ErrDuplicatePayment) {
		zap.L().Info("Donation already recorded, skipping", zap.String("charge_id", confirmed.ChargeId))
		result.Duplicate = true
		return result
	}
	if err != nil {
		return d.reject(ctx, confirmed, result.Kind, fmt.Sprintf("donation failed: %v", err))
	}

	d.metrics.DonationAmountTotal.WithLabelValues("bot").Add(float64(confirmed.TotalAmount))
	d.audit(ctx, payment.LogTypePayment, confirmed.UserId, payment.ActionDonationReceived,
		fmt.Sprintf("%d (charge %s)", confirmed.TotalAmount, confirmed.ChargeId))
	d.send(ctx, confirmed.UserId, fmt.Sprintf(
		"❤️ Thank you for supporting the store with %d ⭐!\nYou earned %d points.",
		confirmed.TotalAmount, confirmed.TotalAmount))
	d.notifyAdministrators(ctx, fmt.Sprintf("❤️ New donation\nUser: <code>%d</code>\nAmount: %d ⭐",
		confirmed.UserId, confirmed.TotalAmount))

	result.Success = true
	result.Status = models.OrderStatusCompleted
	return result
}
