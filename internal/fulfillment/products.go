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
	"html"

	"stars-storefront-go/internal/delivery"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/payment"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

// orderParams snapshots the product as charged. The charged amount is
// authoritative: the discount is whatever separates it from the list price.
func orderParams(confirmed models.SuccessfulPayment, productId int64, product *models.Product) store.CreateOrderParams {
	params := store.CreateOrderParams{
		UserId:      confirmed.UserId,
		ProductId:   productId,
		ProductName: fmt.Sprintf("product #%d", productId),
		PaymentId:   confirmed.ChargeId,
		Price:       confirmed.TotalAmount,
	}
	if product == nil {
		return params
	}

	params.ProductName = product.Name
	if discount := product.Price - confirmed.TotalAmount; discount >= 0 && discount <= product.Price {
		params.Price = product.Price
		params.DiscountAmount = discount
	}
	return params
}

func (d *Dispatcher) handleProduct(ctx context.Context, confirmed models.SuccessfulPayment, payload models.Payload, pc *models.PaymentContext) models.FulfillmentResult {
	result := models.FulfillmentResult{Kind: models.PayloadKindProduct}

	// Replays racing the first run must not resume its pending order
	if _, running := d.inflight.LoadOrStore(confirmed.ChargeId, struct{}{}); running {
		zap.L().Info("Payment is being fulfilled, skipping replay", pc.LogFields()...)
		result.Duplicate = true
		return result
	}
	defer d.inflight.Delete(confirmed.ChargeId)

	product, err := d.backend.GetProduct(ctx, payload.TargetId)
	if err != nil && !errors.Is(err, store.ErrProductNotFound) {
		return d.reject(ctx, confirmed, result.Kind, fmt.Sprintf("product lookup failed: %v", err))
	}
	if err != nil {
		product = nil
	}

	placement, err := d.backend.PlaceOrder(ctx, store.PlaceOrderParams{
		CreateOrderParams: orderParams(confirmed, payload.TargetId, product),
		Product:           product,
	})
	if isDuplicate(err) {
		return d.resumeOrder(ctx, confirmed, pc)
	}
	if err != nil {
		return d.reject(ctx, confirmed, result.Kind, fmt.Sprintf("order creation failed: %v", err))
	}
	pc.OrderId = placement.OrderId

	if placement.Failure != nil {
		return d.reportFailure(ctx, confirmed, placement.OrderId, models.DeliveryStatusFailed, placement.Failure)
	}
	if product.Type == models.ProductTypeBalance {
		return d.completeBalance(ctx, confirmed, product, placement.OrderId, placement.Credited)
	}

	order, err := d.backend.GetOrder(ctx, placement.OrderId)
	if err != nil {
		return d.failOrder(ctx, confirmed, placement.OrderId, models.DeliveryStatusFailed, err)
	}
	return d.deliverAndComplete(ctx, confirmed, product, order)
}

// resumeOrder handles a charge whose order already exists. Settled orders
// are plain duplicates. A pending order was placed, with its goods already
// reserved, by a run that never finished: it is delivered and completed now.
func (d *Dispatcher) resumeOrder(ctx context.Context, confirmed models.SuccessfulPayment, pc *models.PaymentContext) models.FulfillmentResult {
	result := models.FulfillmentResult{Kind: models.PayloadKindProduct, Duplicate: true}

	order, err := d.backend.GetOrderByPaymentId(ctx, confirmed.ChargeId)
	if err != nil {
		zap.L().Error("Failed to load order of replayed payment", append(pc.LogFields(), zap.Error(err))...)
		return result
	}
	pc.OrderId = order.Id
	result.OrderId = order.Id
	result.Status = order.Status
	result.DeliveryStatus = order.DeliveryStatus

	if order.Status != models.OrderStatusPending {
		zap.L().Info("Payment already fulfilled, skipping", pc.LogFields()...)
		return result
	}

	zap.L().Warn("Resuming interrupted order", pc.LogFields()...)
	d.audit(ctx, payment.LogTypePayment, confirmed.UserId, payment.ActionOrderResumed,
		fmt.Sprintf("order %d for charge %s", order.Id, confirmed.ChargeId))

	product, err := d.backend.GetProduct(ctx, order.ProductId)
	if err != nil {
		return d.failOrder(ctx, confirmed, order.Id, models.DeliveryStatusFailed,
			store.E(store.KindIntegrity, "resume order", err))
	}
	if product.Type == models.ProductTypeBalance {
		// The credit was committed with the order
		amount, _ := models.ParseBalanceCredit(product.DeliveryContent)
		return d.completeBalance(ctx, confirmed, product, order.Id, amount)
	}
	return d.deliverAndComplete(ctx, confirmed, product, order)
}

// deliverAndComplete hands the reserved goods to the buyer and completes
// the order. A failed delivery still completes it, with delivery failed.
func (d *Dispatcher) deliverAndComplete(ctx context.Context, confirmed models.SuccessfulPayment, product *models.Product, order *models.Order) models.FulfillmentResult {
	result := models.FulfillmentResult{Kind: models.PayloadKindProduct, OrderId: order.Id}

	deliveryStatus := models.DeliveryStatusDelivered
	deliveryErr := d.deliverer.Deliver(ctx, confirmed.UserId, product, order)
	if deliveryErr != nil {
		deliveryStatus = models.DeliveryStatusFailed
		d.metrics.DeliveryFailures.WithLabelValues(string(product.Type)).Inc()
		zap.L().Error("Delivery failed after payment",
			zap.Int64("order_id", order.Id),
			zap.Int64("product_id", product.Id),
			zap.String("charge_id", confirmed.ChargeId),
			zap.Error(deliveryErr))
		d.audit(ctx, payment.LogTypeError, confirmed.UserId, payment.ActionDeliveryFailed,
			fmt.Sprintf("order %d: %v", order.Id, deliveryErr))
	}

	completion, err := d.backend.CompleteOrder(ctx, store.CompleteOrderParams{
		OrderId:        order.Id,
		DeliveryStatus: deliveryStatus,
	})
	if err != nil {
		return d.failOrder(ctx, confirmed, order.Id, deliveryStatus, err)
	}
	d.afterCompletion(ctx, confirmed, product, order.Id, completion)

	result.Status = models.OrderStatusCompleted
	result.DeliveryStatus = deliveryStatus
	if deliveryErr != nil {
		result.Error = deliveryErr.Error()
		d.notifyAdministrators(ctx, fmt.Sprintf(
			"⚠️ Paid order #%d was not delivered\nUser: <code>%d</code>\nProduct: %s\nCharge: <code>%s</code>",
			order.Id, confirmed.UserId, html.EscapeString(product.Name), confirmed.ChargeId))
		d.sendSupportMessage(ctx, confirmed.UserId, order.Id, confirmed.ChargeId)
		return result
	}

	result.Success = true
	return result
}

// completeBalance completes a balance product order whose credit was
// committed together with the order. Stock is never touched for balance
// products.
func (d *Dispatcher) completeBalance(ctx context.Context, confirmed models.SuccessfulPayment, product *models.Product, orderId, amount int64) models.FulfillmentResult {
	completion, err := d.backend.CompleteOrder(ctx, store.CompleteOrderParams{
		OrderId:        orderId,
		DeliveryStatus: models.DeliveryStatusDelivered,
	})
	if err != nil {
		return d.failOrder(ctx, confirmed, orderId, models.DeliveryStatusFailed, err)
	}

	d.send(ctx, confirmed.UserId, fmt.Sprintf("💰 <b>%s</b>\n\n✅ %d ⭐ added to your balance!",
		html.EscapeString(product.Name), amount))
	d.audit(ctx, payment.LogTypePurchase, confirmed.UserId, payment.ActionBalancePurchase,
		fmt.Sprintf("order %d: credited %d", orderId, amount))
	d.afterCompletion(ctx, confirmed, product, orderId, completion)

	return models.FulfillmentResult{
		Success:        true,
		Kind:           models.PayloadKindProduct,
		OrderId:        orderId,
		Status:         models.OrderStatusCompleted,
		DeliveryStatus: models.DeliveryStatusDelivered,
	}
}

// failOrder moves the order to failed and reports it
func (d *Dispatcher) failOrder(ctx context.Context, confirmed models.SuccessfulPayment, orderId int64, deliveryStatus models.DeliveryStatus, cause error) models.FulfillmentResult {
	err := d.backend.UpdateStatus(ctx, store.UpdateStatusParams{
		OrderId:        orderId,
		Status:         models.OrderStatusFailed,
		DeliveryStatus: deliveryStatus,
	})
	if err != nil {
		zap.L().Error("Failed to mark order failed", zap.Int64("order_id", orderId), zap.Error(err))
	}
	return d.reportFailure(ctx, confirmed, orderId, deliveryStatus, cause)
}

// reportFailure tells the payer to contact support. Administrators are told
// about every failed paid order since any refund is manual.
func (d *Dispatcher) reportFailure(ctx context.Context, confirmed models.SuccessfulPayment, orderId int64, deliveryStatus models.DeliveryStatus, cause error) models.FulfillmentResult {
	kind := store.KindOf(cause)
	zap.L().Error("Order failed",
		zap.Int64("order_id", orderId),
		zap.String("charge_id", confirmed.ChargeId),
		zap.Int64("user_id", confirmed.UserId),
		zap.String("error_kind", kind.String()),
		zap.Error(cause))

	d.audit(ctx, payment.LogTypeError, confirmed.UserId, payment.ActionProcessingError,
		fmt.Sprintf("order %d (%s): %v", orderId, kind, cause))
	d.notifyAdministrators(ctx, fmt.Sprintf(
		"❌ Order #%d failed (%s)\nUser: <code>%d</code>\nCharge: <code>%s</code>\nAmount: %d ⭐\nError: %s",
		orderId, kind, confirmed.UserId, confirmed.ChargeId, confirmed.TotalAmount, html.EscapeString(cause.Error())))
	d.sendSupportMessage(ctx, confirmed.UserId, orderId, confirmed.ChargeId)

	return models.FulfillmentResult{
		Kind:           models.PayloadKindProduct,
		OrderId:        orderId,
		Status:         models.OrderStatusFailed,
		DeliveryStatus: deliveryStatus,
		Error:          cause.Error(),
	}
}

// afterCompletion pays the referral reward on a first purchase and sends
// the receipt and notifications.
func (d *Dispatcher) afterCompletion(ctx context.Context, confirmed models.SuccessfulPayment, product *models.Product, orderId int64, completion *models.CompletionResult) {
	d.metrics.RevenueTotal.WithLabelValues(string(product.Type)).Add(float64(completion.FinalPrice))

	if completion.FirstPurchase && completion.ReferrerId != nil {
		d.rewardReferrer(ctx, *completion.ReferrerId, confirmed.UserId)
	}

	d.audit(ctx, payment.LogTypePurchase, confirmed.UserId, payment.ActionPurchaseCompleted,
		fmt.Sprintf("order %d: product %d for %d", orderId, product.Id, completion.FinalPrice))

	if order, err := d.backend.GetOrder(ctx, orderId); err == nil {
		d.send(ctx, confirmed.UserId, delivery.FormatReceipt(order))
	} else {
		zap.L().Warn("Failed to load order for receipt", zap.Int64("order_id", orderId), zap.Error(err))
	}

	d.notifyAdministrators(ctx, fmt.Sprintf(
		"🛒 New purchase\nOrder: #%d\nUser: <code>%d</code>\nProduct: %s\nAmount: %d ⭐",
		orderId, confirmed.UserId, html.EscapeString(product.Name), completion.FinalPrice))
}

// rewardReferrer credits the referrer once per referred buyer. The ledger
// reference makes a replay a no-op.
func (d *Dispatcher) rewardReferrer(ctx context.Context, referrerId, buyerId int64) {
	if !d.cfg.ReferralEnabled || d.cfg.ReferralReward <= 0 {
		return
	}

	_, err := d.backend.Credit(ctx, store.LedgerParams{
		UserId:    referrerId,
		Amount:    d.cfg.ReferralReward,
		Kind:      store.EntryKindReferral,
		Reference: fmt.Sprintf("referral:%d", buyerId),
	})
	switch {
	case errors.Is(err, store.ErrDuplicatePayment):
		return
	case err != nil:
		zap.L().Error("Failed to pay referral reward",
			zap.Int64("referrer_id", referrerId),
			zap.Int64("buyer_id", buyerId),
			zap.Error(err))
		return
	}

	zap.L().Info("Referral reward paid",
		zap.Int64("referrer_id", referrerId),
		zap.Int64("buyer_id", buyerId),
		zap.Int64("amount", d.cfg.ReferralReward))
	d.send(ctx, referrerId, fmt.Sprintf("🎁 Your referral made a first purchase. %d ⭐ added to your balance!", d.cfg.ReferralReward))
}
