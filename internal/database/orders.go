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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var status, deliveryStatus string
	var completedAt sql.NullTime
	err := row.Scan(
		&o.Id,
		&o.UserId,
		&o.ProductId,
		&o.ProductName,
		&o.PaymentId,
		&o.Price,
		&o.DiscountAmount,
		&o.FinalPrice,
		&status,
		&deliveryStatus,
		&o.DeliveryContent,
		&o.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	o.DeliveryStatus = models.DeliveryStatus(deliveryStatus)
	o.CompletedAt = nullTimePtr(completedAt)
	return &o, nil
}

// CreateOrder inserts a pending order. The unique payment id makes this the
// idempotency boundary for confirmed payments: a replay gets ErrDuplicateOrder.
func (s *Service) CreateOrder(ctx context.Context, params store.CreateOrderParams) (int64, error) {
	orderId, err := s.insertOrder(ctx, s.db, params)
	if err != nil {
		return 0, err
	}

	zap.L().Info("Order created",
		zap.Int64("order_id", orderId),
		zap.Int64("user_id", params.UserId),
		zap.Int64("product_id", params.ProductId),
		zap.String("payment_id", params.PaymentId))
	return orderId, nil
}

func (s *Service) insertOrder(ctx context.Context, q queryRower, params store.CreateOrderParams) (int64, error) {
	if params.PaymentId == "" {
		return 0, fmt.Errorf("%w: payment id is required", store.ErrInvalidPayload)
	}
	if params.Price <= 0 || params.DiscountAmount < 0 || params.DiscountAmount > params.Price {
		return 0, fmt.Errorf("%w: price %d with discount %d", store.ErrInvalidAmount, params.Price, params.DiscountAmount)
	}

	var orderId int64
	err := q.QueryRowContext(ctx, queryInsertOrder,
		params.UserId,
		params.ProductId,
		params.ProductName,
		params.PaymentId,
		params.Price,
		params.DiscountAmount,
		params.Price-params.DiscountAmount,
		s.now(),
	).Scan(&orderId)
	if isUniqueViolation(err) {
		zap.L().Warn("Duplicate payment rejected",
			zap.String("payment_id", params.PaymentId),
			zap.Int64("user_id", params.UserId))
		return 0, fmt.Errorf("%w: %s", store.ErrDuplicateOrder, params.PaymentId)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}
	return orderId, nil
}

// PlaceOrder inserts the order and consumes what it sells in one
// transaction: a unit of stock, a code (recorded on the order) or the
// balance credit of a balance product. When the product cannot be consumed
// the order is committed as failed/failed and Placement.Failure says why.
// A pending order therefore always has its goods reserved.
func (s *Service) PlaceOrder(ctx context.Context, params store.PlaceOrderParams) (*store.Placement, error) {
	var placement store.Placement
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		orderId, err := s.insertOrder(ctx, tx, params.CreateOrderParams)
		if err != nil {
			return err
		}
		placement = store.Placement{OrderId: orderId}

		if err := s.consumeTx(ctx, tx, orderId, params, &placement); err != nil {
			return err
		}
		if placement.Failure == nil {
			return nil
		}

		_, err = tx.ExecContext(ctx, queryUpdateOrderStatus,
			string(models.OrderStatusFailed), string(models.DeliveryStatusFailed), nil,
			string(models.OrderStatusFailed), s.now(), orderId)
		if err != nil {
			return fmt.Errorf("failed to mark order failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Int64("order_id", placement.OrderId),
		zap.Int64("user_id", params.UserId),
		zap.Int64("product_id", params.ProductId),
		zap.String("payment_id", params.PaymentId),
	}
	if placement.Failure != nil {
		zap.L().Warn("Order placed as failed", append(fields, zap.Error(placement.Failure))...)
	} else {
		zap.L().Info("Order placed", append(fields, zap.Int64("credited", placement.Credited))...)
	}
	return &placement, nil
}

// consumeTx takes what the order sells. A business refusal is recorded in
// placement.Failure; a returned error aborts the transaction.
func (s *Service) consumeTx(ctx context.Context, tx *sql.Tx, orderId int64, params store.PlaceOrderParams, placement *store.Placement) error {
	product := params.Product
	if product == nil {
		placement.Failure = store.E(store.KindIntegrity, "place order",
			fmt.Errorf("%w: %d", store.ErrProductNotFound, params.ProductId))
		return nil
	}

	switch {
	case product.Type == models.ProductTypeBalance:
		amount, err := models.ParseBalanceCredit(product.DeliveryContent)
		if err != nil {
			placement.Failure = store.E(store.KindIntegrity, "place order", err)
			return nil
		}
		_, err = s.creditTx(ctx, tx, store.LedgerParams{
			UserId:    params.UserId,
			Amount:    amount,
			Kind:      store.EntryKindTopUp,
			Reference: fmt.Sprintf("order:%d:topup", orderId),
		})
		if errors.Is(err, store.ErrUserNotFound) {
			placement.Failure = err
			return nil
		}
		if err != nil {
			return err
		}
		placement.Credited = amount

	case product.Type == models.ProductTypeCode:
		code, err := s.dispenseCodeTx(ctx, tx, product.Id, params.UserId)
		if errors.Is(err, store.ErrNoCodesAvailable) {
			placement.Failure = err
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, queryUpdateOrderStatus,
			string(models.OrderStatusPending), "", code,
			string(models.OrderStatusPending), s.now(), orderId)
		if err != nil {
			return fmt.Errorf("failed to record dispensed code: %w", err)
		}
		placement.DeliveryContent = code

	case product.IsLimited:
		ok, err := s.decreaseStock(ctx, tx, product.Id)
		if err != nil {
			return err
		}
		if !ok {
			placement.Failure = fmt.Errorf("%w: product %d", store.ErrOutOfStock, product.Id)
			return nil
		}
	}
	return nil
}

// UpdateStatus moves a pending order forward. Terminal orders are never
// rewritten: the update is predicated on status = 'pending'.
func (s *Service) UpdateStatus(ctx context.Context, params store.UpdateStatusParams) error {
	switch params.Status {
	case models.OrderStatusPending, models.OrderStatusCompleted, models.OrderStatusFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", store.ErrInvalidTransition, params.Status)
	}
	switch params.DeliveryStatus {
	case "", models.DeliveryStatusPending, models.DeliveryStatusDelivered, models.DeliveryStatusFailed:
	default:
		return fmt.Errorf("%w: unknown delivery status %q", store.ErrInvalidTransition, params.DeliveryStatus)
	}

	result, err := s.db.ExecContext(ctx, queryUpdateOrderStatus,
		string(params.Status),
		string(params.DeliveryStatus),
		params.DeliveryContent,
		string(params.Status),
		s.now(),
		params.OrderId,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.explainOrderMiss(ctx, s.db, params.OrderId, params.Status)
	}

	zap.L().Info("Order status updated",
		zap.Int64("order_id", params.OrderId),
		zap.String("status", string(params.Status)),
		zap.String("delivery_status", string(params.DeliveryStatus)))
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// explainOrderMiss distinguishes a missing order from a rejected transition
// after a predicated update touched no row.
func (s *Service) explainOrderMiss(ctx context.Context, q queryRower, orderId int64, target models.OrderStatus) error {
	var current string
	err := q.QueryRowContext(ctx, queryGetOrderStatus, orderId).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", store.ErrOrderNotFound, orderId)
	}
	if err != nil {
		return fmt.Errorf("failed to read order status: %w", err)
	}
	return fmt.Errorf("%w: order %d is %s, cannot move to %s", store.ErrInvalidTransition, orderId, current, target)
}

// CompleteOrder marks a pending order completed and books the purchase
// against the buyer and the product in the same transaction. FirstPurchase
// is true when this is the buyer's first completed order.
func (s *Service) CompleteOrder(ctx context.Context, params store.CompleteOrderParams) (*models.CompletionResult, error) {
	deliveryStatus := params.DeliveryStatus
	if deliveryStatus == "" {
		deliveryStatus = models.DeliveryStatusDelivered
	}

	var result models.CompletionResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var productId int64
		err := tx.QueryRowContext(ctx, queryCompleteOrder,
			string(deliveryStatus), params.DeliveryContent, s.now(), params.OrderId,
		).Scan(&result.UserId, &productId, &result.FinalPrice)
		if errors.Is(err, sql.ErrNoRows) {
			return s.explainOrderMiss(ctx, tx, params.OrderId, models.OrderStatusCompleted)
		}
		if err != nil {
			return fmt.Errorf("failed to complete order: %w", err)
		}

		var totalPurchases int64
		var referrerId sql.NullInt64
		err = tx.QueryRowContext(ctx, queryBookPurchase, result.FinalPrice, result.UserId).Scan(&totalPurchases, &referrerId)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", store.ErrUserNotFound, result.UserId)
		}
		if err != nil {
			return fmt.Errorf("failed to book purchase: %w", err)
		}
		result.FirstPurchase = totalPurchases == 1
		result.ReferrerId = nullInt64Ptr(referrerId)

		// The product may have been deleted since the order was created.
		if _, err := tx.ExecContext(ctx, queryIncrementSalesCount, productId); err != nil {
			return fmt.Errorf("failed to increment sales count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Order completed",
		zap.Int64("order_id", params.OrderId),
		zap.Int64("user_id", result.UserId),
		zap.Int64("final_price", result.FinalPrice),
		zap.String("delivery_status", string(deliveryStatus)),
		zap.Bool("first_purchase", result.FirstPurchase))
	return &result, nil
}

// MarkDelivered records a successful redelivery of a completed order whose
// first delivery attempt failed.
func (s *Service) MarkDelivered(ctx context.Context, orderId int64) error {
	result, err := s.db.ExecContext(ctx, queryMarkDelivered, orderId)
	if err != nil {
		return fmt.Errorf("failed to mark order delivered: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		order, err := s.GetOrder(ctx, orderId)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: order %d is %s/%s", store.ErrInvalidTransition, orderId, order.Status, order.DeliveryStatus)
	}

	zap.L().Info("Order redelivered", zap.Int64("order_id", orderId))
	return nil
}

func (s *Service) GetOrder(ctx context.Context, orderId int64) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, queryGetOrder, orderId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", store.ErrOrderNotFound, orderId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *Service) GetOrderByPaymentId(ctx context.Context, paymentId string) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, queryGetOrderByPaymentId, paymentId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payment %s", store.ErrOrderNotFound, paymentId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *Service) ListUserOrders(ctx context.Context, userId int64, limit int) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, queryListUserOrders, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (s *Service) GetSalesStats(ctx context.Context) (*models.SalesStats, error) {
	var stats models.SalesStats
	err := s.db.QueryRowContext(ctx, querySalesStats).Scan(
		&stats.TotalUsers,
		&stats.TotalOrders,
		&stats.CompletedOrders,
		&stats.FailedOrders,
		&stats.Revenue,
		&stats.ActiveProducts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get sales stats: %w", err)
	}
	return &stats, nil
}
