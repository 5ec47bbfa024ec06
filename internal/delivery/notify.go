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

package delivery

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"stars-storefront-go/internal/models"

	"go.uber.org/zap"
)

// Notifier reaches the store administrators
type Notifier interface {
	NotifyAdministrators(ctx context.Context, message string) error
}

// AdminNotifier messages every configured administrator. A failure to reach
// one administrator does not stop the others.
type AdminNotifier struct {
	messenger Messenger
	adminIds  []int64
	enabled   bool
}

func NewAdminNotifier(messenger Messenger, adminIds []int64, enabled bool) *AdminNotifier {
	return &AdminNotifier{messenger: messenger, adminIds: adminIds, enabled: enabled}
}

func (n *AdminNotifier) NotifyAdministrators(ctx context.Context, message string) error {
	if !n.enabled || len(n.adminIds) == 0 {
		return nil
	}

	var errs []error
	for _, adminId := range n.adminIds {
		if err := n.messenger.SendMessage(ctx, adminId, "🔔 <b>Notice:</b>\n\n"+message); err != nil {
			zap.L().Error("Failed to notify administrator", zap.Int64("admin_id", adminId), zap.Error(err))
			errs = append(errs, fmt.Errorf("admin %d: %w", adminId, err))
		}
	}
	return errors.Join(errs...)
}

// FormatReceipt renders the buyer-facing summary of an order
func FormatReceipt(order *models.Order) string {
	var b strings.Builder

	b.WriteString("🧾 <b>Receipt</b>\n\n")
	fmt.Fprintf(&b, "%s <b>Order #%d</b>\n", statusEmoji(order.Status), order.Id)
	fmt.Fprintf(&b, "📦 %s\n", html.EscapeString(order.ProductName))
	if order.DiscountAmount > 0 {
		fmt.Fprintf(&b, "💵 Price: %d ⭐\n", order.Price)
		fmt.Fprintf(&b, "🎁 Discount: %d ⭐\n", order.DiscountAmount)
	}
	fmt.Fprintf(&b, "💰 Paid: %d ⭐\n", order.FinalPrice)
	fmt.Fprintf(&b, "📅 %s\n", order.CreatedAt.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "🔖 Payment: <code>%s</code>\n", html.EscapeString(order.PaymentId))

	switch order.DeliveryStatus {
	case models.DeliveryStatusDelivered:
		b.WriteString("📬 Delivered")
	case models.DeliveryStatusFailed:
		b.WriteString("⚠️ Delivery failed, support has been notified")
	default:
		b.WriteString("⏳ Delivery pending")
	}
	return b.String()
}

func statusEmoji(status models.OrderStatus) string {
	switch status {
	case models.OrderStatusCompleted:
		return "✅"
	case models.OrderStatusFailed:
		return "❌"
	case models.OrderStatusPending:
		return "⏳"
	default:
		return "❓"
	}
}
