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

	"stars-storefront-go/internal/models"

	"go.uber.org/zap"
)

// processPayment fulfills a confirmed charge. The dispatcher owns every
// user-facing message for payments, including failures.
func (l *UpdateListener) processPayment(ctx context.Context, confirmed models.SuccessfulPayment) {
	result := l.payments.HandlePayment(ctx, confirmed)

	fields := []zap.Field{
		zap.String("charge_id", confirmed.ChargeId),
		zap.Int64("user_id", confirmed.UserId),
		zap.Int64("amount", confirmed.TotalAmount),
		zap.String("kind", string(result.Kind)),
		zap.Int64("order_id", result.OrderId),
		zap.Bool("duplicate", result.Duplicate),
	}
	switch {
	case result.Duplicate:
		zap.L().Info("Payment already processed", fields...)
	case result.Success:
		zap.L().Info("Payment fulfilled", fields...)
	default:
		zap.L().Warn("Payment not fulfilled", append(fields, zap.String("error", result.Error))...)
	}
}
