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

// processPreCheckout validates a pending charge and answers the platform.
// A rejected query never reaches the payment handler.
func (l *UpdateListener) processPreCheckout(ctx context.Context, query models.PreCheckoutQuery) {
	result := l.validator.PreCheckout(ctx, query)

	zap.L().Info("Pre-checkout answered",
		zap.String("query_id", query.Id),
		zap.Int64("user_id", query.UserId),
		zap.Int64("amount", query.TotalAmount),
		zap.Bool("approved", result.Approved),
		zap.String("kind", string(result.Kind)))

	// The client logs transport failures; the payer simply sees a timeout
	_ = l.bot.AnswerPreCheckoutQuery(ctx, query.Id, result.Approved, result.Reason)
}
