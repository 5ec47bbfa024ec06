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

package models

import (
	"context"

	"go.uber.org/zap"
)

type paymentContextKey struct{}

// PaymentContext carries the identifiers of the payment being fulfilled so
// that collaborators deeper in the call chain can log against them.
type PaymentContext struct {
	ChargeId string
	UserId   int64
	Kind     PayloadKind
	OrderId  int64
}

// WithPaymentContext attaches payment data to a context.
func WithPaymentContext(ctx context.Context, pc *PaymentContext) context.Context {
	return context.WithValue(ctx, paymentContextKey{}, pc)
}

// GetPaymentContext retrieves payment data from context, or nil if absent.
func GetPaymentContext(ctx context.Context) *PaymentContext {
	pc, _ := ctx.Value(paymentContextKey{}).(*PaymentContext)
	return pc
}

// LogFields renders the payment context as zap fields. Safe on a nil receiver.
func (pc *PaymentContext) LogFields() []zap.Field {
	if pc == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("charge_id", pc.ChargeId),
		zap.Int64("user_id", pc.UserId),
		zap.String("kind", string(pc.Kind)),
	}
	if pc.OrderId != 0 {
		fields = append(fields, zap.Int64("order_id", pc.OrderId))
	}
	return fields
}
