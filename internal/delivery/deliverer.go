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

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

// Messenger is the outbound half of the bot API used for fulfillment
type Messenger interface {
	SendMessage(ctx context.Context, chatId int64, text string) error
	SendDocument(ctx context.Context, chatId int64, document, caption string) error
	SendPhoto(ctx context.Context, chatId int64, photo, caption string) error
}

// Deliverer hands a purchased product to its buyer. For code products the
// dispensed code is read from order.DeliveryContent.
type Deliverer interface {
	Deliver(ctx context.Context, userId int64, product *models.Product, order *models.Order) error
}

// Registry selects the Deliverer for each product type. Balance products
// have no deliverer: they are credited, not sent.
type Registry struct {
	deliverers map[models.ProductType]Deliverer
}

func NewRegistry() *Registry {
	return &Registry{deliverers: make(map[models.ProductType]Deliverer)}
}

// NewBotRegistry registers the bot deliverer for every sendable type
func NewBotRegistry(messenger Messenger) *Registry {
	r := NewRegistry()
	bot := NewBotDeliverer(messenger)
	for _, t := range []models.ProductType{
		models.ProductTypeFile,
		models.ProductTypeImage,
		models.ProductTypeText,
		models.ProductTypeCode,
	} {
		r.Register(t, bot)
	}
	return r
}

func (r *Registry) Register(productType models.ProductType, d Deliverer) {
	r.deliverers[productType] = d
}

// Deliver dispatches to the registered Deliverer. Every failure, including
// an unregistered type, wraps store.ErrDeliveryFailed.
func (r *Registry) Deliver(ctx context.Context, userId int64, product *models.Product, order *models.Order) error {
	d, ok := r.deliverers[product.Type]
	if !ok {
		return fmt.Errorf("%w: no deliverer for product type %q", store.ErrDeliveryFailed, product.Type)
	}
	if err := d.Deliver(ctx, userId, product, order); err != nil {
		if errors.Is(err, store.ErrDeliveryFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", store.ErrDeliveryFailed, err)
	}
	return nil
}

// BotDeliverer sends file, image, text and code products through the bot
type BotDeliverer struct {
	messenger Messenger
}

func NewBotDeliverer(messenger Messenger) *BotDeliverer {
	return &BotDeliverer{messenger: messenger}
}

const thanks = "✅ Thank you for your purchase!"

func (d *BotDeliverer) Deliver(ctx context.Context, userId int64, product *models.Product, order *models.Order) error {
	name := html.EscapeString(product.Name)

	var err error
	switch product.Type {
	case models.ProductTypeFile:
		if product.DeliveryContent == "" {
			return fmt.Errorf("%w: product %d has no file", store.ErrDeliveryFailed, product.Id)
		}
		err = d.messenger.SendDocument(ctx, userId, product.DeliveryContent,
			fmt.Sprintf("📄 %s\n\n%s", name, thanks))

	case models.ProductTypeImage:
		if product.DeliveryContent == "" {
			return fmt.Errorf("%w: product %d has no image", store.ErrDeliveryFailed, product.Id)
		}
		err = d.messenger.SendPhoto(ctx, userId, product.DeliveryContent,
			fmt.Sprintf("🖼 %s\n\n%s", name, thanks))

	case models.ProductTypeText:
		if product.DeliveryContent == "" {
			return fmt.Errorf("%w: product %d has no text", store.ErrDeliveryFailed, product.Id)
		}
		err = d.messenger.SendMessage(ctx, userId,
			fmt.Sprintf("📝 <b>%s</b>\n\n%s\n\n%s", name, html.EscapeString(product.DeliveryContent), thanks))

	case models.ProductTypeCode:
		if order == nil || order.DeliveryContent == "" {
			return fmt.Errorf("%w: no code recorded for product %d", store.ErrDeliveryFailed, product.Id)
		}
		err = d.messenger.SendMessage(ctx, userId,
			fmt.Sprintf("🔑 <b>%s</b>\n\nYour code:\n<code>%s</code>\n\n%s",
				name, html.EscapeString(order.DeliveryContent), thanks))

	default:
		return fmt.Errorf("%w: unsupported product type %q", store.ErrDeliveryFailed, product.Type)
	}

	if err != nil {
		zap.L().Warn("Delivery failed",
			zap.Int64("user_id", userId),
			zap.Int64("product_id", product.Id),
			zap.String("type", string(product.Type)),
			zap.Error(err))
		return fmt.Errorf("%w: %w", store.ErrDeliveryFailed, err)
	}
	return nil
}
