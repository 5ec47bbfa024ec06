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

package api

import (
	"context"
	"fmt"
	"unicode/utf8"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/payment"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

const (
	maxInvoiceTitle       = 32
	maxInvoiceDescription = 255
)

// ProductInvoice prices a product for userId. The amount is the discounted
// price; pre-checkout rejects the charge if the price changes meanwhile.
func (s *StoreService) ProductInvoice(ctx context.Context, userId, productId int64) (*models.Invoice, error) {
	product, err := s.db.GetProduct(ctx, productId)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, fmt.Errorf("%w: product %d", store.ErrInactive, productId)
	}
	if product.IsLimited && product.Stock <= 0 {
		return nil, fmt.Errorf("%w: product %d", store.ErrOutOfStock, productId)
	}
	if product.Type == models.ProductTypeCode {
		available, err := s.db.CountAvailableCodes(ctx, productId)
		if err != nil {
			return nil, err
		}
		if available <= 0 {
			return nil, fmt.Errorf("%w: product %d", store.ErrNoCodesAvailable, productId)
		}
	}

	description := product.Description
	if description == "" {
		description = product.Name
	}
	return &models.Invoice{
		Title:       truncate(product.Name, maxInvoiceTitle),
		Description: truncate(description, maxInvoiceDescription),
		Payload:     payment.NewProductPayload(product.Id, userId),
		Currency:    s.cfg.Currency,
		Amount:      product.FinalPrice(),
		PhotoUrl:    product.ImageUrl,
	}, nil
}

// CampaignInvoice prices a contribution to a donation campaign
func (s *StoreService) CampaignInvoice(ctx context.Context, userId, campaignId, amount int64) (*models.Invoice, error) {
	if err := s.checkDonationAmount(amount); err != nil {
		return nil, err
	}
	campaign, err := s.db.GetCampaign(ctx, campaignId)
	if err != nil {
		return nil, err
	}

	description := campaign.Description
	if description == "" {
		description = fmt.Sprintf("Donation campaign #%d", campaign.Id)
	}
	return &models.Invoice{
		Title:       truncate(fmt.Sprintf("Campaign #%d", campaign.Id), maxInvoiceTitle),
		Description: truncate(description, maxInvoiceDescription),
		Payload:     payment.NewCampaignPayload(campaign.Id, userId),
		Currency:    s.cfg.Currency,
		Amount:      amount,
	}, nil
}

// DonationInvoice prices a direct donation to the store
func (s *StoreService) DonationInvoice(userId, amount int64) (*models.Invoice, error) {
	if err := s.checkDonationAmount(amount); err != nil {
		return nil, err
	}
	return &models.Invoice{
		Title:       "Donation",
		Description: "Support the store",
		Payload:     payment.NewDonationPayload(userId),
		Currency:    s.cfg.Currency,
		Amount:      amount,
	}, nil
}

// SendProductInvoice builds a product invoice and presents it in the
// buyer's private chat
func (s *StoreService) SendProductInvoice(ctx context.Context, userId, productId int64) (*models.Invoice, error) {
	invoice, err := s.ProductInvoice(ctx, userId, productId)
	if err != nil {
		return nil, err
	}
	if err := s.sendInvoice(ctx, userId, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// SendDonationInvoice builds a direct donation invoice and presents it
func (s *StoreService) SendDonationInvoice(ctx context.Context, userId, amount int64) (*models.Invoice, error) {
	invoice, err := s.DonationInvoice(userId, amount)
	if err != nil {
		return nil, err
	}
	if err := s.sendInvoice(ctx, userId, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *StoreService) sendInvoice(ctx context.Context, chatId int64, invoice *models.Invoice) error {
	if s.invoices == nil {
		return fmt.Errorf("no invoice sender configured")
	}
	if err := s.invoices.SendInvoice(ctx, chatId, *invoice); err != nil {
		zap.L().Error("Failed to send invoice",
			zap.Int64("chat_id", chatId),
			zap.String("payload", invoice.Payload),
			zap.Error(err))
		return fmt.Errorf("failed to send invoice: %w", err)
	}
	return nil
}

func (s *StoreService) checkDonationAmount(amount int64) error {
	if amount < s.cfg.DonationMin || amount > s.cfg.DonationMax {
		return fmt.Errorf("%w: %d outside %d..%d", store.ErrInvalidAmount, amount, s.cfg.DonationMin, s.cfg.DonationMax)
	}
	return nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
