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

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"
)

// Backend is the slice of the relational store the façade reads and writes
type Backend interface {
	Ping(ctx context.Context) error
	GetUser(ctx context.Context, userId int64) (*models.User, error)
	GetBalance(ctx context.Context, userId int64) (int64, error)
	GetUserPoints(ctx context.Context, userId int64) (*models.UserPoints, error)
	ExchangePoints(ctx context.Context, userId, points, pointsPerStar int64) (int64, error)
	ListUserOrders(ctx context.Context, userId int64, limit int) ([]models.Order, error)
	GetProduct(ctx context.Context, productId int64) (*models.Product, error)
	CountAvailableCodes(ctx context.Context, productId int64) (int64, error)
	CreateCampaign(ctx context.Context, params store.CreateCampaignParams) (*models.DonationCampaign, error)
	GetCampaign(ctx context.Context, campaignId int64) (*models.DonationCampaign, error)
	GetCampaignByToken(ctx context.Context, token string) (*models.DonationCampaign, error)
}

// InvoiceSender presents an invoice to a buyer on the host platform
type InvoiceSender interface {
	SendInvoice(ctx context.Context, chatId int64, invoice models.Invoice) error
}

// StoreService is the façade used by glue code outside the payment flow
type StoreService struct {
	db       Backend
	invoices InvoiceSender
	cfg      models.StoreConfig
}

// NewStoreService creates the façade. invoices may be nil when nothing is sent.
func NewStoreService(db Backend, invoices InvoiceSender, cfg models.StoreConfig) *StoreService {
	return &StoreService{
		db:       db,
		invoices: invoices,
		cfg:      cfg,
	}
}

func (s *StoreService) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
