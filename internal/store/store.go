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

package store

import (
	"context"
	"time"

	"stars-storefront-go/internal/models"
)

// EnsureUserParams contains the identity fields captured on first contact.
type EnsureUserParams struct {
	UserId     int64
	Username   string
	FirstName  string
	LastName   string
	ReferrerId *int64
}

// LedgerParams describes a single balance movement. A non-empty Reference
// must be unique across the journal, which makes the movement idempotent.
type LedgerParams struct {
	UserId    int64
	Amount    int64
	Kind      string
	Reference string
}

// Ledger entry kinds
const (
	EntryKindCredit         = "credit"
	EntryKindDebit          = "debit"
	EntryKindTransferIn     = "transfer_in"
	EntryKindTransferOut    = "transfer_out"
	EntryKindTopUp          = "balance_topup"
	EntryKindReferral       = "referral_reward"
	EntryKindPointsExchange = "points_exchange"
)

// TransferParams moves Amount from one balance to another atomically.
type TransferParams struct {
	FromId    int64
	ToId      int64
	Amount    int64
	Reference string
}

// CreateOrderParams captures the product snapshot at charge-confirmation time.
type CreateOrderParams struct {
	UserId         int64
	ProductId      int64
	ProductName    string
	PaymentId      string
	Price          int64
	DiscountAmount int64
}

// PlaceOrderParams creates an order and consumes what it sells. Product is
// the product as re-read at confirmation time, nil when it no longer exists.
type PlaceOrderParams struct {
	CreateOrderParams
	Product *models.Product
}

// Placement is the committed outcome of PlaceOrder. A non-nil Failure means
// nothing could be consumed and the order was stored as failed.
type Placement struct {
	OrderId         int64
	DeliveryContent string
	Credited        int64
	Failure         error
}

// UpdateStatusParams drives a forward-only order transition. An empty
// DeliveryStatus or nil DeliveryContent leaves the stored value untouched.
type UpdateStatusParams struct {
	OrderId         int64
	Status          models.OrderStatus
	DeliveryStatus  models.DeliveryStatus
	DeliveryContent *string
}

// CompleteOrderParams completes a pending order and books the purchase.
type CompleteOrderParams struct {
	OrderId         int64
	DeliveryStatus  models.DeliveryStatus
	DeliveryContent *string
}

// CreateCampaignParams opens a donation campaign.
type CreateCampaignParams struct {
	DonorId      int64
	TargetAmount int64
	Description  string
	Options      []int64
}

// ContributeParams records a campaign contribution. ChargeId is optional and
// unique when present.
type ContributeParams struct {
	CampaignId    int64
	ContributorId int64
	Amount        int64
	ChargeId      string
}

// BotDonationParams records a direct donation to the store.
type BotDonationParams struct {
	UserId   int64
	Username string
	Amount   int64
	ChargeId string
}

// AuditParams describes one audit log line.
type AuditParams struct {
	Type    string
	UserId  int64
	Action  string
	Details string
}

type UserStore interface {
	EnsureUser(ctx context.Context, params EnsureUserParams) (*models.User, bool, error)
	GetUser(ctx context.Context, userId int64) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)
	BanUser(ctx context.Context, userId int64, reason string) error
	UnbanUser(ctx context.Context, userId int64) error
}

type LedgerStore interface {
	Credit(ctx context.Context, params LedgerParams) (int64, error)
	Debit(ctx context.Context, params LedgerParams) (bool, error)
	Transfer(ctx context.Context, params TransferParams) (bool, error)
	GetBalance(ctx context.Context, userId int64) (int64, error)
	GetLedgerHistory(ctx context.Context, userId int64, limit int) ([]models.LedgerEntry, error)
	ReconcileBalance(ctx context.Context, userId int64) error
	ReconcileAllBalances(ctx context.Context) ([]models.BalanceMismatch, error)
}

type InventoryStore interface {
	CreateProduct(ctx context.Context, product models.NewProduct) (*models.Product, error)
	GetProduct(ctx context.Context, productId int64) (*models.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error)
	UpdateProduct(ctx context.Context, productId int64, patch models.ProductPatch) (*models.Product, error)
	DeleteProduct(ctx context.Context, productId int64) error
	DecreaseStock(ctx context.Context, productId int64) (bool, error)
	DispenseCode(ctx context.Context, productId, userId int64) (string, error)
	AddCodes(ctx context.Context, productId int64, codes []string) (int, error)
	CountAvailableCodes(ctx context.Context, productId int64) (int64, error)
	ResyncCodeStock(ctx context.Context) (int64, error)
}

type OrderLedger interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (int64, error)
	PlaceOrder(ctx context.Context, params PlaceOrderParams) (*Placement, error)
	UpdateStatus(ctx context.Context, params UpdateStatusParams) error
	CompleteOrder(ctx context.Context, params CompleteOrderParams) (*models.CompletionResult, error)
	MarkDelivered(ctx context.Context, orderId int64) error
	GetOrder(ctx context.Context, orderId int64) (*models.Order, error)
	GetOrderByPaymentId(ctx context.Context, paymentId string) (*models.Order, error)
	ListUserOrders(ctx context.Context, userId int64, limit int) ([]models.Order, error)
	GetSalesStats(ctx context.Context) (*models.SalesStats, error)
}

type RateLimitStore interface {
	GetRateLimit(ctx context.Context, userId int64) (*models.RateLimitRecord, error)
	SaveRequestWindow(ctx context.Context, userId, requestCount int64, windowStart time.Time) error
	ClearTempBan(ctx context.Context, userId int64) error
	RecordFailedAttempt(ctx context.Context, userId int64, threshold int, banUntil time.Time) (*models.RateLimitRecord, error)
	SweepRateLimits(ctx context.Context, now, staleBefore time.Time) (int64, error)
}

type DonationStore interface {
	CreateCampaign(ctx context.Context, params CreateCampaignParams) (*models.DonationCampaign, error)
	GetCampaign(ctx context.Context, campaignId int64) (*models.DonationCampaign, error)
	GetCampaignByToken(ctx context.Context, token string) (*models.DonationCampaign, error)
	ListDonorCampaigns(ctx context.Context, donorId int64) ([]models.DonationCampaign, error)
	Contribute(ctx context.Context, params ContributeParams) (bool, error)
	GetContributions(ctx context.Context, campaignId int64) ([]models.DonationContribution, error)
	GetUserPoints(ctx context.Context, userId int64) (*models.UserPoints, error)
	ExchangePoints(ctx context.Context, userId, points, pointsPerStar int64) (int64, error)
	RecordBotDonation(ctx context.Context, params BotDonationParams) error
	GetBotDonations(ctx context.Context, limit int) ([]models.BotDonation, error)
	GetBotDonationStats(ctx context.Context) (*models.BotDonationStats, error)
	ReconcileCampaigns(ctx context.Context) ([]models.CampaignMismatch, error)
}

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

type AuditStore interface {
	AddLog(ctx context.Context, params AuditParams) error
	GetLogs(ctx context.Context, logType string, limit int) ([]models.AuditLog, error)
}

// Store is the full contract of the relational store.
type Store interface {
	UserStore
	LedgerStore
	InventoryStore
	OrderLedger
	RateLimitStore
	DonationStore
	SettingsStore
	AuditStore

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
