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

import "time"

// ProductType selects how a purchased product is fulfilled
type ProductType string

const (
	ProductTypeFile    ProductType = "file"
	ProductTypeImage   ProductType = "image"
	ProductTypeText    ProductType = "text"
	ProductTypeCode    ProductType = "code"
	ProductTypeBalance ProductType = "balance"
)

// Valid reports whether t is one of the known product types
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeFile, ProductTypeImage, ProductTypeText, ProductTypeCode, ProductTypeBalance:
		return true
	}
	return false
}

// UnlimitedStock is the stock sentinel for products without a ceiling
const UnlimitedStock int64 = -1

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// User is keyed by the chat platform identity
type User struct {
	Id             int64     `db:"user_id"`
	Username       string    `db:"username"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	Balance        int64     `db:"balance"`
	TotalSpent     int64     `db:"total_spent"`
	TotalPurchases int64     `db:"total_purchases"`
	ReferrerId     *int64    `db:"referrer_id"`
	ReferralCount  int64     `db:"referral_count"`
	IsBanned       bool      `db:"is_banned"`
	BanReason      string    `db:"ban_reason"`
	JoinDate       time.Time `db:"join_date"`
	LastActivity   time.Time `db:"last_activity"`
}

// Product is a catalog item. For code products Stock mirrors the unused code count.
type Product struct {
	Id                 int64       `db:"id"`
	Name               string      `db:"name"`
	Description        string      `db:"description"`
	Price              int64       `db:"price"`
	Type               ProductType `db:"type"`
	DeliveryContent    string      `db:"delivery_content"`
	Stock              int64       `db:"stock"`
	IsLimited          bool        `db:"is_limited"`
	IsActive           bool        `db:"is_active"`
	Category           string      `db:"category"`
	ImageUrl           string      `db:"image_url"`
	DiscountPercentage int64       `db:"discount_percentage"`
	SalesCount         int64       `db:"sales_count"`
	CreatedAt          time.Time   `db:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"`
}

// DiscountAmount is the integer discount, rounded down like the charged price
func (p *Product) DiscountAmount() int64 {
	return p.Price * p.DiscountPercentage / 100
}

// FinalPrice is the amount a buyer must be charged: price - price*discount/100
func (p *Product) FinalPrice() int64 {
	return p.Price - p.DiscountAmount()
}

// InStock reports whether a limited product has at least one unit left
func (p *Product) InStock() bool {
	return !p.IsLimited || p.Stock > 0
}

// Code is a one-time code owned by a code product
type Code struct {
	Id        int64      `db:"id"`
	ProductId int64      `db:"product_id"`
	CodeValue string     `db:"code_value"`
	IsUsed    bool       `db:"is_used"`
	UsedBy    *int64     `db:"used_by"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Order records one confirmed charge. PaymentId is globally unique.
type Order struct {
	Id              int64          `db:"id"`
	UserId          int64          `db:"user_id"`
	ProductId       int64          `db:"product_id"`
	ProductName     string         `db:"product_name"`
	PaymentId       string         `db:"payment_id"`
	Price           int64          `db:"price"`
	DiscountAmount  int64          `db:"discount_amount"`
	FinalPrice      int64          `db:"final_price"`
	Status          OrderStatus    `db:"status"`
	DeliveryStatus  DeliveryStatus `db:"delivery_status"`
	DeliveryContent string         `db:"delivery_content"`
	CreatedAt       time.Time      `db:"created_at"`
	CompletedAt     *time.Time     `db:"completed_at"`
}

// RateLimitRecord is the persisted request gate state for one user
type RateLimitRecord struct {
	UserId         int64      `db:"user_id"`
	RequestCount   int64      `db:"request_count"`
	WindowStart    time.Time  `db:"last_reset"`
	FailedAttempts int64      `db:"failed_attempts"`
	IsTempBanned   bool       `db:"is_temp_banned"`
	TempBanUntil   *time.Time `db:"temp_ban_until"`
}

// LedgerEntry is the immutable journal row written for every balance movement
type LedgerEntry struct {
	Id           string    `db:"id"`
	UserId       int64     `db:"user_id"`
	Kind         string    `db:"kind"`
	Amount       int64     `db:"amount"`
	BalanceAfter int64     `db:"balance_after"`
	Reference    string    `db:"reference"`
	CreatedAt    time.Time `db:"created_at"`
}

// DonationCampaign is a donation goal with an append-only contribution ledger
type DonationCampaign struct {
	Id            int64     `db:"id"`
	DonorId       int64     `db:"donor_id"`
	Description   string    `db:"description"`
	TargetAmount  int64     `db:"target_amount"`
	TotalReceived int64     `db:"total_received"`
	Options       []int64   `db:"options"`
	UrlToken      string    `db:"url_token"`
	CreatedAt     time.Time `db:"created_at"`
}

type DonationContribution struct {
	Id            int64     `db:"id"`
	CampaignId    int64     `db:"campaign_id"`
	ContributorId int64     `db:"contributor_id"`
	Amount        int64     `db:"amount"`
	ChargeId      string    `db:"charge_id"`
	CreatedAt     time.Time `db:"created_at"`
}

type UserPoints struct {
	UserId         int64     `db:"user_id"`
	Points         int64     `db:"points"`
	TotalEarned    int64     `db:"total_earned"`
	TotalExchanged int64     `db:"total_exchanged"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// BotDonation is a direct donation to the store itself
type BotDonation struct {
	Id        int64     `db:"id"`
	UserId    int64     `db:"user_id"`
	Username  string    `db:"username"`
	Amount    int64     `db:"amount"`
	ChargeId  string    `db:"charge_id"`
	CreatedAt time.Time `db:"created_at"`
}

type BotDonationStats struct {
	TotalAmount   int64 `json:"total_amount"`
	TotalDonors   int64 `json:"total_donors"`
	AverageAmount int64 `json:"average_amount"`
	MaxAmount     int64 `json:"max_amount"`
}

// CampaignMismatch is reported when total_received drifts from its contributions
type CampaignMismatch struct {
	CampaignId       int64
	TotalReceived    int64
	ContributionsSum int64
}

// BalanceMismatch is reported when a balance drifts from its journal
type BalanceMismatch struct {
	UserId     int64
	Balance    int64
	JournalSum int64
}

// AuditLog is a persisted record of a security or payment relevant action
type AuditLog struct {
	Id        int64     `db:"id"`
	Type      string    `db:"type"`
	UserId    *int64    `db:"user_id"`
	Action    string    `db:"action"`
	Details   string    `db:"details"`
	Timestamp time.Time `db:"timestamp"`
}

type SalesStats struct {
	TotalUsers      int64 `json:"total_users"`
	TotalOrders     int64 `json:"total_orders"`
	CompletedOrders int64 `json:"completed_orders"`
	FailedOrders    int64 `json:"failed_orders"`
	Revenue         int64 `json:"revenue"`
	ActiveProducts  int64 `json:"active_products"`
}
