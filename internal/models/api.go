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

// PreCheckoutResult is the approve/reject answer for a pre-authorization request
type PreCheckoutResult struct {
	Approved bool        `json:"approved"`
	Reason   string      `json:"reason,omitempty"`
	Kind     PayloadKind `json:"kind,omitempty"`
}

// FulfillmentResult reports what happened to a confirmed payment
type FulfillmentResult struct {
	Success        bool           `json:"success"`
	Duplicate      bool           `json:"duplicate,omitempty"`
	Kind           PayloadKind    `json:"kind,omitempty"`
	OrderId        int64          `json:"order_id,omitempty"`
	Status         OrderStatus    `json:"status,omitempty"`
	DeliveryStatus DeliveryStatus `json:"delivery_status,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// CompletionResult is returned when an order moves to completed
type CompletionResult struct {
	UserId        int64
	FinalPrice    int64
	FirstPurchase bool
	ReferrerId    *int64
}

// BalanceResult represents a user's spendable balance and points
type BalanceResult struct {
	Success        bool   `json:"success"`
	UserId         int64  `json:"user_id,omitempty"`
	Balance        int64  `json:"balance"`
	Points         int64  `json:"points"`
	TotalSpent     int64  `json:"total_spent"`
	TotalPurchases int64  `json:"total_purchases"`
	Error          string `json:"error,omitempty"`
}

// ExchangeResult represents the result of converting points to balance
type ExchangeResult struct {
	Success         bool   `json:"success"`
	PointsSpent     int64  `json:"points_spent,omitempty"`
	StarsCredited   int64  `json:"stars_credited,omitempty"`
	NewBalance      int64  `json:"new_balance,omitempty"`
	RemainingPoints int64  `json:"remaining_points,omitempty"`
	Error           string `json:"error,omitempty"`
}

// CampaignResult represents the result of opening a donation campaign
type CampaignResult struct {
	Success  bool              `json:"success"`
	Campaign *DonationCampaign `json:"campaign,omitempty"`
	Error    string            `json:"error,omitempty"`
}
