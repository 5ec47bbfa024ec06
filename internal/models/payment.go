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

// PayloadKind is the leading segment of an invoice payload
type PayloadKind string

const (
	PayloadKindProduct  PayloadKind = "product"
	PayloadKindCampaign PayloadKind = "campaign"
	PayloadKindDonation PayloadKind = "donation"
)

// Payload is the parsed form of the opaque invoice payload the store issues.
// TargetId is the product or campaign id and is zero for donations.
type Payload struct {
	Kind     PayloadKind
	TargetId int64
	UserId   int64
	Nonce    string
}

// PreCheckoutQuery is the host platform's pre-authorization request
type PreCheckoutQuery struct {
	Id             string
	UserId         int64
	Username       string
	Currency       string
	TotalAmount    int64
	InvoicePayload string
}

// SuccessfulPayment is the host platform's payment-confirmed callback.
// ChargeId is the idempotency key for order creation.
type SuccessfulPayment struct {
	UserId           int64
	Username         string
	FirstName        string
	LastName         string
	Currency         string
	TotalAmount      int64
	InvoicePayload   string
	ChargeId         string
	ProviderChargeId string
}

// Invoice is what the store asks the host platform to present to a buyer
type Invoice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Payload     string `json:"payload"`
	Currency    string `json:"currency"`
	Amount      int64  `json:"amount"`
	PhotoUrl    string `json:"photo_url,omitempty"`
}
