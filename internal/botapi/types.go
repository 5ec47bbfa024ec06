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

package botapi

import "stars-storefront-go/internal/models"

// Update is one inbound event delivered to the webhook. Only the fields the
// store acts on are decoded.
type Update struct {
	UpdateId         int64             `json:"update_id"`
	Message          *Message          `json:"message,omitempty"`
	PreCheckoutQuery *PreCheckoutQuery `json:"pre_checkout_query,omitempty"`
}

type User struct {
	Id        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
}

type Chat struct {
	Id int64 `json:"id"`
}

type Message struct {
	MessageId         int64              `json:"message_id"`
	From              *User              `json:"from,omitempty"`
	Chat              Chat               `json:"chat"`
	Text              string             `json:"text,omitempty"`
	SuccessfulPayment *SuccessfulPayment `json:"successful_payment,omitempty"`
}

type PreCheckoutQuery struct {
	Id             string `json:"id"`
	From           User   `json:"from"`
	Currency       string `json:"currency"`
	TotalAmount    int64  `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

type SuccessfulPayment struct {
	Currency                string `json:"currency"`
	TotalAmount             int64  `json:"total_amount"`
	InvoicePayload          string `json:"invoice_payload"`
	TelegramPaymentChargeId string `json:"telegram_payment_charge_id"`
	ProviderPaymentChargeId string `json:"provider_payment_charge_id"`
}

func (q *PreCheckoutQuery) ToModel() models.PreCheckoutQuery {
	return models.PreCheckoutQuery{
		Id:             q.Id,
		UserId:         q.From.Id,
		Username:       q.From.Username,
		Currency:       q.Currency,
		TotalAmount:    q.TotalAmount,
		InvoicePayload: q.InvoicePayload,
	}
}

// PaymentModel converts a payment-confirmed message. It returns false when
// the message carries no payment or no sender.
func (m *Message) PaymentModel() (models.SuccessfulPayment, bool) {
	if m.SuccessfulPayment == nil || m.From == nil {
		return models.SuccessfulPayment{}, false
	}
	p := m.SuccessfulPayment
	return models.SuccessfulPayment{
		UserId:           m.From.Id,
		Username:         m.From.Username,
		FirstName:        m.From.FirstName,
		LastName:         m.From.LastName,
		Currency:         p.Currency,
		TotalAmount:      p.TotalAmount,
		InvoicePayload:   p.InvoicePayload,
		ChargeId:         p.TelegramPaymentChargeId,
		ProviderChargeId: p.ProviderPaymentChargeId,
	}, true
}

type sendMessageRequest struct {
	ChatId    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendDocumentRequest struct {
	ChatId    int64  `json:"chat_id"`
	Document  string `json:"document"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendPhotoRequest struct {
	ChatId    int64  `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type answerPreCheckoutRequest struct {
	PreCheckoutQueryId string `json:"pre_checkout_query_id"`
	Ok                 bool   `json:"ok"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

type labeledPrice struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

type sendInvoiceRequest struct {
	ChatId      int64          `json:"chat_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Payload     string         `json:"payload"`
	Currency    string         `json:"currency"`
	Prices      []labeledPrice `json:"prices"`
	PhotoUrl    string         `json:"photo_url,omitempty"`
}

type setWebhookRequest struct {
	Url            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}
