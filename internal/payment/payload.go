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

package payment

import (
	"fmt"
	"strconv"
	"strings"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"github.com/google/uuid"
)

// Invoice payloads are built by the store and echoed back by the platform:
//
//	product_<productId>_<userId>_<nonce>
//	campaign_<campaignId>_<userId>_<nonce>
//	donation_<userId>_<nonce>

func newNonce() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func NewProductPayload(productId, userId int64) string {
	return fmt.Sprintf("%s_%d_%d_%s", models.PayloadKindProduct, productId, userId, newNonce())
}

func NewCampaignPayload(campaignId, userId int64) string {
	return fmt.Sprintf("%s_%d_%d_%s", models.PayloadKindCampaign, campaignId, userId, newNonce())
}

func NewDonationPayload(userId int64) string {
	return fmt.Sprintf("%s_%d_%s", models.PayloadKindDonation, userId, newNonce())
}

// ParsePayload decodes an invoice payload. Any deviation from the formats
// above yields store.ErrInvalidPayload.
func ParsePayload(raw string) (models.Payload, error) {
	parts := strings.Split(raw, "_")
	if len(parts) < 3 {
		return models.Payload{}, fmt.Errorf("%w: %q", store.ErrInvalidPayload, raw)
	}

	kind := models.PayloadKind(parts[0])
	switch kind {
	case models.PayloadKindDonation:
		if len(parts) != 3 || parts[2] == "" {
			return models.Payload{}, fmt.Errorf("%w: %q", store.ErrInvalidPayload, raw)
		}
		userId, err := parseId(parts[1])
		if err != nil {
			return models.Payload{}, fmt.Errorf("%w: %q: %v", store.ErrInvalidPayload, raw, err)
		}
		return models.Payload{Kind: kind, UserId: userId, Nonce: parts[2]}, nil

	case models.PayloadKindProduct, models.PayloadKindCampaign:
		if len(parts) != 4 || parts[3] == "" {
			return models.Payload{}, fmt.Errorf("%w: %q", store.ErrInvalidPayload, raw)
		}
		targetId, err := parseId(parts[1])
		if err != nil {
			return models.Payload{}, fmt.Errorf("%w: %q: %v", store.ErrInvalidPayload, raw, err)
		}
		userId, err := parseId(parts[2])
		if err != nil {
			return models.Payload{}, fmt.Errorf("%w: %q: %v", store.ErrInvalidPayload, raw, err)
		}
		return models.Payload{Kind: kind, TargetId: targetId, UserId: userId, Nonce: parts[3]}, nil
	}

	return models.Payload{}, fmt.Errorf("%w: unknown kind %q", store.ErrInvalidPayload, parts[0])
}

func parseId(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be positive, got %d", id)
	}
	return id, nil
}
