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
	"errors"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

// CreateCampaign opens a donation campaign for donorId
func (s *StoreService) CreateCampaign(ctx context.Context, donorId, targetAmount int64, description string, options []int64) (*models.CampaignResult, error) {
	if donorId <= 0 || targetAmount <= 0 {
		return &models.CampaignResult{Success: false, Error: "invalid campaign parameters"}, nil
	}

	campaign, err := s.db.CreateCampaign(ctx, store.CreateCampaignParams{
		DonorId:      donorId,
		TargetAmount: targetAmount,
		Description:  description,
		Options:      options,
	})
	if err != nil {
		if store.KindOf(err) == store.KindValidation {
			zap.L().Info("Campaign rejected", zap.Int64("donor_id", donorId), zap.Error(err))
		} else {
			zap.L().Error("Campaign creation failed", zap.Int64("donor_id", donorId), zap.Error(err))
		}
		return &models.CampaignResult{Success: false, Error: err.Error()}, nil
	}

	zap.L().Info("Campaign created via API",
		zap.Int64("campaign_id", campaign.Id),
		zap.Int64("donor_id", donorId),
		zap.Int64("target_amount", targetAmount))
	return &models.CampaignResult{Success: true, Campaign: campaign}, nil
}

// CampaignByToken resolves the shareable token of a campaign link
func (s *StoreService) CampaignByToken(ctx context.Context, token string) (*models.CampaignResult, error) {
	if token == "" {
		return &models.CampaignResult{Success: false, Error: "token is required"}, nil
	}

	campaign, err := s.db.GetCampaignByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrCampaignNotFound) {
			return &models.CampaignResult{Success: false, Error: store.ErrCampaignNotFound.Error()}, nil
		}
		zap.L().Error("Failed to resolve campaign token", zap.Error(err))
		return &models.CampaignResult{Success: false, Error: "failed to retrieve campaign"}, nil
	}
	return &models.CampaignResult{Success: true, Campaign: campaign}, nil
}
