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
	"fmt"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// GetBalance returns the spendable balance, points and purchase totals for a user
func (s *StoreService) GetBalance(ctx context.Context, userId int64) (*models.BalanceResult, error) {
	if userId <= 0 {
		return &models.BalanceResult{Success: false, Error: "user_id is required"}, nil
	}

	user, err := s.db.GetUser(ctx, userId)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return &models.BalanceResult{Success: false, UserId: userId, Error: store.ErrUserNotFound.Error()}, nil
		}
		zap.L().Error("Failed to get user", zap.Int64("user_id", userId), zap.Error(err))
		return &models.BalanceResult{Success: false, UserId: userId, Error: "failed to retrieve balance"}, nil
	}

	points, err := s.db.GetUserPoints(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get user points", zap.Int64("user_id", userId), zap.Error(err))
		return &models.BalanceResult{Success: false, UserId: userId, Error: "failed to retrieve points"}, nil
	}

	return &models.BalanceResult{
		Success:        true,
		UserId:         user.Id,
		Balance:        user.Balance,
		Points:         points.Points,
		TotalSpent:     user.TotalSpent,
		TotalPurchases: user.TotalPurchases,
	}, nil
}

// ExchangePoints converts points into spendable balance at the configured
// rate, rounding down. Points that do not make a whole unit are not spent.
func (s *StoreService) ExchangePoints(ctx context.Context, userId, points int64) (*models.ExchangeResult, error) {
	if userId <= 0 || points <= 0 {
		return &models.ExchangeResult{Success: false, Error: "invalid exchange parameters"}, nil
	}

	// Only whole units are exchanged
	spend := points - points%s.cfg.PointsPerStar
	if spend == 0 {
		return &models.ExchangeResult{
			Success: false,
			Error:   fmt.Sprintf("at least %d points are needed for one unit", s.cfg.PointsPerStar),
		}, nil
	}

	credited, err := s.db.ExchangePoints(ctx, userId, spend, s.cfg.PointsPerStar)
	if err != nil {
		switch store.KindOf(err) {
		case store.KindValidation, store.KindConflict:
			zap.L().Info("Points exchange rejected",
				zap.Int64("user_id", userId),
				zap.Int64("points", points),
				zap.Error(err))
		default:
			zap.L().Error("Points exchange failed",
				zap.Int64("user_id", userId),
				zap.Int64("points", points),
				zap.Error(err))
		}
		return &models.ExchangeResult{Success: false, Error: err.Error()}, nil
	}

	result := &models.ExchangeResult{Success: true, PointsSpent: spend, StarsCredited: credited}

	if balance, err := s.db.GetBalance(ctx, userId); err == nil {
		result.NewBalance = balance
	} else {
		zap.L().Warn("Balance lookup failed after exchange", zap.Int64("user_id", userId), zap.Error(err))
	}
	if remaining, err := s.db.GetUserPoints(ctx, userId); err == nil {
		result.RemainingPoints = remaining.Points
	} else {
		zap.L().Warn("Points lookup failed after exchange", zap.Int64("user_id", userId), zap.Error(err))
	}

	zap.L().Info("Points exchanged via API",
		zap.Int64("user_id", userId),
		zap.Int64("points_spent", spend),
		zap.Int64("credited", credited),
		zap.Int64("new_balance", result.NewBalance))
	return result, nil
}

// GetOrderHistory returns the user's most recent orders, newest first
func (s *StoreService) GetOrderHistory(ctx context.Context, userId int64, limit int) ([]models.Order, error) {
	if userId <= 0 {
		return nil, errors.New("user_id is required")
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	orders, err := s.db.ListUserOrders(ctx, userId, limit)
	if err != nil {
		zap.L().Error("Failed to get order history", zap.Int64("user_id", userId), zap.Error(err))
		return nil, errors.New("failed to retrieve order history")
	}
	return orders, nil
}
