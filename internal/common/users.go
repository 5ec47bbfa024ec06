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

package common

import (
	"context"
	"fmt"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

const DefaultUserPage = 50

// LookupUsers retrieves users based on an optional id filter.
// If userId is set, returns that single user.
// Otherwise returns up to limit users ordered by join date.
func LookupUsers(ctx context.Context, users store.UserStore, userId int64, limit int, logger *zap.Logger) ([]models.User, error) {
	if userId > 0 {
		logger.Info("Looking up user by id", zap.Int64("user_id", userId))
		user, err := users.GetUser(ctx, userId)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return []models.User{*user}, nil
	}

	if limit <= 0 {
		limit = DefaultUserPage
	}
	all, err := users.ListUsers(ctx, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	logger.Info("Retrieved users", zap.Int("count", len(all)))
	return all, nil
}
