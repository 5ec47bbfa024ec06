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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var referrerId sql.NullInt64
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.Balance,
		&user.TotalSpent,
		&user.TotalPurchases,
		&referrerId,
		&user.ReferralCount,
		&user.IsBanned,
		&user.BanReason,
		&user.JoinDate,
		&user.LastActivity,
	)
	if err != nil {
		return nil, err
	}
	user.ReferrerId = nullInt64Ptr(referrerId)
	return &user, nil
}

// EnsureUser registers a user on first contact and refreshes their profile
// afterwards. The referrer is only recorded for a brand new user, and only
// when it names another existing user. Reports whether the user was created.
func (s *Service) EnsureUser(ctx context.Context, params store.EnsureUserParams) (*models.User, bool, error) {
	var created bool
	var user *models.User

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		var referrerId *int64
		if params.ReferrerId != nil && *params.ReferrerId != params.UserId {
			var exists int
			err := tx.QueryRowContext(ctx, queryUserExists, *params.ReferrerId).Scan(&exists)
			switch {
			case err == nil:
				referrerId = params.ReferrerId
			case errors.Is(err, sql.ErrNoRows):
				zap.L().Debug("Ignoring unknown referrer",
					zap.Int64("user_id", params.UserId),
					zap.Int64("referrer_id", *params.ReferrerId))
			default:
				return fmt.Errorf("failed to look up referrer: %w", err)
			}
		}

		result, err := tx.ExecContext(ctx, queryInsertUser,
			params.UserId, params.Username, params.FirstName, params.LastName, referrerId, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		created = rows == 1

		if created && referrerId != nil {
			if _, err := tx.ExecContext(ctx, queryIncrementReferralCount, *referrerId); err != nil {
				return fmt.Errorf("failed to increment referral count: %w", err)
			}
		}

		if !created {
			if _, err := tx.ExecContext(ctx, queryTouchUser,
				params.Username, params.FirstName, params.LastName, now, params.UserId); err != nil {
				return fmt.Errorf("failed to refresh user: %w", err)
			}
		}

		user, err = scanUser(tx.QueryRowContext(ctx, queryGetUser, params.UserId))
		if err != nil {
			return fmt.Errorf("failed to read user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		zap.L().Info("User registered",
			zap.Int64("user_id", user.Id),
			zap.String("username", user.Username),
			zap.Bool("referred", user.ReferrerId != nil))
	}
	return user, created, nil
}

func (s *Service) GetUser(ctx context.Context, userId int64) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, queryGetUser, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", store.ErrUserNotFound, userId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, queryListUsers, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *Service) BanUser(ctx context.Context, userId int64, reason string) error {
	result, err := s.db.ExecContext(ctx, queryBanUser, reason, userId)
	if err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %d", store.ErrUserNotFound, userId)
	}

	zap.L().Info("User banned", zap.Int64("user_id", userId), zap.String("reason", reason))
	return nil
}

func (s *Service) UnbanUser(ctx context.Context, userId int64) error {
	result, err := s.db.ExecContext(ctx, queryUnbanUser, userId)
	if err != nil {
		return fmt.Errorf("failed to unban user: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %d", store.ErrUserNotFound, userId)
	}

	zap.L().Info("User unbanned", zap.Int64("user_id", userId))
	return nil
}
