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
	"time"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

// Gate timestamps are stored as unix milliseconds.

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func scanRateLimit(row rowScanner) (*models.RateLimitRecord, error) {
	var r models.RateLimitRecord
	var lastReset int64
	var banUntil sql.NullInt64
	if err := row.Scan(&r.UserId, &r.RequestCount, &lastReset, &r.FailedAttempts, &r.IsTempBanned, &banUntil); err != nil {
		return nil, err
	}
	r.WindowStart = fromMillis(lastReset)
	if banUntil.Valid {
		until := fromMillis(banUntil.Int64)
		r.TempBanUntil = &until
	}
	return &r, nil
}

// GetRateLimit returns nil without error when the user has no gate state yet.
func (s *Service) GetRateLimit(ctx context.Context, userId int64) (*models.RateLimitRecord, error) {
	record, err := scanRateLimit(s.db.QueryRowContext(ctx, queryGetRateLimit, userId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit: %w", err)
	}
	return record, nil
}

// SaveRequestWindow stores the request counter without touching failure or
// ban state.
func (s *Service) SaveRequestWindow(ctx context.Context, userId, requestCount int64, windowStart time.Time) error {
	if _, err := s.db.ExecContext(ctx, querySaveRequestWindow, userId, requestCount, toMillis(windowStart)); err != nil {
		return fmt.Errorf("failed to save request window: %w", err)
	}
	return nil
}

func (s *Service) ClearTempBan(ctx context.Context, userId int64) error {
	if _, err := s.db.ExecContext(ctx, queryClearTempBan, userId); err != nil {
		return fmt.Errorf("failed to clear temporary ban: %w", err)
	}
	return nil
}

// RecordFailedAttempt increments the failure counter and applies a temporary
// ban until banUntil once threshold failures have accumulated. The
// increment and the ban are applied in one transaction.
func (s *Service) RecordFailedAttempt(ctx context.Context, userId int64, threshold int, banUntil time.Time) (*models.RateLimitRecord, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: failure threshold must be positive, got %d", store.ErrInvalidAmount, threshold)
	}

	var record *models.RateLimitRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, queryIncrementFailedAttempts, userId, toMillis(s.now())); err != nil {
			return fmt.Errorf("failed to record failed attempt: %w", err)
		}
		if _, err := tx.ExecContext(ctx, queryApplyTempBan, toMillis(banUntil), userId, threshold); err != nil {
			return fmt.Errorf("failed to apply temporary ban: %w", err)
		}

		var err error
		record, err = scanRateLimit(tx.QueryRowContext(ctx, queryGetRateLimit, userId))
		if err != nil {
			return fmt.Errorf("failed to read rate limit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if record.IsTempBanned {
		zap.L().Warn("User temporarily banned",
			zap.Int64("user_id", userId),
			zap.Int64("failed_attempts", record.FailedAttempts),
			zap.Time("until", banUntil))
	}
	return record, nil
}

// SweepRateLimits lifts expired temporary bans and drops idle rows whose
// window started before staleBefore. Returns the number of rows touched.
func (s *Service) SweepRateLimits(ctx context.Context, now, staleBefore time.Time) (int64, error) {
	var touched int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, queryClearExpiredBans, toMillis(now))
		if err != nil {
			return fmt.Errorf("failed to clear expired bans: %w", err)
		}
		lifted, _ := result.RowsAffected()

		result, err = tx.ExecContext(ctx, queryDeleteStaleRateLimits, toMillis(staleBefore))
		if err != nil {
			return fmt.Errorf("failed to delete stale rate limits: %w", err)
		}
		deleted, _ := result.RowsAffected()

		touched = lifted + deleted
		if touched > 0 {
			zap.L().Info("Rate limit sweep",
				zap.Int64("bans_lifted", lifted),
				zap.Int64("rows_deleted", deleted))
		}
		return nil
	})
	return touched, err
}
