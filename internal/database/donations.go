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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanCampaign(row rowScanner) (*models.DonationCampaign, error) {
	var c models.DonationCampaign
	var options sql.NullString
	err := row.Scan(
		&c.Id,
		&c.DonorId,
		&c.Description,
		&c.TargetAmount,
		&c.TotalReceived,
		&options,
		&c.UrlToken,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if options.Valid {
		if err := json.Unmarshal([]byte(options.String), &c.Options); err != nil {
			return nil, fmt.Errorf("campaign %d has malformed options: %w", c.Id, err)
		}
		if c.Options == nil {
			c.Options = []int64{}
		}
	}
	return &c, nil
}

func newCampaignToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// CreateCampaign opens a campaign with a fresh lookup token. Nil options are
// stored as NULL, an empty slice as an empty list.
func (s *Service) CreateCampaign(ctx context.Context, params store.CreateCampaignParams) (*models.DonationCampaign, error) {
	if params.TargetAmount <= 0 {
		return nil, fmt.Errorf("%w: target amount must be positive, got %d", store.ErrInvalidAmount, params.TargetAmount)
	}
	for _, option := range params.Options {
		if option <= 0 {
			return nil, fmt.Errorf("%w: donation option must be positive, got %d", store.ErrInvalidAmount, option)
		}
	}

	var options sql.NullString
	if params.Options != nil {
		encoded, err := json.Marshal(params.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to encode options: %w", err)
		}
		options = sql.NullString{String: string(encoded), Valid: true}
	}

	var campaignId int64
	err := s.db.QueryRowContext(ctx, queryInsertCampaign,
		params.DonorId, params.Description, params.TargetAmount, options, newCampaignToken(), s.now(),
	).Scan(&campaignId)
	if err != nil {
		return nil, fmt.Errorf("failed to insert campaign: %w", err)
	}

	zap.L().Info("Donation campaign created",
		zap.Int64("campaign_id", campaignId),
		zap.Int64("donor_id", params.DonorId),
		zap.Int64("target_amount", params.TargetAmount))
	return s.GetCampaign(ctx, campaignId)
}

func (s *Service) GetCampaign(ctx context.Context, campaignId int64) (*models.DonationCampaign, error) {
	campaign, err := scanCampaign(s.db.QueryRowContext(ctx, queryGetCampaign, campaignId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", store.ErrCampaignNotFound, campaignId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

func (s *Service) GetCampaignByToken(ctx context.Context, token string) (*models.DonationCampaign, error) {
	campaign, err := scanCampaign(s.db.QueryRowContext(ctx, queryGetCampaignByToken, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: token %s", store.ErrCampaignNotFound, token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

func (s *Service) ListDonorCampaigns(ctx context.Context, donorId int64) ([]models.DonationCampaign, error) {
	rows, err := s.db.QueryContext(ctx, queryListDonorCampaigns, donorId)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []models.DonationCampaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, *campaign)
	}
	return campaigns, rows.Err()
}

// Contribute appends a contribution, bumps the campaign total and credits the
// contributor's points in one transaction. A charge id that was already
// recorded returns false without error and changes nothing.
func (s *Service) Contribute(ctx context.Context, params store.ContributeParams) (bool, error) {
	if params.Amount <= 0 {
		return false, fmt.Errorf("%w: contribution must be positive, got %d", store.ErrInvalidAmount, params.Amount)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		result, err := tx.ExecContext(ctx, queryIncrementCampaignTotal, params.Amount, params.CampaignId)
		if err != nil {
			return fmt.Errorf("failed to update campaign total: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("%w: %d", store.ErrCampaignNotFound, params.CampaignId)
		}

		_, err = tx.ExecContext(ctx, queryInsertContribution,
			params.CampaignId, params.ContributorId, params.Amount, params.ChargeId, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrDuplicatePayment, params.ChargeId)
		}
		if err != nil {
			return fmt.Errorf("failed to insert contribution: %w", err)
		}

		if _, err := tx.ExecContext(ctx, queryCreditPoints,
			params.ContributorId, params.Amount, params.Amount, now); err != nil {
			return fmt.Errorf("failed to credit points: %w", err)
		}
		return nil
	})
	if errors.Is(err, store.ErrDuplicatePayment) {
		zap.L().Warn("Duplicate contribution ignored",
			zap.Int64("campaign_id", params.CampaignId),
			zap.String("charge_id", params.ChargeId))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	zap.L().Info("Contribution recorded",
		zap.Int64("campaign_id", params.CampaignId),
		zap.Int64("contributor_id", params.ContributorId),
		zap.Int64("amount", params.Amount))
	return true, nil
}

func (s *Service) GetContributions(ctx context.Context, campaignId int64) ([]models.DonationContribution, error) {
	rows, err := s.db.QueryContext(ctx, queryGetContributions, campaignId)
	if err != nil {
		return nil, fmt.Errorf("failed to get contributions: %w", err)
	}
	defer rows.Close()

	var contributions []models.DonationContribution
	for rows.Next() {
		var c models.DonationContribution
		if err := rows.Scan(&c.Id, &c.CampaignId, &c.ContributorId, &c.Amount, &c.ChargeId, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

// GetUserPoints returns a zero record for users who never earned points.
func (s *Service) GetUserPoints(ctx context.Context, userId int64) (*models.UserPoints, error) {
	var p models.UserPoints
	err := s.db.QueryRowContext(ctx, queryGetUserPoints, userId).
		Scan(&p.UserId, &p.Points, &p.TotalEarned, &p.TotalExchanged, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.UserPoints{UserId: userId}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user points: %w", err)
	}
	return &p, nil
}

// ExchangePoints debits points and credits floor(points / pointsPerStar) to
// the user's balance in one transaction. Returns the amount credited.
func (s *Service) ExchangePoints(ctx context.Context, userId, points, pointsPerStar int64) (int64, error) {
	if points <= 0 {
		return 0, fmt.Errorf("%w: points must be positive, got %d", store.ErrInvalidAmount, points)
	}
	if pointsPerStar <= 0 {
		return 0, fmt.Errorf("%w: conversion rate must be positive, got %d", store.ErrInvalidAmount, pointsPerStar)
	}

	stars := decimal.NewFromInt(points).Div(decimal.NewFromInt(pointsPerStar)).Floor().IntPart()
	if stars == 0 {
		return 0, fmt.Errorf("%w: %d points are worth less than one unit at %d:1", store.ErrInvalidAmount, points, pointsPerStar)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var remaining int64
		err := tx.QueryRowContext(ctx, queryDebitPoints, points, points, s.now(), userId, points).Scan(&remaining)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: user %d has fewer than %d points", store.ErrInsufficientPoints, userId, points)
		}
		if err != nil {
			return fmt.Errorf("failed to debit points: %w", err)
		}

		_, err = s.creditTx(ctx, tx, store.LedgerParams{
			UserId: userId,
			Amount: stars,
			Kind:   store.EntryKindPointsExchange,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	zap.L().Info("Points exchanged",
		zap.Int64("user_id", userId),
		zap.Int64("points", points),
		zap.Int64("stars", stars))
	return stars, nil
}

// RecordBotDonation stores a direct donation and credits the donor's points.
// A repeated charge id yields ErrDuplicatePayment.
func (s *Service) RecordBotDonation(ctx context.Context, params store.BotDonationParams) error {
	if params.Amount <= 0 {
		return fmt.Errorf("%w: donation must be positive, got %d", store.ErrInvalidAmount, params.Amount)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		_, err := tx.ExecContext(ctx, queryInsertBotDonation,
			params.UserId, params.Username, params.Amount, params.ChargeId, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrDuplicatePayment, params.ChargeId)
		}
		if err != nil {
			return fmt.Errorf("failed to insert donation: %w", err)
		}

		if _, err := tx.ExecContext(ctx, queryCreditPoints,
			params.UserId, params.Amount, params.Amount, now); err != nil {
			return fmt.Errorf("failed to credit points: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	zap.L().Info("Bot donation recorded",
		zap.Int64("user_id", params.UserId),
		zap.Int64("amount", params.Amount))
	return nil
}

func (s *Service) GetBotDonations(ctx context.Context, limit int) ([]models.BotDonation, error) {
	rows, err := s.db.QueryContext(ctx, queryGetBotDonations, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get donations: %w", err)
	}
	defer rows.Close()

	var donations []models.BotDonation
	for rows.Next() {
		var d models.BotDonation
		if err := rows.Scan(&d.Id, &d.UserId, &d.Username, &d.Amount, &d.ChargeId, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}
		donations = append(donations, d)
	}
	return donations, rows.Err()
}

// GetBotDonationStats aggregates direct donations. The average is truncated.
func (s *Service) GetBotDonationStats(ctx context.Context) (*models.BotDonationStats, error) {
	var stats models.BotDonationStats
	var count int64
	err := s.db.QueryRowContext(ctx, queryBotDonationStats).
		Scan(&stats.TotalAmount, &stats.TotalDonors, &count, &stats.MaxAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to get donation stats: %w", err)
	}
	if count > 0 {
		stats.AverageAmount = decimal.NewFromInt(stats.TotalAmount).
			Div(decimal.NewFromInt(count)).
			Truncate(0).
			IntPart()
	}
	return &stats, nil
}

// ReconcileCampaigns lists campaigns whose total drifted from their contributions.
func (s *Service) ReconcileCampaigns(ctx context.Context) ([]models.CampaignMismatch, error) {
	rows, err := s.db.QueryContext(ctx, queryReconcileCampaigns)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile campaigns: %w", err)
	}
	defer rows.Close()

	var mismatches []models.CampaignMismatch
	for rows.Next() {
		var m models.CampaignMismatch
		if err := rows.Scan(&m.CampaignId, &m.TotalReceived, &m.ContributionsSum); err != nil {
			return nil, fmt.Errorf("failed to scan campaign mismatch: %w", err)
		}
		mismatches = append(mismatches, m)
	}
	return mismatches, rows.Err()
}
