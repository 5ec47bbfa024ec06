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

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Credit adds a positive amount to a user's balance and returns the new balance.
func (s *Service) Credit(ctx context.Context, params store.LedgerParams) (int64, error) {
	if params.Amount <= 0 {
		return 0, fmt.Errorf("%w: credit amount must be positive, got %d", store.ErrInvalidAmount, params.Amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	balance, err := s.creditTx(ctx, tx, params)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Balance credited",
		zap.Int64("user_id", params.UserId),
		zap.Int64("amount", params.Amount),
		zap.String("kind", params.Kind),
		zap.String("reference", params.Reference),
		zap.Int64("balance_after", balance))
	return balance, nil
}

// Debit subtracts amount only if the balance covers it. A false result with a
// nil error means insufficient funds; the balance is untouched.
func (s *Service) Debit(ctx context.Context, params store.LedgerParams) (bool, error) {
	if params.Amount <= 0 {
		return false, fmt.Errorf("%w: debit amount must be positive, got %d", store.ErrInvalidAmount, params.Amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	balance, err := s.debitTx(ctx, tx, params)
	if errors.Is(err, store.ErrInsufficientFunds) {
		zap.L().Info("Debit rejected for insufficient balance",
			zap.Int64("user_id", params.UserId),
			zap.Int64("amount", params.Amount))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Balance debited",
		zap.Int64("user_id", params.UserId),
		zap.Int64("amount", params.Amount),
		zap.String("kind", params.Kind),
		zap.Int64("balance_after", balance))
	return true, nil
}

// Transfer debits FromId and credits ToId inside one transaction. When the
// debit cannot be covered nothing is written and false is returned.
func (s *Service) Transfer(ctx context.Context, params store.TransferParams) (bool, error) {
	if params.Amount <= 0 {
		return false, fmt.Errorf("%w: transfer amount must be positive, got %d", store.ErrInvalidAmount, params.Amount)
	}
	if params.FromId == params.ToId {
		return false, fmt.Errorf("%w: cannot transfer to the same user", store.ErrInvalidAmount)
	}

	outRef, inRef := "", ""
	if params.Reference != "" {
		outRef = params.Reference + ":out"
		inRef = params.Reference + ":in"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = s.debitTx(ctx, tx, store.LedgerParams{
		UserId:    params.FromId,
		Amount:    params.Amount,
		Kind:      store.EntryKindTransferOut,
		Reference: outRef,
	})
	if errors.Is(err, store.ErrInsufficientFunds) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := s.creditTx(ctx, tx, store.LedgerParams{
		UserId:    params.ToId,
		Amount:    params.Amount,
		Kind:      store.EntryKindTransferIn,
		Reference: inRef,
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Balance transferred",
		zap.Int64("from_user_id", params.FromId),
		zap.Int64("to_user_id", params.ToId),
		zap.Int64("amount", params.Amount))
	return true, nil
}

func (s *Service) creditTx(ctx context.Context, tx *sql.Tx, params store.LedgerParams) (int64, error) {
	kind := params.Kind
	if kind == "" {
		kind = store.EntryKindCredit
	}

	var balance int64
	err := tx.QueryRowContext(ctx, queryCreditBalance, params.Amount, params.UserId).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d", store.ErrUserNotFound, params.UserId)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit balance: %w", err)
	}

	if err := s.insertLedgerEntry(ctx, tx, params.UserId, kind, params.Amount, balance, params.Reference); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) debitTx(ctx context.Context, tx *sql.Tx, params store.LedgerParams) (int64, error) {
	kind := params.Kind
	if kind == "" {
		kind = store.EntryKindDebit
	}

	var balance int64
	err := tx.QueryRowContext(ctx, queryDebitBalance, params.Amount, params.UserId, params.Amount).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		var exists int
		lookupErr := tx.QueryRowContext(ctx, queryUserExists, params.UserId).Scan(&exists)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %d", store.ErrUserNotFound, params.UserId)
		}
		if lookupErr != nil {
			return 0, fmt.Errorf("failed to look up user: %w", lookupErr)
		}
		return 0, store.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit balance: %w", err)
	}

	if err := s.insertLedgerEntry(ctx, tx, params.UserId, kind, -params.Amount, balance, params.Reference); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) insertLedgerEntry(ctx context.Context, tx *sql.Tx, userId int64, kind string, amount, balanceAfter int64, reference string) error {
	_, err := tx.ExecContext(ctx, queryInsertLedgerEntry,
		uuid.New().String(), userId, kind, amount, balanceAfter, reference, s.now())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", store.ErrDuplicatePayment, reference)
	}
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (s *Service) GetBalance(ctx context.Context, userId int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, queryGetBalance, userId).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %d", store.ErrUserNotFound, userId)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func (s *Service) GetLedgerHistory(ctx context.Context, userId int64, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetLedgerHistory, userId, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger history: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.Id, &e.UserId, &e.Kind, &e.Amount, &e.BalanceAfter, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReconcileBalance verifies that a user's balance equals the sum of their journal.
func (s *Service) ReconcileBalance(ctx context.Context, userId int64) error {
	balance, err := s.GetBalance(ctx, userId)
	if err != nil {
		return err
	}

	var journal int64
	if err := s.db.QueryRowContext(ctx, queryReconcileBalance, userId).Scan(&journal); err != nil {
		return fmt.Errorf("error calculating journal balance: %w", err)
	}

	if balance != journal {
		zap.L().Error("Balance reconciliation failed",
			zap.Int64("user_id", userId),
			zap.Int64("stored_balance", balance),
			zap.Int64("journal_balance", journal))
		return fmt.Errorf("balance mismatch for user %d: stored=%d journal=%d", userId, balance, journal)
	}
	return nil
}

// ReconcileAllBalances lists every user whose balance drifted from the journal.
func (s *Service) ReconcileAllBalances(ctx context.Context) ([]models.BalanceMismatch, error) {
	rows, err := s.db.QueryContext(ctx, queryReconcileAllBalances)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile balances: %w", err)
	}
	defer rows.Close()

	var mismatches []models.BalanceMismatch
	for rows.Next() {
		var m models.BalanceMismatch
		if err := rows.Scan(&m.UserId, &m.Balance, &m.JournalSum); err != nil {
			return nil, fmt.Errorf("failed to scan balance mismatch: %w", err)
		}
		mismatches = append(mismatches, m)
	}
	return mismatches, rows.Err()
}
