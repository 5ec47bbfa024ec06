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
	"strings"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

// GetSetting reports whether key is set and its value.
func (s *Service) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, queryGetSetting, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key cannot be empty")
	}
	if _, err := s.db.ExecContext(ctx, querySetSetting, key, value, s.now()); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	zap.L().Info("Setting updated", zap.String("key", key), zap.String("value", value))
	return nil
}

// AddLog appends an audit line. A zero UserId is stored as NULL.
func (s *Service) AddLog(ctx context.Context, params store.AuditParams) error {
	if params.Type == "" || params.Action == "" {
		return fmt.Errorf("audit log requires a type and an action")
	}
	if _, err := s.db.ExecContext(ctx, queryInsertLog,
		params.Type, params.UserId, params.Action, params.Details, s.now()); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// GetLogs returns the newest audit lines, optionally filtered by type.
func (s *Service) GetLogs(ctx context.Context, logType string, limit int) ([]models.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, queryGetLogs, logType, logType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		var userId sql.NullInt64
		if err := rows.Scan(&l.Id, &l.Type, &userId, &l.Action, &l.Details, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		l.UserId = nullInt64Ptr(userId)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
