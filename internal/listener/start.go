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

package listener

import (
	"context"
	"strconv"
	"strings"

	"stars-storefront-go/internal/botapi"
	"stars-storefront-go/internal/gate"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
)

func isStartCommand(text string) bool {
	command, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	command, _, _ = strings.Cut(command, "@")
	return command == "/start"
}

// startReferrer extracts the referrer id from "/start <id>". Self-referral
// and malformed ids are ignored.
func startReferrer(text string, userId int64) *int64 {
	_, arg, found := strings.Cut(strings.TrimSpace(text), " ")
	if !found {
		return nil
	}
	referrerId, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || referrerId <= 0 || referrerId == userId {
		return nil
	}
	return &referrerId
}

// processStart registers the sender on first contact, crediting the
// referrer's invite count when the start link carried one
func (l *UpdateListener) processStart(ctx context.Context, message botapi.Message) {
	if message.From == nil || message.From.IsBot {
		return
	}
	from := message.From
	if decision := l.gate.Admit(ctx, from.Id); decision != gate.Allowed {
		return
	}

	user, created, err := l.users.EnsureUser(ctx, store.EnsureUserParams{
		UserId:     from.Id,
		Username:   from.Username,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
		ReferrerId: startReferrer(message.Text, from.Id),
	})
	if err != nil {
		zap.L().Error("Failed to register user", zap.Int64("user_id", from.Id), zap.Error(err))
		return
	}
	if created {
		zap.L().Info("New user registered",
			zap.Int64("user_id", user.Id),
			zap.Bool("referred", user.ReferrerId != nil))
	}

	if err := l.bot.SendMessage(ctx, message.Chat.Id, l.welcomeText); err != nil {
		zap.L().Warn("Failed to send welcome message", zap.Int64("user_id", from.Id), zap.Error(err))
	}
}
