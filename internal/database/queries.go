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

const (
	// User queries
	userColumns = `user_id, username, first_name, last_name, balance, total_spent, total_purchases,
		referrer_id, referral_count, is_banned, ban_reason, join_date, last_activity`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (user_id, username, first_name, last_name, referrer_id, join_date, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryTouchUser = `
		UPDATE users
		SET username = ?, first_name = ?, last_name = ?, last_activity = ?
		WHERE user_id = ?`

	queryUserExists = `
		SELECT 1 FROM users WHERE user_id = ?`

	queryIncrementReferralCount = `
		UPDATE users SET referral_count = referral_count + 1 WHERE user_id = ?`

	queryGetUser = `
		SELECT ` + userColumns + `
		FROM users
		WHERE user_id = ?`

	queryListUsers = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY join_date DESC, user_id
		LIMIT ? OFFSET ?`

	queryBanUser = `
		UPDATE users SET is_banned = 1, ban_reason = ? WHERE user_id = ?`

	queryUnbanUser = `
		UPDATE users SET is_banned = 0, ban_reason = '' WHERE user_id = ?`

	// Ledger queries
	queryCreditBalance = `
		UPDATE users
		SET balance = balance + ?
		WHERE user_id = ?
		RETURNING balance`

	queryDebitBalance = `
		UPDATE users
		SET balance = balance - ?
		WHERE user_id = ? AND balance >= ?
		RETURNING balance`

	queryGetBalance = `
		SELECT balance FROM users WHERE user_id = ?`

	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (id, user_id, kind, amount, balance_after, reference, created_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)`

	queryGetLedgerHistory = `
		SELECT id, user_id, kind, amount, balance_after, COALESCE(reference, ''), created_at
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(amount), 0) AS journal_balance
		FROM ledger_entries
		WHERE user_id = ?`

	queryReconcileAllBalances = `
		SELECT u.user_id, u.balance, COALESCE(SUM(l.amount), 0) AS journal_balance
		FROM users u
		LEFT JOIN ledger_entries l ON l.user_id = u.user_id
		GROUP BY u.user_id, u.balance
		HAVING u.balance != COALESCE(SUM(l.amount), 0)`

	// Product queries
	productColumns = `id, name, description, price, type, delivery_content, stock, is_limited, is_active,
		category, image_url, discount_percentage, sales_count, created_at, updated_at`

	queryInsertProduct = `
		INSERT INTO products (name, description, price, type, delivery_content, stock, is_limited, is_active,
			category, image_url, discount_percentage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	queryGetProduct = `
		SELECT ` + productColumns + `
		FROM products
		WHERE id = ?`

	queryListProducts = `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY category, id`

	queryListActiveProducts = `
		SELECT ` + productColumns + `
		FROM products
		WHERE is_active = 1
		ORDER BY category, id`

	queryUpdateProduct = `
		UPDATE products
		SET name = ?, description = ?, price = ?, type = ?, delivery_content = ?, stock = ?,
			is_limited = ?, is_active = ?, category = ?, discount_percentage = ?, updated_at = ?
		WHERE id = ?`

	queryDeleteProduct = `
		DELETE FROM products WHERE id = ?`

	queryCountUsedCodes = `
		SELECT COUNT(*) FROM codes WHERE product_id = ? AND is_used = 1`

	queryDeleteUnusedCodes = `
		DELETE FROM codes WHERE product_id = ? AND is_used = 0`

	// Code products are consumed through queryDispenseCode only.
	queryDecreaseStock = `
		UPDATE products
		SET stock = stock - 1, updated_at = ?
		WHERE id = ? AND is_limited = 1 AND stock > 0 AND type <> 'code'`

	queryIncrementSalesCount = `
		UPDATE products SET sales_count = sales_count + 1 WHERE id = ?`

	// Code queries
	queryInsertCode = `
		INSERT OR IGNORE INTO codes (product_id, code_value, created_at)
		VALUES (?, ?, ?)`

	queryDispenseCode = `
		UPDATE codes
		SET is_used = 1, used_by = ?, used_at = ?
		WHERE id = (
			SELECT id FROM codes
			WHERE product_id = ? AND is_used = 0
			ORDER BY id
			LIMIT 1
		) AND is_used = 0
		RETURNING code_value`

	queryCountAvailableCodes = `
		SELECT COUNT(*) FROM codes WHERE product_id = ? AND is_used = 0`

	querySyncCodeStock = `
		UPDATE products
		SET stock = (SELECT COUNT(*) FROM codes WHERE codes.product_id = products.id AND codes.is_used = 0),
			is_limited = 1, updated_at = ?
		WHERE id = ? AND type = 'code'`

	queryResyncAllCodeStock = `
		UPDATE products
		SET stock = (SELECT COUNT(*) FROM codes WHERE codes.product_id = products.id AND codes.is_used = 0),
			is_limited = 1
		WHERE type = 'code'
		  AND (is_limited = 0 OR stock != (SELECT COUNT(*) FROM codes WHERE codes.product_id = products.id AND codes.is_used = 0))`

	// Order queries
	orderColumns = `id, user_id, product_id, product_name, payment_id, price, discount_amount, final_price,
		status, delivery_status, delivery_content, created_at, completed_at`

	queryInsertOrder = `
		INSERT INTO orders (user_id, product_id, product_name, payment_id, price, discount_amount, final_price,
			status, delivery_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 'pending', ?)
		RETURNING id`

	queryUpdateOrderStatus = `
		UPDATE orders
		SET status = ?,
			delivery_status = COALESCE(NULLIF(?, ''), delivery_status),
			delivery_content = COALESCE(?, delivery_content),
			completed_at = CASE WHEN ? = 'completed' THEN ? ELSE completed_at END
		WHERE id = ? AND status = 'pending'`

	queryCompleteOrder = `
		UPDATE orders
		SET status = 'completed', delivery_status = ?, delivery_content = COALESCE(?, delivery_content), completed_at = ?
		WHERE id = ? AND status = 'pending'
		RETURNING user_id, product_id, final_price`

	queryBookPurchase = `
		UPDATE users
		SET total_spent = total_spent + ?, total_purchases = total_purchases + 1
		WHERE user_id = ?
		RETURNING total_purchases, referrer_id`

	queryMarkDelivered = `
		UPDATE orders
		SET delivery_status = 'delivered'
		WHERE id = ? AND status = 'completed' AND delivery_status = 'failed'`

	queryGetOrderStatus = `
		SELECT status FROM orders WHERE id = ?`

	queryGetOrder = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = ?`

	queryGetOrderByPaymentId = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE payment_id = ?`

	queryListUserOrders = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	querySalesStats = `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM orders),
			(SELECT COUNT(*) FROM orders WHERE status = 'completed'),
			(SELECT COUNT(*) FROM orders WHERE status = 'failed'),
			(SELECT COALESCE(SUM(final_price), 0) FROM orders WHERE status = 'completed'),
			(SELECT COUNT(*) FROM products WHERE is_active = 1)`

	// Rate limit queries
	queryGetRateLimit = `
		SELECT user_id, request_count, last_reset, failed_attempts, is_temp_banned, temp_ban_until
		FROM rate_limits
		WHERE user_id = ?`

	querySaveRequestWindow = `
		INSERT INTO rate_limits (user_id, request_count, last_reset)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			request_count = excluded.request_count,
			last_reset = excluded.last_reset`

	queryClearTempBan = `
		UPDATE rate_limits
		SET is_temp_banned = 0, temp_ban_until = NULL, failed_attempts = 0
		WHERE user_id = ?`

	queryIncrementFailedAttempts = `
		INSERT INTO rate_limits (user_id, request_count, last_reset, failed_attempts)
		VALUES (?, 0, ?, 1)
		ON CONFLICT(user_id) DO UPDATE SET failed_attempts = failed_attempts + 1`

	queryApplyTempBan = `
		UPDATE rate_limits
		SET is_temp_banned = 1, temp_ban_until = ?
		WHERE user_id = ? AND failed_attempts >= ? AND is_temp_banned = 0`

	queryClearExpiredBans = `
		UPDATE rate_limits
		SET is_temp_banned = 0, temp_ban_until = NULL, failed_attempts = 0
		WHERE is_temp_banned = 1 AND temp_ban_until <= ?`

	queryDeleteStaleRateLimits = `
		DELETE FROM rate_limits
		WHERE is_temp_banned = 0 AND failed_attempts = 0 AND last_reset < ?`

	// Donation queries
	campaignColumns = `id, donor_id, description, target_amount, total_received, options, url_token, created_at`

	queryInsertCampaign = `
		INSERT INTO donation_campaigns (donor_id, description, target_amount, options, url_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	queryGetCampaign = `
		SELECT ` + campaignColumns + `
		FROM donation_campaigns
		WHERE id = ?`

	queryGetCampaignByToken = `
		SELECT ` + campaignColumns + `
		FROM donation_campaigns
		WHERE url_token = ?`

	queryListDonorCampaigns = `
		SELECT ` + campaignColumns + `
		FROM donation_campaigns
		WHERE donor_id = ?
		ORDER BY created_at DESC, id DESC`

	queryIncrementCampaignTotal = `
		UPDATE donation_campaigns
		SET total_received = total_received + ?
		WHERE id = ?`

	queryInsertContribution = `
		INSERT INTO donation_contributions (campaign_id, contributor_id, amount, charge_id, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?)`

	queryGetContributions = `
		SELECT id, campaign_id, contributor_id, amount, COALESCE(charge_id, ''), created_at
		FROM donation_contributions
		WHERE campaign_id = ?
		ORDER BY id`

	queryCreditPoints = `
		INSERT INTO user_points (user_id, points, total_earned, total_exchanged, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			points = points + excluded.points,
			total_earned = total_earned + excluded.total_earned,
			updated_at = excluded.updated_at`

	queryDebitPoints = `
		UPDATE user_points
		SET points = points - ?, total_exchanged = total_exchanged + ?, updated_at = ?
		WHERE user_id = ? AND points >= ?
		RETURNING points`

	queryGetUserPoints = `
		SELECT user_id, points, total_earned, total_exchanged, updated_at
		FROM user_points
		WHERE user_id = ?`

	queryInsertBotDonation = `
		INSERT INTO bot_donations (user_id, username, amount, charge_id, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?)`

	queryGetBotDonations = `
		SELECT id, user_id, username, amount, COALESCE(charge_id, ''), created_at
		FROM bot_donations
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	queryBotDonationStats = `
		SELECT COALESCE(SUM(amount), 0), COUNT(DISTINCT user_id), COUNT(*), COALESCE(MAX(amount), 0)
		FROM bot_donations`

	queryReconcileCampaigns = `
		SELECT c.id, c.total_received, COALESCE(SUM(d.amount), 0) AS contributions
		FROM donation_campaigns c
		LEFT JOIN donation_contributions d ON d.campaign_id = c.id
		GROUP BY c.id, c.total_received
		HAVING c.total_received != COALESCE(SUM(d.amount), 0)`

	// Settings queries
	queryGetSetting = `
		SELECT value FROM settings WHERE key = ?`

	querySetSetting = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	// Audit queries
	queryInsertLog = `
		INSERT INTO logs (type, user_id, action, details, timestamp)
		VALUES (?, NULLIF(?, 0), ?, ?, ?)`

	queryGetLogs = `
		SELECT id, type, user_id, action, details, timestamp
		FROM logs
		WHERE ? = '' OR type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`
)
