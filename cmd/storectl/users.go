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

package main

import (
	"context"
	"errors"
	"fmt"

	"stars-storefront-go/internal/api"
	"stars-storefront-go/internal/common"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// storeService builds the API facade for commands that do not send invoices
func storeService(env *environment) *api.StoreService {
	return api.NewStoreService(env.db, nil, env.cfg.Store)
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect and moderate customers",
	}
	cmd.AddCommand(userListCmd())
	cmd.AddCommand(userShowCmd())
	cmd.AddCommand(userBanCmd())
	cmd.AddCommand(userUnbanCmd())
	cmd.AddCommand(userExchangeCmd())
	return cmd
}

func userListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List customers by join date",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			users, err := common.LookupUsers(ctx, env.db, 0, limit, env.logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			common.PrintHeader(out, "CUSTOMERS")
			for _, user := range users {
				common.PrintUser(out, user)
			}
			common.PrintFooter(out, fmt.Sprintf("%d users", len(users)))
			return nil
		}),
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", common.DefaultUserPage, "Maximum users")
	return cmd
}

func userShowCmd() *cobra.Command {
	var orders int

	cmd := &cobra.Command{
		Use:   "show [user-id]",
		Short: "Show a customer with points and recent orders",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			userId, err := parseId(args[0], "user id")
			if err != nil {
				return err
			}

			users, err := common.LookupUsers(ctx, env.db, userId, 1, env.logger)
			if err != nil {
				return err
			}

			service := storeService(env)
			balance, err := service.GetBalance(ctx, userId)
			if err != nil {
				return err
			}
			if !balance.Success {
				return errors.New(balance.Error)
			}

			out := cmd.OutOrStdout()
			common.PrintUser(out, users[0])
			fmt.Fprintf(out, "   Points:     %d\n", balance.Points)

			history, err := service.GetOrderHistory(ctx, userId, orders)
			if err != nil {
				return err
			}
			for _, order := range history {
				common.PrintOrder(out, order)
			}
			return nil
		}),
	}

	cmd.Flags().IntVarP(&orders, "orders", "n", 5, "Recent orders to show")
	return cmd
}

func userBanCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "ban [user-id]",
		Short: "Ban a customer permanently",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			userId, err := parseId(args[0], "user id")
			if err != nil {
				return err
			}
			if err := env.db.BanUser(ctx, userId, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d banned\n", userId)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "banned by administrator", "Reason shown in reports")
	return cmd
}

func userUnbanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unban [user-id]",
		Short: "Lift a permanent ban",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			userId, err := parseId(args[0], "user id")
			if err != nil {
				return err
			}
			if err := env.db.UnbanUser(ctx, userId); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d unbanned\n", userId)
			return nil
		}),
	}
}

func userExchangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exchange [user-id] [points]",
		Short: "Convert a customer's referral points into balance",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			userId, err := parseId(args[0], "user id")
			if err != nil {
				return err
			}
			points, err := parseId(args[1], "points")
			if err != nil {
				return err
			}

			result, err := storeService(env).ExchangePoints(ctx, userId, points)
			if err != nil {
				return err
			}
			if !result.Success {
				return errors.New(result.Error)
			}

			env.logger.Info("Points exchanged by administrator",
				zap.Int64("user_id", userId),
				zap.Int64("points_spent", result.PointsSpent),
				zap.Int64("stars_credited", result.StarsCredited))
			fmt.Fprintf(cmd.OutOrStdout(), "Spent %d points for %d stars; balance %d, %d points left\n",
				result.PointsSpent, result.StarsCredited, result.NewBalance, result.RemainingPoints)
			return nil
		}),
	}
}
