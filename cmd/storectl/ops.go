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
	"strconv"
	"strings"

	"stars-storefront-go/internal/api"
	"stars-storefront-go/internal/botapi"
	"stars-storefront-go/internal/common"
	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/settings"
	"stars-storefront-go/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const logTypeAdmin = "admin"

func orderCmd() *cobra.Command {
	var paymentId string

	cmd := &cobra.Command{
		Use:   "order [order-id]",
		Short: "Show an order by id or by payment charge id",
		Args:  cobra.MaximumNArgs(1),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			var (
				order *models.Order
				err   error
			)
			switch {
			case paymentId != "":
				order, err = env.db.GetOrderByPaymentId(ctx, paymentId)
			case len(args) == 1:
				var orderId int64
				if orderId, err = parseId(args[0], "order id"); err != nil {
					return err
				}
				order, err = env.db.GetOrder(ctx, orderId)
			default:
				return errors.New("an order id or --payment-id is required")
			}
			if err != nil {
				return err
			}
			common.PrintOrder(cmd.OutOrStdout(), *order)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&paymentId, "payment-id", "p", "", "Platform charge id of the order")
	return cmd
}

func maintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "maintenance [on|off|status]",
		Short:     "Close or reopen the store to customers",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off", "status"},
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			runtime, err := settings.NewRuntime(ctx, env.db, env.cfg.Store.MaintenanceMode)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if args[0] == "status" {
				snapshot := runtime.Current()
				fmt.Fprintf(out, "Maintenance: %t (version %d, updated %s)\n",
					snapshot.Maintenance, snapshot.Version, common.FormatTime(&snapshot.UpdatedAt))
				return nil
			}

			enabled := args[0] == "on"
			snapshot, err := runtime.SetMaintenance(ctx, enabled, 0)
			if err != nil {
				return err
			}
			if err := env.db.AddLog(ctx, store.AuditParams{
				Type:    logTypeAdmin,
				Action:  "maintenance_" + args[0],
				Details: "set from storectl",
			}); err != nil {
				env.logger.Warn("Failed to write audit log", zap.Error(err))
			}
			fmt.Fprintf(out, "Maintenance: %t (version %d); the server picks this up on its next settings reload\n",
				snapshot.Maintenance, snapshot.Version)
			return nil
		}),
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print sales and donation totals",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			sales, err := env.db.GetSalesStats(ctx)
			if err != nil {
				return err
			}
			donations, err := env.db.GetBotDonationStats(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			common.PrintHeader(out, "STORE STATISTICS")
			fmt.Fprintf(out, "Users:            %d\n", sales.TotalUsers)
			fmt.Fprintf(out, "Orders:           %d (%d completed, %d failed)\n",
				sales.TotalOrders, sales.CompletedOrders, sales.FailedOrders)
			fmt.Fprintf(out, "Revenue:          %d\n", sales.Revenue)
			fmt.Fprintf(out, "Active products:  %d\n", sales.ActiveProducts)
			fmt.Fprintf(out, "Donations:        %d from %d donors (avg %d, max %d)\n",
				donations.TotalAmount, donations.TotalDonors, donations.AverageAmount, donations.MaxAmount)
			common.PrintFooter(out, "")
			return nil
		}),
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Check balances and campaigns against their journals and resync code stock",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			balances, err := env.db.ReconcileAllBalances(ctx)
			if err != nil {
				return err
			}
			for _, m := range balances {
				fmt.Fprintf(out, "balance  user %d: stored %d, journal %d\n", m.UserId, m.Balance, m.JournalSum)
			}

			campaigns, err := env.db.ReconcileCampaigns(ctx)
			if err != nil {
				return err
			}
			for _, m := range campaigns {
				fmt.Fprintf(out, "campaign #%d: received %d, contributions %d\n",
					m.CampaignId, m.TotalReceived, m.ContributionsSum)
			}

			resynced, err := env.db.ResyncCodeStock(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%d balance mismatches, %d campaign mismatches, %d code products resynced\n",
				len(balances), len(campaigns), resynced)
			if len(balances)+len(campaigns) > 0 {
				return errors.New("reconciliation found mismatches")
			}
			return nil
		}),
	}
}

func auditCmd() *cobra.Command {
	var (
		logType string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the newest audit log lines",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			logs, err := env.db.GetLogs(ctx, logType, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, l := range logs {
				user := "-"
				if l.UserId != nil {
					user = strconv.FormatInt(*l.UserId, 10)
				}
				fmt.Fprintf(out, "%s%s %-9s %-32s user %-12s %s\n",
					common.BoxPrefix(i == len(logs)-1),
					common.FormatTime(&l.Timestamp), l.Type, l.Action, user, l.Details)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&logType, "type", "t", "", "Filter by log type (security, payment, purchase, error, admin)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum lines")
	return cmd
}

func invoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Send an invoice to a customer through the bot",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "product [user-id] [product-id]",
		Short: "Send a product invoice",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			userId, err := parseId(args[0], "user id")
			if err != nil {
				return err
			}
			productId, err := parseId(args[1], "product id")
			if err != nil {
				return err
			}
			service, err := invoicingService(env)
			if err != nil {
				return err
			}
			invoice, err := service.SendProductInvoice(ctx, userId, productId)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %q for %d stars (%s)\n", invoice.Title, invoice.Amount, invoice.Payload)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "donate [user-id] [amount]",
		Short: "Send a donation invoice",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			userId, err := parseId(args[0], "user id")
			if err != nil {
				return err
			}
			amount, err := parseId(args[1], "amount")
			if err != nil {
				return err
			}
			service, err := invoicingService(env)
			if err != nil {
				return err
			}
			invoice, err := service.SendDonationInvoice(ctx, userId, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent donation invoice for %d stars (%s)\n", invoice.Amount, invoice.Payload)
			return nil
		}),
	})

	return cmd
}

func invoicingService(env *environment) (*api.StoreService, error) {
	bot, err := botapi.NewClient(env.cfg.Bot)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot client: %w", err)
	}
	return api.NewStoreService(env.db, bot, env.cfg.Store), nil
}

func campaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Open and inspect donation campaigns",
	}

	var (
		description string
		options     string
	)
	create := &cobra.Command{
		Use:   "create [donor-id] [target-amount]",
		Short: "Open a campaign on behalf of a donor",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			donorId, err := parseId(args[0], "donor id")
			if err != nil {
				return err
			}
			target, err := parseId(args[1], "target amount")
			if err != nil {
				return err
			}
			amounts, err := parseOptions(options)
			if err != nil {
				return err
			}

			result, err := storeService(env).CreateCampaign(ctx, donorId, target, description, amounts)
			if err != nil {
				return err
			}
			if !result.Success {
				return errors.New(result.Error)
			}
			printCampaign(cmd, result.Campaign)
			return nil
		}),
	}
	create.Flags().StringVarP(&description, "description", "d", "", "Campaign description")
	create.Flags().StringVarP(&options, "options", "o", "", "Comma separated contribution amounts")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "show [token]",
		Short: "Resolve a campaign link token",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			result, err := storeService(env).CampaignByToken(ctx, args[0])
			if err != nil {
				return err
			}
			if !result.Success {
				return errors.New(result.Error)
			}
			printCampaign(cmd, result.Campaign)
			return nil
		}),
	})

	return cmd
}

func parseOptions(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var amounts []int64
	for _, part := range strings.Split(raw, ",") {
		amount, err := parseId(strings.TrimSpace(part), "option amount")
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, amount)
	}
	return amounts, nil
}

func printCampaign(cmd *cobra.Command, campaign *models.DonationCampaign) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n┌─ Campaign #%d by %d\n", campaign.Id, campaign.DonorId)
	fmt.Fprintf(out, "│  %s\n", campaign.Description)
	fmt.Fprintf(out, "│  Raised:  %d of %d\n", campaign.TotalReceived, campaign.TargetAmount)
	fmt.Fprintf(out, "│  Options: %v\n", campaign.Options)
	fmt.Fprintf(out, "└  Token:   %s\n", campaign.UrlToken)
}
