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
	"fmt"
	"io"
	"strings"
	"time"

	"stars-storefront-go/internal/models"
)

const ReportWidth = 78

// PrintHeader prints a formatted header with title and separators
func PrintHeader(w io.Writer, title string) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", ReportWidth))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", ReportWidth))
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(w io.Writer, message string) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", ReportWidth))
	fmt.Fprintln(w, message)
	fmt.Fprintln(w, strings.Repeat("=", ReportWidth)+"\n")
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// FormatStock renders a product's remaining stock
func FormatStock(p models.Product) string {
	if !p.IsLimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", p.Stock)
}

// FormatTime renders an optional timestamp
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// PrintProducts lists products one per line
func PrintProducts(w io.Writer, products []models.Product) {
	for i, p := range products {
		status := "active"
		if !p.IsActive {
			status = "inactive"
		}
		price := fmt.Sprintf("%d", p.Price)
		if p.DiscountPercentage > 0 {
			price = fmt.Sprintf("%d (-%d%% = %d)", p.Price, p.DiscountPercentage, p.FinalPrice())
		}
		fmt.Fprintf(w, "%s#%-5d %-28s %-8s price: %-18s stock: %-10s sold: %-5d %s\n",
			BoxPrefix(i == len(products)-1),
			p.Id, p.Name, p.Type, price, FormatStock(p), p.SalesCount, status)
	}
}

// PrintUser prints a user's account summary
func PrintUser(w io.Writer, user models.User) {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if user.Username != "" {
		name = fmt.Sprintf("%s (@%s)", name, user.Username)
	}
	fmt.Fprintf(w, "\n┌─ User %d: %s\n", user.Id, name)
	fmt.Fprintf(w, "│  Balance:    %d\n", user.Balance)
	fmt.Fprintf(w, "│  Spent:      %d over %d purchases\n", user.TotalSpent, user.TotalPurchases)
	fmt.Fprintf(w, "│  Referrals:  %d\n", user.ReferralCount)
	if user.ReferrerId != nil {
		fmt.Fprintf(w, "│  Referred by %d\n", *user.ReferrerId)
	}
	if user.IsBanned {
		fmt.Fprintf(w, "└  BANNED: %s\n", user.BanReason)
		return
	}
	fmt.Fprintln(w, "└  Active")
}

// PrintOrder prints one order with its delivery state
func PrintOrder(w io.Writer, order models.Order) {
	fmt.Fprintf(w, "\n┌─ Order #%d (%s)\n", order.Id, order.PaymentId)
	fmt.Fprintf(w, "│  Buyer:     %d\n", order.UserId)
	fmt.Fprintf(w, "│  Product:   #%d %s\n", order.ProductId, order.ProductName)
	fmt.Fprintf(w, "│  Price:     %d - %d = %d\n", order.Price, order.DiscountAmount, order.FinalPrice)
	fmt.Fprintf(w, "│  Status:    %s / delivery %s\n", order.Status, order.DeliveryStatus)
	fmt.Fprintf(w, "│  Created:   %s\n", FormatTime(&order.CreatedAt))
	fmt.Fprintf(w, "└  Completed: %s\n", FormatTime(order.CompletedAt))
}
