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
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"stars-storefront-go/internal/common"
	"stars-storefront-go/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func seedCmd() *cobra.Command {
	var catalogFile string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load products from a catalog file, skipping names already present",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			products, err := common.LoadCatalog(catalogFile)
			if err != nil {
				return err
			}
			created, err := common.SeedCatalog(ctx, env.db, products)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d of %d products from %s\n", created, len(products), catalogFile)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&catalogFile, "file", "f", "catalog.yaml", "Catalog YAML file")
	return cmd
}

func productCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage catalog products",
	}
	cmd.AddCommand(productListCmd())
	cmd.AddCommand(productAddCmd())
	cmd.AddCommand(productUpdateCmd())
	cmd.AddCommand(productDeleteCmd())
	return cmd
}

func productListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			products, err := env.db.ListProducts(ctx, !all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			common.PrintHeader(out, "PRODUCT CATALOG")
			common.PrintProducts(out, products)
			common.PrintFooter(out, fmt.Sprintf("%d products", len(products)))
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include inactive products")
	return cmd
}

func productAddCmd() *cobra.Command {
	var (
		product  models.NewProduct
		kind     string
		stock    int64
		codeFile string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			product.Type = models.ProductType(kind)
			if cmd.Flags().Changed("stock") {
				product.Stock = &stock
			}
			if codeFile != "" {
				codes, err := readCodes(codeFile)
				if err != nil {
					return err
				}
				product.Codes = codes
			}

			created, err := env.db.CreateProduct(ctx, product)
			if err != nil {
				return err
			}
			common.PrintProducts(cmd.OutOrStdout(), []models.Product{*created})
			return nil
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&product.Name, "name", "", "Product name")
	flags.StringVar(&product.Description, "description", "", "Product description")
	flags.Int64Var(&product.Price, "price", 0, "Price in stars")
	flags.StringVar(&kind, "type", string(models.ProductTypeText), "Product type (file, image, text, code, balance)")
	flags.StringVar(&product.DeliveryContent, "content", "", "Delivery content (file id, image url, text or balance amount)")
	flags.Int64Var(&stock, "stock", -1, "Units available, -1 for unlimited")
	flags.StringVar(&product.Category, "category", "", "Catalog category")
	flags.StringVar(&product.ImageUrl, "image-url", "", "Invoice photo url")
	flags.Int64Var(&product.DiscountPercentage, "discount", 0, "Discount percentage")
	flags.BoolVar(&product.Inactive, "inactive", false, "Create the product hidden")
	flags.StringVar(&codeFile, "codes", "", "File of codes, one per line, for code products")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func productUpdateCmd() *cobra.Command {
	var (
		name        string
		description string
		price       int64
		kind        string
		content     string
		stock       int64
		active      bool
		category    string
		discount    int64
	)

	cmd := &cobra.Command{
		Use:   "update [product-id]",
		Short: "Change product fields; only flags given are updated",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			productId, err := parseId(args[0], "product id")
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			var patch models.ProductPatch
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("price") {
				patch.Price = &price
			}
			if flags.Changed("type") {
				productType := models.ProductType(kind)
				patch.Type = &productType
			}
			if flags.Changed("content") {
				patch.DeliveryContent = &content
			}
			if flags.Changed("stock") {
				patch.Stock = &stock
			}
			if flags.Changed("active") {
				patch.IsActive = &active
			}
			if flags.Changed("category") {
				patch.Category = &category
			}
			if flags.Changed("discount") {
				patch.DiscountPercentage = &discount
			}
			if patch.IsEmpty() {
				return fmt.Errorf("nothing to update")
			}

			updated, err := env.db.UpdateProduct(ctx, productId, patch)
			if err != nil {
				return err
			}
			common.PrintProducts(cmd.OutOrStdout(), []models.Product{*updated})
			return nil
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "Product name")
	flags.StringVar(&description, "description", "", "Product description")
	flags.Int64Var(&price, "price", 0, "Price in stars")
	flags.StringVar(&kind, "type", "", "Product type")
	flags.StringVar(&content, "content", "", "Delivery content")
	flags.Int64Var(&stock, "stock", 0, "Units available, -1 for unlimited")
	flags.BoolVar(&active, "active", true, "Whether the product is listed")
	flags.StringVar(&category, "category", "", "Catalog category")
	flags.Int64Var(&discount, "discount", 0, "Discount percentage")
	return cmd
}

func productDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [product-id]",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			productId, err := parseId(args[0], "product id")
			if err != nil {
				return err
			}
			if err := env.db.DeleteProduct(ctx, productId); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted product #%d\n", productId)
			return nil
		}),
	}
}

func codesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Manage redemption codes of code products",
	}
	cmd.AddCommand(codesAddCmd())
	cmd.AddCommand(codesCountCmd())
	return cmd
}

func codesAddCmd() *cobra.Command {
	var codeFile string

	cmd := &cobra.Command{
		Use:   "add [product-id] [code...]",
		Short: "Add codes given as arguments or read from a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			productId, err := parseId(args[0], "product id")
			if err != nil {
				return err
			}

			codes := args[1:]
			if codeFile != "" {
				fromFile, err := readCodes(codeFile)
				if err != nil {
					return err
				}
				codes = append(codes, fromFile...)
			}
			if len(codes) == 0 {
				return fmt.Errorf("no codes given")
			}

			inserted, err := env.db.AddCodes(ctx, productId, codes)
			if err != nil {
				return err
			}
			env.logger.Info("Codes added",
				zap.Int64("product_id", productId),
				zap.Int("submitted", len(codes)),
				zap.Int("inserted", inserted))
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d of %d codes to product #%d\n", inserted, len(codes), productId)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&codeFile, "file", "f", "", "File of codes, one per line")
	return cmd
}

func codesCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count [product-id]",
		Short: "Count unused codes of a product",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, env *environment, cmd *cobra.Command, args []string) error {
			productId, err := parseId(args[0], "product id")
			if err != nil {
				return err
			}
			available, err := env.db.CountAvailableCodes(ctx, productId)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Product #%d has %d unused codes\n", productId, available)
			return nil
		}),
	}
}

func readCodes(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open codes file: %w", err)
	}
	defer file.Close()

	var codes []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if code := strings.TrimSpace(scanner.Text()); code != "" {
			codes = append(codes, code)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read codes file: %w", err)
	}
	return codes, nil
}
