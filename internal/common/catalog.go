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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"stars-storefront-go/internal/models"
	"stars-storefront-go/internal/store"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// CatalogFile is the seed file layout
type CatalogFile struct {
	Products []models.NewProduct `yaml:"products"`
}

// LoadCatalog reads and validates a product seed file. Unknown keys are
// rejected so a typo never silently drops a field.
func LoadCatalog(catalogFile string) ([]models.NewProduct, error) {
	var catalogPath string
	if filepath.IsAbs(catalogFile) {
		catalogPath = catalogFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		catalogPath = filepath.Join(wd, catalogFile)
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", catalogFile, err)
	}

	var catalog CatalogFile
	if err := yaml.UnmarshalStrict(data, &catalog); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", catalogFile, err)
	}

	if len(catalog.Products) == 0 {
		return nil, fmt.Errorf("%s defines no products", catalogFile)
	}
	for i, product := range catalog.Products {
		if err := product.Validate(); err != nil {
			return nil, fmt.Errorf("product at index %d (%q): %w", i, product.Name, err)
		}
	}

	return catalog.Products, nil
}

// SeedCatalog creates every product whose name is not in the store yet and
// returns how many were created
func SeedCatalog(ctx context.Context, inventory store.InventoryStore, products []models.NewProduct) (int, error) {
	existing, err := inventory.ListProducts(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("failed to list products: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, p := range existing {
		names[p.Name] = true
	}

	created := 0
	for _, product := range products {
		if names[product.Name] {
			zap.L().Info("Product already exists, skipping", zap.String("name", product.Name))
			continue
		}
		p, err := inventory.CreateProduct(ctx, product)
		if err != nil {
			return created, fmt.Errorf("failed to create %q: %w", product.Name, err)
		}
		names[product.Name] = true
		created++
		zap.L().Info("Product seeded",
			zap.Int64("product_id", p.Id),
			zap.String("name", p.Name),
			zap.String("type", string(p.Type)),
			zap.Int64("stock", p.Stock))
	}
	return created, nil
}
