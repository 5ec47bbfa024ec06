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

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var productType string
	err := row.Scan(
		&p.Id,
		&p.Name,
		&p.Description,
		&p.Price,
		&productType,
		&p.DeliveryContent,
		&p.Stock,
		&p.IsLimited,
		&p.IsActive,
		&p.Category,
		&p.ImageUrl,
		&p.DiscountPercentage,
		&p.SalesCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Type = models.ProductType(productType)
	return &p, nil
}

func (s *Service) CreateProduct(ctx context.Context, product models.NewProduct) (*models.Product, error) {
	if err := product.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidProduct, err)
	}

	stock := models.UnlimitedStock
	if product.Stock != nil {
		stock = *product.Stock
	}
	isLimited := stock != models.UnlimitedStock
	if product.Type == models.ProductTypeCode {
		stock = 0
		isLimited = true
	}

	var created *models.Product
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		var productId int64
		err := tx.QueryRowContext(ctx, queryInsertProduct,
			product.Name,
			product.Description,
			product.Price,
			string(product.Type),
			product.DeliveryContent,
			stock,
			boolToInt(isLimited),
			boolToInt(!product.Inactive),
			product.Category,
			product.ImageUrl,
			product.DiscountPercentage,
			now,
			now,
		).Scan(&productId)
		if err != nil {
			return fmt.Errorf("failed to insert product: %w", err)
		}

		if product.Type == models.ProductTypeCode {
			if _, err := s.addCodesTx(ctx, tx, productId, product.Codes); err != nil {
				return err
			}
		}

		created, err = scanProduct(tx.QueryRowContext(ctx, queryGetProduct, productId))
		if err != nil {
			return fmt.Errorf("failed to read product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Product created",
		zap.Int64("product_id", created.Id),
		zap.String("name", created.Name),
		zap.String("type", string(created.Type)),
		zap.Int64("price", created.Price),
		zap.Int64("stock", created.Stock))
	return created, nil
}

func (s *Service) GetProduct(ctx context.Context, productId int64) (*models.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, queryGetProduct, productId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", store.ErrProductNotFound, productId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	query := queryListProducts
	if activeOnly {
		query = queryListActiveProducts
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// UpdateProduct applies an administrator patch. The current row is read and
// rewritten in one IMMEDIATE transaction so concurrent patches serialize.
func (s *Service) UpdateProduct(ctx context.Context, productId int64, patch models.ProductPatch) (*models.Product, error) {
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidPatch, err)
	}

	var updated *models.Product
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanProduct(tx.QueryRowContext(ctx, queryGetProduct, productId))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", store.ErrProductNotFound, productId)
		}
		if err != nil {
			return fmt.Errorf("failed to get product: %w", err)
		}

		next, err := patch.Apply(*current)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidPatch, err)
		}

		now := s.now()
		_, err = tx.ExecContext(ctx, queryUpdateProduct,
			next.Name,
			next.Description,
			next.Price,
			string(next.Type),
			next.DeliveryContent,
			next.Stock,
			boolToInt(next.IsLimited),
			boolToInt(next.IsActive),
			next.Category,
			next.DiscountPercentage,
			now,
			productId,
		)
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", store.ErrInvalidPatch, err)
		}
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}

		if next.Type == models.ProductTypeCode {
			if _, err := tx.ExecContext(ctx, querySyncCodeStock, now, productId); err != nil {
				return fmt.Errorf("failed to sync code stock: %w", err)
			}
		}

		updated, err = scanProduct(tx.QueryRowContext(ctx, queryGetProduct, productId))
		if err != nil {
			return fmt.Errorf("failed to read product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Product updated",
		zap.Int64("product_id", productId),
		zap.Int64("price", updated.Price),
		zap.Int64("stock", updated.Stock),
		zap.Bool("active", updated.IsActive))
	return updated, nil
}

// DeleteProduct removes a product and its unused codes. A product whose
// codes were dispensed keeps its row so the buyers' codes stay on record;
// deactivate it instead.
func (s *Service) DeleteProduct(ctx context.Context, productId int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var used int64
		if err := tx.QueryRowContext(ctx, queryCountUsedCodes, productId).Scan(&used); err != nil {
			return fmt.Errorf("failed to count used codes: %w", err)
		}
		if used > 0 {
			return fmt.Errorf("%w: product %d has %d used codes", store.ErrProductHasSales, productId, used)
		}

		if _, err := tx.ExecContext(ctx, queryDeleteUnusedCodes, productId); err != nil {
			return fmt.Errorf("failed to delete unused codes: %w", err)
		}
		result, err := tx.ExecContext(ctx, queryDeleteProduct, productId)
		if err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("%w: %d", store.ErrProductNotFound, productId)
		}
		return nil
	})
	if err != nil {
		return err
	}

	zap.L().Info("Product deleted", zap.Int64("product_id", productId))
	return nil
}

// DecreaseStock takes one unit from a limited product. The predicated update
// is the compare-and-swap: zero affected rows means no stock was left.
func (s *Service) DecreaseStock(ctx context.Context, productId int64) (bool, error) {
	return s.decreaseStock(ctx, s.db, productId)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Service) decreaseStock(ctx context.Context, e execer, productId int64) (bool, error) {
	result, err := e.ExecContext(ctx, queryDecreaseStock, s.now(), productId)
	if err != nil {
		return false, fmt.Errorf("failed to decrease stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		zap.L().Debug("Stock decrement rejected", zap.Int64("product_id", productId))
		return false, nil
	}
	return true, nil
}

// DispenseCode assigns one unused code to userId. Selection and marking are a
// single UPDATE ... RETURNING inside an IMMEDIATE transaction, so a code is
// handed to exactly one caller. The product's derived stock is refreshed in
// the same transaction.
func (s *Service) DispenseCode(ctx context.Context, productId, userId int64) (string, error) {
	var code string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		code, err = s.dispenseCodeTx(ctx, tx, productId, userId)
		return err
	})
	if err != nil {
		return "", err
	}

	zap.L().Info("Code dispensed",
		zap.Int64("product_id", productId),
		zap.Int64("user_id", userId))
	return code, nil
}

func (s *Service) dispenseCodeTx(ctx context.Context, tx *sql.Tx, productId, userId int64) (string, error) {
	now := s.now()

	var code string
	err := tx.QueryRowContext(ctx, queryDispenseCode, userId, now, productId).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: product %d", store.ErrNoCodesAvailable, productId)
	}
	if err != nil {
		return "", fmt.Errorf("failed to dispense code: %w", err)
	}

	if _, err := tx.ExecContext(ctx, querySyncCodeStock, now, productId); err != nil {
		return "", fmt.Errorf("failed to sync code stock: %w", err)
	}
	return code, nil
}

// AddCodes loads codes for a code product. Blank values and codes already
// present for the product are skipped. Returns the number inserted.
func (s *Service) AddCodes(ctx context.Context, productId int64, codes []string) (int, error) {
	var inserted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		product, err := scanProduct(tx.QueryRowContext(ctx, queryGetProduct, productId))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", store.ErrProductNotFound, productId)
		}
		if err != nil {
			return fmt.Errorf("failed to get product: %w", err)
		}
		if product.Type != models.ProductTypeCode {
			return fmt.Errorf("%w: product %d is of type %q", store.ErrInvalidProduct, productId, product.Type)
		}

		inserted, err = s.addCodesTx(ctx, tx, productId, codes)
		return err
	})
	if err != nil {
		return 0, err
	}

	zap.L().Info("Codes added",
		zap.Int64("product_id", productId),
		zap.Int("submitted", len(codes)),
		zap.Int("inserted", inserted))
	return inserted, nil
}

func (s *Service) addCodesTx(ctx context.Context, tx *sql.Tx, productId int64, codes []string) (int, error) {
	now := s.now()

	stmt, err := tx.PrepareContext(ctx, queryInsertCode)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare code insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		result, err := stmt.ExecContext(ctx, productId, code, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert code: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 1 {
			inserted++
		}
	}

	if _, err := tx.ExecContext(ctx, querySyncCodeStock, now, productId); err != nil {
		return 0, fmt.Errorf("failed to sync code stock: %w", err)
	}
	return inserted, nil
}

func (s *Service) CountAvailableCodes(ctx context.Context, productId int64) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, queryCountAvailableCodes, productId).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count codes: %w", err)
	}
	return count, nil
}

// ResyncCodeStock rewrites the derived stock of every code product whose
// stock drifted from its unused code count. Returns the number corrected.
func (s *Service) ResyncCodeStock(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, queryResyncAllCodeStock)
	if err != nil {
		return 0, fmt.Errorf("failed to resync code stock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		zap.L().Warn("Code product stock corrected", zap.Int64("products", rows))
	}
	return rows, nil
}
