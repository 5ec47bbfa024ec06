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

package models

import (
	"fmt"
	"strconv"
	"strings"

	"stars-storefront-go/internal/validation"
)

// NewProduct describes a product to be added to the catalog.
// A nil Stock means unlimited. Code products derive stock from Codes.
type NewProduct struct {
	Name               string      `yaml:"name" validate:"required,max=128"`
	Description        string      `yaml:"description" validate:"max=4096"`
	Price              int64       `yaml:"price" validate:"gt=0"`
	Type               ProductType `yaml:"type" validate:"required,oneof=file image text code balance"`
	DeliveryContent    string      `yaml:"delivery_content"`
	Stock              *int64      `yaml:"stock" validate:"omitnil,gte=-1"`
	Category           string      `yaml:"category" validate:"max=64"`
	ImageUrl           string      `yaml:"image_url" validate:"omitempty,url"`
	DiscountPercentage int64       `yaml:"discount_percentage" validate:"gte=0,lte=100"`
	Inactive           bool        `yaml:"inactive"`
	Codes              []string    `yaml:"codes" validate:"dive,required"`
}

func (p NewProduct) Validate() error {
	if err := validation.Struct(p); err != nil {
		return err
	}
	if p.Type == ProductTypeBalance {
		if _, err := ParseBalanceCredit(p.DeliveryContent); err != nil {
			return err
		}
	}
	if p.Type != ProductTypeCode && len(p.Codes) > 0 {
		return fmt.Errorf("codes are only accepted for %q products", ProductTypeCode)
	}
	if p.Type == ProductTypeCode && p.Stock != nil {
		return fmt.Errorf("stock of %q products is derived from their codes", ProductTypeCode)
	}
	return nil
}

// ProductPatch enumerates the administrator-editable product fields.
// Nil fields are left unchanged.
type ProductPatch struct {
	Name               *string      `validate:"omitnil,min=1,max=128"`
	Description        *string      `validate:"omitnil,max=4096"`
	Price              *int64       `validate:"omitnil,gt=0"`
	Type               *ProductType `validate:"omitnil,oneof=file image text code balance"`
	DeliveryContent    *string
	Stock              *int64 `validate:"omitnil,gte=-1"`
	IsActive           *bool
	Category           *string `validate:"omitnil,max=64"`
	DiscountPercentage *int64  `validate:"omitnil,gte=0,lte=100"`
}

// IsEmpty reports whether the patch changes nothing
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Type == nil &&
		p.DeliveryContent == nil && p.Stock == nil && p.IsActive == nil &&
		p.Category == nil && p.DiscountPercentage == nil
}

func (p ProductPatch) Validate() error {
	if p.IsEmpty() {
		return fmt.Errorf("patch has no fields set")
	}
	return validation.Struct(p)
}

// Apply returns a copy of product with the patch applied. The result is
// checked for cross-field consistency (balance payloads, derived code stock).
func (p ProductPatch) Apply(product Product) (Product, error) {
	if p.Type != nil && *p.Type == ProductTypeCode && p.Stock != nil {
		return product, fmt.Errorf("stock of %q products is derived from their codes", ProductTypeCode)
	}
	if p.Type == nil && product.Type == ProductTypeCode && p.Stock != nil {
		return product, fmt.Errorf("stock of %q products is derived from their codes", ProductTypeCode)
	}

	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.Type != nil {
		product.Type = *p.Type
	}
	if p.DeliveryContent != nil {
		product.DeliveryContent = *p.DeliveryContent
	}
	if p.Stock != nil {
		product.Stock = *p.Stock
		product.IsLimited = *p.Stock != UnlimitedStock
	}
	if p.IsActive != nil {
		product.IsActive = *p.IsActive
	}
	if p.Category != nil {
		product.Category = *p.Category
	}
	if p.DiscountPercentage != nil {
		product.DiscountPercentage = *p.DiscountPercentage
	}

	if product.Type == ProductTypeCode {
		product.IsLimited = true
	}
	if product.Type == ProductTypeBalance {
		if _, err := ParseBalanceCredit(product.DeliveryContent); err != nil {
			return product, err
		}
	}
	return product, nil
}

// ParseBalanceCredit reads the credit amount stored in a balance product's payload
func ParseBalanceCredit(content string) (int64, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(content), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("balance product payload %q is not an integer amount", content)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("balance product payload must be positive, got %d", amount)
	}
	return amount, nil
}
