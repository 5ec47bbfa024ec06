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

package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every backend and by the payment flow
var (
	// Conflict
	ErrDuplicateOrder     = errors.New("order already exists for payment")
	ErrDuplicatePayment   = errors.New("payment reference already recorded")
	ErrOutOfStock         = errors.New("product out of stock")
	ErrNoCodesAvailable   = errors.New("no unused codes available")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrProductHasSales    = errors.New("product has dispensed codes")

	// Integrity
	ErrUserNotFound     = errors.New("user not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrCampaignNotFound = errors.New("campaign not found")

	// Validation
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidPatch   = errors.New("invalid product patch")
	ErrInvalidProduct = errors.New("invalid product")
	ErrInvalidPayload = errors.New("malformed invoice payload")
	ErrPayerMismatch  = errors.New("payload user does not match payer")
	ErrPriceMismatch  = errors.New("charge amount does not match current price")
	ErrInactive       = errors.New("product is not available")

	// Delivery
	ErrDeliveryFailed = errors.New("delivery to user failed")
)

// Kind classifies failures so callers can decide between rejecting,
// failing an order, or escalating to administrators.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindIntegrity
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindIntegrity:
		return "integrity"
	case KindDelivery:
		return "delivery"
	default:
		return "internal"
	}
}

// Error attaches a Kind and the failing operation to an underlying error
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and operation name. A nil err stays nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err. Explicit *Error kinds win over sentinel matching.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	switch {
	case errors.Is(err, ErrDuplicateOrder),
		errors.Is(err, ErrDuplicatePayment),
		errors.Is(err, ErrOutOfStock),
		errors.Is(err, ErrNoCodesAvailable),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientPoints),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrProductHasSales):
		return KindConflict
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrCampaignNotFound):
		return KindIntegrity
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidPatch),
		errors.Is(err, ErrInvalidProduct),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrPayerMismatch),
		errors.Is(err, ErrPriceMismatch),
		errors.Is(err, ErrInactive):
		return KindValidation
	case errors.Is(err, ErrDeliveryFailed):
		return KindDelivery
	}
	return KindInternal
}
