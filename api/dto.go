/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Route definitions
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/commerce-ledger/catalog"
	"github.com/warp/commerce-ledger/ledger"
)

// =============================================================================
// ACCOUNT TYPES
// =============================================================================

// RegisterRequest is the request to create an account.
type RegisterRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// LoginRequest is the request to authenticate.
type LoginRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// AccountDTO represents an account in API responses. The password hash
// never leaves the server.
type AccountDTO struct {
	Handle    string `json:"handle"`
	CreatedAt string `json:"created_at,omitempty"`
}

// =============================================================================
// COUPON TYPES
// =============================================================================

// CouponDTO represents a coupon in API responses.
type CouponDTO struct {
	Code       string          `json:"code"`
	Discount   decimal.Decimal `json:"discount"`
	Kind       string          `json:"kind"`
	PointsCost int64           `json:"points_cost,omitempty"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

// CreateCouponRequest is the request to issue a regular coupon.
type CreateCouponRequest struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}

// AssignCouponRequest links an existing coupon to an account.
type AssignCouponRequest struct {
	Handle string `json:"handle"`
	Code   string `json:"code"`
}

// AssignmentDTO represents an (account, coupon) link.
type AssignmentDTO struct {
	Handle     string `json:"handle"`
	Code       string `json:"code"`
	AssignedAt string `json:"assigned_at"`
}

// =============================================================================
// REWARDS TYPES
// =============================================================================

// PurchaseRequest records a purchase against the rewards ledger.
type PurchaseRequest struct {
	Handle string          `json:"handle"`
	Amount decimal.Decimal `json:"amount"`
	Items  []string        `json:"items,omitempty"`
}

// PurchaseDTO is one purchase history entry.
type PurchaseDTO struct {
	ID           string          `json:"id"`
	Handle       string          `json:"handle"`
	Amount       decimal.Decimal `json:"amount"`
	PointsEarned int64           `json:"points_earned"`
	Items        []string        `json:"items,omitempty"`
	At           string          `json:"at"`
}

// EarnResponseDTO is returned after recording a purchase.
type EarnResponseDTO struct {
	Purchase PurchaseDTO `json:"purchase"`
	Balance  int64       `json:"balance"`
}

// BalanceDTO is the current point balance of an account.
type BalanceDTO struct {
	Handle  string `json:"handle"`
	Balance int64  `json:"balance"`
}

// RedeemRequest converts points into a freshly minted coupon.
type RedeemRequest struct {
	Handle string `json:"handle"`
	Points int64  `json:"points"`
}

// RedeemResponseDTO is the success payload of a redemption.
type RedeemResponseDTO struct {
	Coupon           CouponDTO `json:"coupon"`
	RemainingBalance int64     `json:"remaining_balance"`
}

// =============================================================================
// CATALOG TYPES
// =============================================================================

// ShopDTO represents a shop in API responses.
type ShopDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Owner     string `json:"owner"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateShopRequest creates a shop owned by the given account.
type CreateShopRequest struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// UpdateShopRequest renames a shop. Owner identifies the caller; ownership
// is checked against the stored record.
type UpdateShopRequest struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// ShopItemDTO represents an item in API responses.
type ShopItemDTO struct {
	ID          string          `json:"id"`
	ShopID      string          `json:"shop_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Stock       int64           `json:"stock"`
	Available   bool            `json:"available"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

// CreateItemRequest adds an item to a shop.
type CreateItemRequest struct {
	Owner       string          `json:"owner"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Stock       int64           `json:"stock"`
	Available   bool            `json:"available"`
}

// UpdateItemRequest modifies an item. Owner identifies the caller.
type UpdateItemRequest struct {
	Owner       string          `json:"owner"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Stock       int64           `json:"stock"`
	Available   bool            `json:"available"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toCouponDTO(c ledger.Coupon) CouponDTO {
	return CouponDTO{
		Code:       c.Code,
		Discount:   c.Discount,
		Kind:       string(c.Kind),
		PointsCost: c.PointsCost,
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
	}
}

func toCouponDTOs(coupons []ledger.Coupon) []CouponDTO {
	dtos := make([]CouponDTO, len(coupons))
	for i, c := range coupons {
		dtos[i] = toCouponDTO(c)
	}
	return dtos
}

func toPurchaseDTO(p ledger.PurchaseRecord) PurchaseDTO {
	return PurchaseDTO{
		ID:           p.ID,
		Handle:       string(p.Account),
		Amount:       p.Amount,
		PointsEarned: p.PointsEarned,
		Items:        p.Items,
		At:           p.At.Format(time.RFC3339),
	}
}

func toShopDTO(s catalog.Shop) ShopDTO {
	return ShopDTO{
		ID:        s.ID,
		Name:      s.Name,
		Owner:     s.Owner,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

func toItemDTO(item catalog.ShopItem) ShopItemDTO {
	return ShopItemDTO{
		ID:          item.ID,
		ShopID:      item.ShopID,
		Name:        item.Name,
		Description: item.Description,
		Price:       item.Price,
		Category:    item.Category,
		Stock:       item.Stock,
		Available:   item.Available,
		CreatedAt:   item.CreatedAt.Format(time.RFC3339),
	}
}
