/*
handlers.go - HTTP API handlers for the coupon and rewards system

PURPOSE:
  Exposes the ledger core via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    POST   /api/accounts/register       Register an account
    POST   /api/accounts/login          Authenticate

  Coupons:
    GET    /api/coupons                 List all coupons
    POST   /api/coupons                 Create a regular coupon
    GET    /api/coupons/{code}          Check one coupon
    DELETE /api/coupons/{code}          Delete coupon + cascade assignments
    POST   /api/coupons/assign          Assign a coupon to an account
    GET    /api/coupons/user/{handle}   Coupons assigned to an account
    DELETE /api/coupons/user/{handle}/coupon/{code}  Revoke one assignment

  Rewards:
    POST   /api/rewards/purchase        Record a purchase, earn points
    GET    /api/rewards/balance/{handle}    Current point balance
    GET    /api/rewards/purchases/{handle}  Purchase history, newest first
    POST   /api/rewards/redeem          Convert points into a coupon

  Catalog:
    GET/POST /api/shops, GET/PUT/DELETE /api/shops/{id}
    GET/POST /api/shops/{id}/items, GET/PUT/DELETE /api/items/{id}

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Bad credentials
  - 403: Mutation by a non-owner
  - 404: Entity not found
  - 409: Conflict (duplicate code/handle, already assigned)
  - 422: Business-rule violations (insufficient points)
  - 503: Storage unavailable

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/commerce-ledger/catalog"
	"github.com/warp/commerce-ledger/identity"
	"github.com/warp/commerce-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Backend  ledger.Backend
	Engine   *ledger.RedemptionEngine
	Registry *identity.Registry
	Catalog  catalog.Store
	Clock    ledger.Clock
}

// NewHandler creates a new handler over the given backend and services.
func NewHandler(backend ledger.Backend, engine *ledger.RedemptionEngine, registry *identity.Registry, cat catalog.Store, clock ledger.Clock) *Handler {
	return &Handler{
		Backend:  backend,
		Engine:   engine,
		Registry: registry,
		Catalog:  cat,
		Clock:    clock,
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// Register creates a new account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := h.Registry.Register(r.Context(), req.Handle, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateHandle):
			writeError(w, http.StatusConflict, "Handle already taken", err)
		case errors.Is(err, identity.ErrWeakPassword),
			errors.Is(err, identity.ErrInvalidHandle):
			writeError(w, http.StatusBadRequest, "Invalid registration", err)
		default:
			writeDomainError(w, "Failed to register", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, AccountDTO{
		Handle:    a.Handle,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	})
}

// Login authenticates a handle/password pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	account, err := h.Registry.Authenticate(r.Context(), req.Handle, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid handle or password", nil)
			return
		}
		writeDomainError(w, "Failed to authenticate", err)
		return
	}

	writeJSON(w, http.StatusOK, AccountDTO{Handle: string(account)})
}

// =============================================================================
// COUPON HANDLERS
// =============================================================================

// ListCoupons returns all coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Backend.ListCoupons(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list coupons", err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponDTOs(coupons))
}

// CreateCoupon creates a regular coupon under a caller-chosen code.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CreateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "Coupon code is required", nil)
		return
	}
	if strings.HasPrefix(req.Code, ledger.RewardCodePrefix) {
		writeDomainError(w, "Failed to create coupon", ledger.ErrReservedCode)
		return
	}
	if req.Discount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Discount must not be negative", nil)
		return
	}

	c := ledger.Coupon{
		Code:      req.Code,
		Discount:  req.Discount,
		Kind:      ledger.KindRegular,
		CreatedAt: h.Clock.Now(),
	}
	if err := h.Backend.CreateCoupon(r.Context(), c); err != nil {
		writeDomainError(w, "Failed to create coupon", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCouponDTO(c))
}

// CheckCoupon returns a single coupon by code.
func (h *Handler) CheckCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	c, err := h.Backend.GetCoupon(r.Context(), code)
	if err != nil {
		writeDomainError(w, "Failed to get coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponDTO(c))
}

// DeleteCoupon removes a coupon and all its assignments.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.Engine.DeleteCoupon(r.Context(), code); err != nil {
		writeDomainError(w, "Failed to delete coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "code": code})
}

// AssignCoupon links an existing coupon to an existing account.
func (h *Handler) AssignCoupon(w http.ResponseWriter, r *http.Request) {
	var req AssignCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := h.Engine.Assign(r.Context(), req.Handle, req.Code)
	if err != nil {
		writeDomainError(w, "Failed to assign coupon", err)
		return
	}

	writeJSON(w, http.StatusCreated, AssignmentDTO{
		Handle:     string(a.Account),
		Code:       a.Code,
		AssignedAt: a.AssignedAt.Format(time.RFC3339),
	})
}

// ListUserCoupons returns the coupons assigned to an account.
func (h *Handler) ListUserCoupons(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	coupons, err := h.Engine.ListForAccount(r.Context(), handle)
	if err != nil {
		writeDomainError(w, "Failed to list assigned coupons", err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponDTOs(coupons))
}

// RevokeUserCoupon removes one coupon from one account.
func (h *Handler) RevokeUserCoupon(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	code := chi.URLParam(r, "code")

	if err := h.Engine.RevokeOne(r.Context(), handle, code); err != nil {
		writeDomainError(w, "Failed to revoke coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "code": code})
}

// =============================================================================
// REWARDS HANDLERS
// =============================================================================

// RecordPurchase records a purchase and credits points.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	account, err := h.Registry.Resolve(ctx, req.Handle)
	if err != nil {
		writeDomainError(w, "Failed to record purchase", err)
		return
	}

	result, err := h.Backend.Earn(ctx, account, req.Amount, req.Items)
	if err != nil {
		writeDomainError(w, "Failed to record purchase", err)
		return
	}

	writeJSON(w, http.StatusCreated, EarnResponseDTO{
		Purchase: toPurchaseDTO(result.Record),
		Balance:  result.NewBalance,
	})
}

// GetBalance returns the current point balance of an account.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	ctx := r.Context()
	account, err := h.Registry.Resolve(ctx, handle)
	if err != nil {
		writeDomainError(w, "Failed to get balance", err)
		return
	}

	balance, err := h.Backend.Balance(ctx, account)
	if err != nil {
		writeDomainError(w, "Failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{Handle: handle, Balance: balance})
}

// GetPurchases returns purchase history for an account, newest first.
func (h *Handler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	ctx := r.Context()
	account, err := h.Registry.Resolve(ctx, handle)
	if err != nil {
		writeDomainError(w, "Failed to get purchases", err)
		return
	}

	records, err := h.Backend.History(ctx, account)
	if err != nil {
		writeDomainError(w, "Failed to get purchases", err)
		return
	}

	dtos := make([]PurchaseDTO, len(records))
	for i, rec := range records {
		dtos[i] = toPurchaseDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Redeem converts points into a freshly minted, assigned coupon.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Engine.Redeem(r.Context(), req.Handle, req.Points)
	if err != nil {
		writeDomainError(w, "Failed to redeem points", err)
		return
	}

	writeJSON(w, http.StatusCreated, RedeemResponseDTO{
		Coupon:           toCouponDTO(result.Coupon),
		RemainingBalance: result.RemainingBalance,
	})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListShops returns all shops.
func (h *Handler) ListShops(w http.ResponseWriter, r *http.Request) {
	shops, err := h.Catalog.ListShops(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list shops", err)
		return
	}

	dtos := make([]ShopDTO, len(shops))
	for i, s := range shops {
		dtos[i] = toShopDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateShop creates a shop owned by the given account.
func (h *Handler) CreateShop(w http.ResponseWriter, r *http.Request) {
	var req CreateShopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Shop name is required", nil)
		return
	}

	ctx := r.Context()
	if _, err := h.Registry.Resolve(ctx, req.Owner); err != nil {
		writeDomainError(w, "Failed to create shop", err)
		return
	}

	s := catalog.Shop{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Owner:     req.Owner,
		CreatedAt: h.Clock.Now(),
	}
	if err := h.Catalog.CreateShop(ctx, s); err != nil {
		writeDomainError(w, "Failed to create shop", err)
		return
	}

	writeJSON(w, http.StatusCreated, toShopDTO(s))
}

// GetShop returns a single shop.
func (h *Handler) GetShop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s, err := h.Catalog.GetShop(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get shop", err)
		return
	}
	writeJSON(w, http.StatusOK, toShopDTO(s))
}

// UpdateShop renames a shop. Only the owner may mutate.
func (h *Handler) UpdateShop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateShopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	s, err := h.ownedShop(ctx, id, req.Owner)
	if err != nil {
		writeDomainError(w, "Failed to update shop", err)
		return
	}

	s.Name = req.Name
	if err := h.Catalog.UpdateShop(ctx, s); err != nil {
		writeDomainError(w, "Failed to update shop", err)
		return
	}
	writeJSON(w, http.StatusOK, toShopDTO(s))
}

// DeleteShop removes a shop and its items. Only the owner may delete.
func (h *Handler) DeleteShop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	owner := r.URL.Query().Get("owner")

	ctx := r.Context()
	if _, err := h.ownedShop(ctx, id, owner); err != nil {
		writeDomainError(w, "Failed to delete shop", err)
		return
	}

	if err := h.Catalog.DeleteShop(ctx, id); err != nil {
		writeDomainError(w, "Failed to delete shop", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// ListShopItems returns the items of a shop.
func (h *Handler) ListShopItems(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "id")

	ctx := r.Context()
	if _, err := h.Catalog.GetShop(ctx, shopID); err != nil {
		writeDomainError(w, "Failed to list items", err)
		return
	}

	items, err := h.Catalog.ListShopItems(ctx, shopID)
	if err != nil {
		writeDomainError(w, "Failed to list items", err)
		return
	}

	dtos := make([]ShopItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateItem adds an item to a shop. Only the owner may add.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "id")

	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Item name is required", nil)
		return
	}
	if req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "Price must not be negative", nil)
		return
	}

	ctx := r.Context()
	if _, err := h.ownedShop(ctx, shopID, req.Owner); err != nil {
		writeDomainError(w, "Failed to create item", err)
		return
	}

	item := catalog.ShopItem{
		ID:          uuid.NewString(),
		ShopID:      shopID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Stock:       req.Stock,
		Available:   req.Available,
		CreatedAt:   h.Clock.Now(),
	}
	if err := h.Catalog.CreateItem(ctx, item); err != nil {
		writeDomainError(w, "Failed to create item", err)
		return
	}

	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// GetItem returns a single item.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.Catalog.GetItem(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// UpdateItem modifies an item. Only the shop owner may mutate.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "Price must not be negative", nil)
		return
	}

	ctx := r.Context()
	item, err := h.Catalog.GetItem(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to update item", err)
		return
	}
	if _, err := h.ownedShop(ctx, item.ShopID, req.Owner); err != nil {
		writeDomainError(w, "Failed to update item", err)
		return
	}

	item.Name = req.Name
	item.Description = req.Description
	item.Price = req.Price
	item.Category = req.Category
	item.Stock = req.Stock
	item.Available = req.Available

	if err := h.Catalog.UpdateItem(ctx, item); err != nil {
		writeDomainError(w, "Failed to update item", err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// DeleteItem removes an item. Only the shop owner may delete.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	owner := r.URL.Query().Get("owner")

	ctx := r.Context()
	item, err := h.Catalog.GetItem(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to delete item", err)
		return
	}
	if _, err := h.ownedShop(ctx, item.ShopID, owner); err != nil {
		writeDomainError(w, "Failed to delete item", err)
		return
	}

	if err := h.Catalog.DeleteItem(ctx, id); err != nil {
		writeDomainError(w, "Failed to delete item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// ownedShop loads a shop and verifies the caller owns it.
func (h *Handler) ownedShop(ctx context.Context, id, caller string) (catalog.Shop, error) {
	s, err := h.Catalog.GetShop(ctx, id)
	if err != nil {
		return catalog.Shop{}, err
	}
	if s.Owner != caller {
		return catalog.Shop{}, catalog.ErrNotOwner
	}
	return s, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the ledger/catalog error taxonomy onto HTTP status
// codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err),
		errors.Is(err, catalog.ErrShopNotFound),
		errors.Is(err, catalog.ErrItemNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsConflict(err), errors.Is(err, ledger.ErrDuplicateHandle):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, ledger.ErrInsufficientPoints):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, catalog.ErrNotOwner):
		writeError(w, http.StatusForbidden, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, ledger.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
