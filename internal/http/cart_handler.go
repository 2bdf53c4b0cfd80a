package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CartHandler struct {
	carts   *cart.Registry
	catalog *service.CatalogService
	timeout time.Duration
}

func NewCartHandler(carts *cart.Registry, catalog *service.CatalogService, timeout time.Duration) *CartHandler {
	return &CartHandler{carts: carts, catalog: catalog, timeout: timeout}
}

type AddItemRequestDTO struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Items []domain.CartLine `json:"items"`
	Count int               `json:"count"`
	Total decimal.Decimal   `json:"total"`
}

func cartResponse(c *cart.Store) CartResponse {
	lines := c.Lines()
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return CartResponse{Items: lines, Count: domain.LinesCount(lines), Total: domain.LinesTotal(lines)}
}

func (h *CartHandler) cart(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	c, err := h.carts.Get(r.Context(), SessionID(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	return c, true
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cart(w, r)
	if !ok {
		return
	}
	respondJSON(w, r, http.StatusOK, cartResponse(c))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "productId is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	product, err := h.catalog.Product(ctx, req.ProductID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	c, ok := h.cart(w, r)
	if !ok {
		return
	}

	if _, added := c.AddToCart(ctx, *product, req.Quantity); !added {
		respondError(w, r, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
		return
	}
	respondJSON(w, r, http.StatusCreated, cartResponse(c))
}

// PUT /api/v1/cart/items/{line_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	c, ok := h.cart(w, r)
	if !ok {
		return
	}

	lineID := chi.URLParam(r, "line_id")
	if _, found := c.Line(lineID); !found {
		respondError(w, r, http.StatusNotFound, "not_found", "cart line not found")
		return
	}
	c.UpdateQuantity(r.Context(), lineID, req.Quantity)
	respondJSON(w, r, http.StatusOK, cartResponse(c))
}

// DELETE /api/v1/cart/items/{line_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cart(w, r)
	if !ok {
		return
	}
	c.RemoveFromCart(r.Context(), chi.URLParam(r, "line_id"))
	respondJSON(w, r, http.StatusOK, cartResponse(c))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.cart(w, r)
	if !ok {
		return
	}
	c.ClearCart(r.Context())
	respondJSON(w, r, http.StatusOK, cartResponse(c))
}
