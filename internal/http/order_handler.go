package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/internal/validate"
	"github.com/go-chi/chi/v5"
)

type OrderHandler struct {
	orders   *service.OrderService
	checkout *service.CheckoutService
	carts    *cart.Registry
	timeout  time.Duration
}

func NewOrderHandler(orders *service.OrderService, checkout *service.CheckoutService, carts *cart.Registry, timeout time.Duration) *OrderHandler {
	return &OrderHandler{orders: orders, checkout: checkout, carts: carts, timeout: timeout}
}

type CheckoutRequestDTO struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

type OrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

func ordersResponse(orders []domain.Order) OrdersResponse {
	if orders == nil {
		orders = []domain.Order{}
	}
	return OrdersResponse{Orders: orders}
}

// POST /api/v1/checkout
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	c, err := h.carts.Get(ctx, SessionID(ctx))
	if err != nil {
		handleError(w, r, err)
		return
	}

	res, err := h.checkout.Checkout(ctx, service.CheckoutRequest{
		User: UserFromContext(ctx),
		Cart: c,
		Shipping: validate.Shipping{
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Email:      req.Email,
			Address:    req.Address,
			City:       req.City,
			State:      req.State,
			PostalCode: req.PostalCode,
			Country:    req.Country,
			Phone:      req.Phone,
		},
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, r, status, res)
}

// GET /api/v1/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.UserOrders(ctx, UserFromContext(ctx).ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, ordersResponse(orders))
}

// GET /api/v1/orders/{order_id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := UserFromContext(ctx)
	order, err := h.orders.Order(ctx, user, chi.URLParam(r, "order_id"))
	if errors.Is(err, service.ErrForbidden) && user == nil {
		w.Header().Set("Location", identity.LoginPath)
		respondJSON(w, r, http.StatusUnauthorized, ErrorResponse{Error: "sign in required", Code: "unauthorized", Redirect: identity.LoginPath})
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, order)
}
