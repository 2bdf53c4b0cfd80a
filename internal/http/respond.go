package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/internal/validate"
	"go.uber.org/zap"
)

// NotificationsHeader carries the notifications raised while serving the
// request as a JSON array.
const NotificationsHeader = "X-Notifications"

type ErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Field    string `json:"field,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	flushNotifications(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, ErrorResponse{Error: message, Code: code})
}

func flushNotifications(w http.ResponseWriter, r *http.Request) {
	c := notify.FromContext(r.Context())
	if c == nil {
		return
	}
	items := c.Drain()
	if len(items) == 0 {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	w.Header().Set(NotificationsHeader, string(data))
}

// handleError maps service errors onto HTTP statuses.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := validate.AsError(err); ok {
		notify.ContextNotifier{}.Notify(r.Context(), notify.Failure(verr.Title, verr.Description))
		respondJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: verr.Description, Code: "validation_error", Field: verr.Field})
		return
	}

	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		respondError(w, r, http.StatusNotFound, "not_found", "product not found")
	case errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, r, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, service.ErrForbidden):
		respondError(w, r, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInvalidToken):
		respondError(w, r, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, identity.ErrEmailTaken):
		respondError(w, r, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, identity.ErrFederationDisabled):
		respondError(w, r, http.StatusNotImplemented, "not_configured", err.Error())
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, r, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, service.ErrIllegalTransition),
		errors.Is(err, service.ErrCheckoutInProgress):
		respondError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrCheckoutFailed):
		respondError(w, r, http.StatusPaymentRequired, "checkout_failed", err.Error())
	case errors.Is(err, payment.ErrGatewayUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.As(err, &gwErr):
		respondError(w, r, http.StatusBadGateway, "gateway_error", "payment gateway rejected the request")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
