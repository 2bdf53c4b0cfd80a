package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/export"
	"github.com/fjod/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxUploadMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const maxUploadMemory = 8 << 20

type AdminHandler struct {
	admin   *service.AdminService
	orders  *service.OrderService
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewAdminHandler(admin *service.AdminService, orders *service.OrderService, timeout time.Duration, log *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, orders: orders, timeout: timeout, log: log, now: time.Now}
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

// GET /api/v1/admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	d, err := h.admin.Dashboard(ctx)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, d)
}

// GET /api/v1/admin/products
func (h *AdminHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.admin.ListProducts(ctx, r.URL.Query().Get("search"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, productsResponse(products))
}

// POST /api/v1/admin/products
//
// Accepts JSON, or a multipart form with a "product" JSON field and "images"
// file parts.
func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var in service.ProductInput
	uploads, cleanup, err := readProductForm(r, &in)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	defer cleanup()

	p, err := h.admin.CreateProduct(ctx, in, uploads)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, p)
}

// PUT /api/v1/admin/products/{id}
func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var patch domain.ProductPatch
	uploads, cleanup, err := readProductForm(r, &patch)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	defer cleanup()

	p, err := h.admin.UpdateProduct(ctx, chi.URLParam(r, "id"), patch, uploads)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, p)
}

// DELETE /api/v1/admin/products/{id}
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.admin.DeleteProduct(ctx, chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/admin/products/export
func (h *AdminHandler) ExportProducts(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "products", h.admin.ExportProducts)
}

// GET /api/v1/admin/orders/export
func (h *AdminHandler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "orders", h.admin.ExportOrders)
}

func (h *AdminHandler) export(w http.ResponseWriter, r *http.Request, name string, write func(context.Context, io.Writer) error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var buf bytes.Buffer
	if err := write(ctx, &buf); err != nil {
		handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.xlsx"`, name, h.now().UTC().Format("20060102")))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warn("failed to write export", zap.String("export", name), zap.Error(err))
	}
}

// GET /api/v1/admin/orders
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.SearchOrders(ctx, r.URL.Query().Get("search"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, ordersResponse(orders))
}

// PUT /api/v1/admin/orders/{order_id}/status
func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateStatusRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	status, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "invalid_status", service.ErrUnknownOrderStatus.Error())
		return
	}

	order, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "order_id"), status)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, order)
}

// readProductForm decodes the product fields into v and collects uploaded
// images. cleanup closes the opened parts.
func readProductForm(r *http.Request, v any) ([]service.ImageUpload, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := decodeJSON(r, v); err != nil {
			return nil, noop, errors.New("invalid JSON body")
		}
		return nil, noop, nil
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, noop, errors.New("invalid multipart form")
	}
	if raw := r.FormValue("product"); raw != "" {
		if err := json.Unmarshal([]byte(raw), v); err != nil {
			return nil, noop, errors.New("invalid product field")
		}
	}

	var (
		uploads []service.ImageUpload
		opened  []multipart.File
	)
	cleanup := func() {
		for _, f := range opened {
			f.Close()
		}
		r.MultipartForm.RemoveAll()
	}
	for _, fh := range r.MultipartForm.File["images"] {
		f, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("failed to read upload %q", fh.Filename)
		}
		opened = append(opened, f)
		uploads = append(uploads, service.ImageUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return uploads, cleanup, nil
}
