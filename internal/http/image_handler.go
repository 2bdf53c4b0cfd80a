package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fjod/storefront/internal/blob"
	"go.uber.org/zap"
)

type ImageHandler struct {
	blobs blob.Store
	log   *zap.Logger
}

func NewImageHandler(blobs blob.Store, log *zap.Logger) *ImageHandler {
	return &ImageHandler{blobs: blobs, log: log}
}

// GET /images/*
func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, ok := blob.NameFromURL(r.URL.Path)
	if !ok || !strings.HasPrefix(name, blob.ProductPrefix) {
		respondError(w, r, http.StatusNotFound, "not_found", "image not found")
		return
	}

	rc, info, err := h.blobs.Open(r.Context(), name)
	if errors.Is(err, blob.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, "not_found", "image not found")
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	defer rc.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	// Object names embed the upload time, so content never changes.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Debug("image write interrupted", zap.String("name", name), zap.Error(err))
	}
}
