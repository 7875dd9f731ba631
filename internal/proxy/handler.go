package proxy

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/wishlistapp/catalog-server/internal/objectstore"
)

// Handler streams objects under the proxy prefix. Mount it at
// {prefix}/* with the prefix stripped from the request path.
type Handler struct {
	store  objectstore.Store
	logger *slog.Logger
}

// NewHandler creates a handler reading from store.
func NewHandler(store objectstore.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/")
	if err := objectstore.ValidateKey(key); err != nil {
		http.Error(w, "invalid object path", http.StatusBadRequest)
		return
	}

	obj, err := h.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			http.Error(w, "image not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to read object", "key", key, "error", err)
		http.Error(w, "storage unavailable", http.StatusBadGateway)
		return
	}
	defer obj.Body.Close()

	if obj.ETag != "" {
		w.Header().Set("ETag", obj.ETag)
		if match := r.Header.Get("If-None-Match"); match != "" && match == obj.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if !obj.LastModified.IsZero() {
		w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Debug("client went away while streaming object", "key", key, "error", err)
	}
}
