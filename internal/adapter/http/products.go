package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/radar-regrid/internal/adapter/catalog"
	"github.com/couchcryptid/radar-regrid/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// ProductCatalog is the read side of the product catalog.
type ProductCatalog interface {
	List(ctx context.Context, f catalog.Filter) ([]domain.RasterProduct, error)
	Get(ctx context.Context, id string) (domain.RasterProduct, error)
}

type productHandler struct {
	catalog ProductCatalog
	logger  *slog.Logger
}

type productList struct {
	Products []domain.RasterProduct `json:"products"`
	Count    int                    `json:"count"`
}

// list serves GET /products?site=&moment=&since=&until=&limit=.
func (h *productHandler) list(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	products, err := h.catalog.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list products failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("catalog unavailable"))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, productList{Products: products, Count: len(products)})
}

// get serves GET /products/{id}.
func (h *productHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := h.catalog.Get(r.Context(), id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		h.logger.Error("get product failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("catalog unavailable"))
	default:
		sharedobs.WriteJSON(w, http.StatusOK, p)
	}
}

func parseFilter(r *http.Request) (catalog.Filter, error) {
	q := r.URL.Query()
	f := catalog.Filter{
		SiteID: q.Get("site"),
		Moment: q.Get("moment"),
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > catalog.MaxLimit {
			return catalog.Filter{}, errors.New("limit must be 1-" + strconv.Itoa(catalog.MaxLimit))
		}
		f.Limit = n
	}

	var err error
	if f.Since, err = parseTime(q.Get("since")); err != nil {
		return catalog.Filter{}, errors.New("since must be RFC3339")
	}
	if f.Until, err = parseTime(q.Get("until")); err != nil {
		return catalog.Filter{}, errors.New("until must be RFC3339")
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
