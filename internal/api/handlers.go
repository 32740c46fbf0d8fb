package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/asride/kessler/internal/catalog"
	"github.com/asride/kessler/internal/conjunction"
	"github.com/asride/kessler/internal/events"
	"github.com/asride/kessler/internal/propagation"
)

const maxBodyBytes = 1 << 16

type handlers struct {
	catalog        *catalog.Catalog
	engine         *conjunction.Engine
	store          events.Store
	analyzeTimeout time.Duration
	logger         *slog.Logger
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "operational",
		"satellites_tracked": h.catalog.Len(),
	})
}

func (h *handlers) analyzeRisk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var q conjunction.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q.ObjectA = strings.TrimSpace(q.ObjectA)
	q.ObjectB = strings.TrimSpace(q.ObjectB)
	if q.ObjectA == "" || q.ObjectB == "" {
		writeError(w, http.StatusBadRequest, "object_a_name and object_b_name are required")
		return
	}

	ctx := r.Context()
	if h.analyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.analyzeTimeout)
		defer cancel()
	}

	a, err := h.engine.Analyze(ctx, q)
	if err != nil {
		status := analyzeStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("analysis failed",
				"component", "api",
				"object_a", q.ObjectA,
				"object_b", q.ObjectB,
				"error", err,
			)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.Result)
}

func analyzeStatus(err error) int {
	switch {
	case errors.Is(err, catalog.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrCatalogNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, propagation.ErrPropagation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) satellites(w http.ResponseWriter, r *http.Request) {
	names := h.catalog.Names(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{
		"satellites": names,
		"count":      len(names),
	})
}

func (h *handlers) constellation(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, catalog.DefaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(catalog.DefaultListLimit))
		return
	}
	listing := h.engine.FilterCatalog(r.Context(), r.PathValue("name"), h.engine.Now(), limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"constellation": listing.Term,
		"count":         len(listing.Satellites),
		"satellites":    listing.Satellites,
		"skipped":       listing.Skipped,
	})
}

func (h *handlers) feedPage(ctx context.Context) []events.RiskEvent {
	return events.Feed(ctx, h.store, h.logger)
}

func (h *handlers) feed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": h.feedPage(r.Context())})
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, events.FeedPageSize)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(events.FeedPageSize))
		return
	}
	records := []events.AuditRecord{}
	if h.store != nil {
		recs, err := h.store.RecentAudits(r.Context(), limit)
		if err != nil {
			h.logger.Warn("history unavailable", "component", "api", "error", err)
			writeError(w, http.StatusServiceUnavailable, "history unavailable")
			return
		}
		if recs != nil {
			records = recs
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// parseLimit reads ?limit= in [1, upper], defaulting to upper when absent.
func parseLimit(r *http.Request, upper int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return upper, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > upper {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
