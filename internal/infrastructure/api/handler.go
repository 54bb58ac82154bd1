// Package api exposes the read-serving HTTP surface over already-stored
// data. Ingestion has no synchronous callers; these endpoints only query.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"billscan/internal/domain"
	"billscan/internal/ports"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

// Handler serves the read endpoints backed by the repository.
type Handler struct {
	repo   ports.Repository
	logger *slog.Logger
}

// New creates the read-API handler.
func New(repo ports.Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Router assembles the HTTP routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/bills/{congress}/{billType}/{billNumber}", h.handleGetBill)
		r.Get("/amendments/{congress}/{amendmentType}/{amendmentNumber}", h.handleGetAmendment)
		r.Get("/summaries/recent", h.handleRecentSummaries)
		r.Get("/status/errors", h.handleProcessingErrors)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// handleGetBill returns a bill joined with its analysis and amendments.
func (h *Handler) handleGetBill(w http.ResponseWriter, r *http.Request) {
	congress, err := strconv.Atoi(chi.URLParam(r, "congress"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "congress must be numeric")
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "billNumber"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "bill number must be numeric")
		return
	}
	key := domain.BillKey{Congress: congress, BillType: chi.URLParam(r, "billType"), BillNumber: number}

	bundle, err := h.repo.GetBillBundle(r.Context(), key)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "bill not found")
		return
	}
	if err != nil {
		h.logger.Error("get bill bundle", "bill", key.String(), "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, billResponse(bundle))
}

// handleGetAmendment returns an amendment joined with its analysis.
func (h *Handler) handleGetAmendment(w http.ResponseWriter, r *http.Request) {
	congress, err := strconv.Atoi(chi.URLParam(r, "congress"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "congress must be numeric")
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "amendmentNumber"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "amendment number must be numeric")
		return
	}
	key := domain.AmendmentKey{Congress: congress, AmendmentType: chi.URLParam(r, "amendmentType"), AmendmentNumber: number}

	bundle, err := h.repo.GetAmendmentBundle(r.Context(), key)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "amendment not found")
		return
	}
	if err != nil {
		h.logger.Error("get amendment bundle", "amendment", key.String(), "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, amendmentResponse(bundle))
}

// handleRecentSummaries returns the N most recent analyses with their
// targets' summary fields.
func (h *Handler) handleRecentSummaries(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	recent, err := h.repo.ListRecentAnalyses(r.Context(), limit)
	if err != nil {
		h.logger.Error("list recent analyses", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, recentResponse(recent))
}

// handleProcessingErrors returns all status rows with status=error.
func (h *Handler) handleProcessingErrors(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.repo.ListProcessingErrors(r.Context())
	if err != nil {
		h.logger.Error("list processing errors", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, errorsResponse(statuses))
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
