// Package api exposes the service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/batch"
	"github.com/sells-group/lead-intel/internal/enrichment"
	"github.com/sells-group/lead-intel/internal/evidence"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/service"
	"github.com/sells-group/lead-intel/internal/store"
)

const maxBodySize = 1 << 20

// Service is the subset of the service the handlers call.
type Service interface {
	Register(ctx context.Context, in model.TargetInput) (*model.Target, bool, error)
	Target(ctx context.Context, id string) (*model.Target, error)
	Targets(ctx context.Context, f store.TargetFilter) ([]model.Target, error)
	Verify(ctx context.Context, id string) (*evidence.Report, error)
	Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Report, error)
	VerifyBatch(ctx context.Context, ids []string) (batch.Summary, error)
	EnrichBatch(ctx context.Context, ids []string, includePremium bool) (batch.Summary, error)
	History(ctx context.Context, id string, limit int) ([]model.HistoryRecord, error)
	Contacts(ctx context.Context, id string) ([]model.Contact, error)
	Usage(ctx context.Context, provider string) (enrichment.Usage, error)
	Discover(ctx context.Context, query string, limit int) ([]evidence.Candidate, error)
}

var _ Service = (*service.Service)(nil)

// Deps configures the handler.
type Deps struct {
	Service     Service
	CORSOrigins []string
	// Ping reports backing-store health; nil means always healthy.
	Ping func(ctx context.Context) error
}

// NewHandler builds the API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", handleHealth(deps))
	r.Post("/discover", handleDiscover(deps))
	r.Get("/usage/{provider}", handleUsage(deps))
	r.Post("/batch/verify", handleVerifyBatch(deps))
	r.Post("/batch/enrich", handleEnrichBatch(deps))

	r.Route("/targets", func(r chi.Router) {
		r.Post("/", handleRegister(deps))
		r.Get("/", handleListTargets(deps))
		r.Get("/{id}", handleGetTarget(deps))
		r.Post("/{id}/verify", handleVerify(deps))
		r.Post("/{id}/enrich", handleEnrich(deps))
		r.Get("/{id}/history", handleHistory(deps))
		r.Get("/{id}/contacts", handleContacts(deps))
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ping != nil {
			if err := deps.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleRegister(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in model.TargetInput
		if !decode(w, r, &in) {
			return
		}
		t, created, err := deps.Service.Register(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		code := http.StatusOK
		if created {
			code = http.StatusCreated
		}
		writeJSON(w, code, t)
	}
}

func handleListTargets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, ok := intParam(w, q.Get("limit"), "limit")
		if !ok {
			return
		}
		offset, ok := intParam(w, q.Get("offset"), "offset")
		if !ok {
			return
		}
		targets, err := deps.Service.Targets(r.Context(), store.TargetFilter{
			Status:      model.Status(q.Get("status")),
			Temperature: model.Temperature(q.Get("temperature")),
			Limit:       limit,
			Offset:      offset,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"targets": targets})
	}
}

func handleGetTarget(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := deps.Service.Target(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleVerify(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := deps.Service.Verify(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleEnrich(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enrichment.Request
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		req.TargetID = chi.URLParam(r, "id")
		report, err := deps.Service.Enrich(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit")
		if !ok {
			return
		}
		recs, err := deps.Service.History(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": recs})
	}
}

func handleContacts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contacts, err := deps.Service.Contacts(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
	}
}

type discoverRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func handleDiscover(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req discoverRequest
		if !decode(w, r, &req) {
			return
		}
		found, err := deps.Service.Discover(r.Context(), req.Query, req.Limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"candidates": found})
	}
}

func handleUsage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := deps.Service.Usage(r.Context(), chi.URLParam(r, "provider"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"provider":     u.Provider,
			"used":         u.Used,
			"limit":        u.Limit,
			"remaining":    u.Remaining(),
			"period_start": u.Period.Start,
			"period_end":   u.Period.End,
		})
	}
}

type batchRequest struct {
	TargetIDs      []string `json:"target_ids"`
	IncludePremium bool     `json:"include_premium"`
}

func handleVerifyBatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if !decode(w, r, &req) {
			return
		}
		if len(req.TargetIDs) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "target_ids is required")
			return
		}
		sum, err := deps.Service.VerifyBatch(r.Context(), req.TargetIDs)
		writeBatch(w, sum, err)
	}
}

func handleEnrichBatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if !decode(w, r, &req) {
			return
		}
		if len(req.TargetIDs) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "target_ids is required")
			return
		}
		sum, err := deps.Service.EnrichBatch(r.Context(), req.TargetIDs, req.IncludePremium)
		writeBatch(w, sum, err)
	}
}

// writeBatch reports a canceled batch with its partial summary.
func writeBatch(w http.ResponseWriter, sum batch.Summary, err error) {
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"summary": sum, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close() //nolint:errcheck
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s must be a non-negative integer", name)
		return 0, false
	}
	return n, true
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidTarget), errors.Is(err, service.ErrInvalidInput):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrUnknownProvider):
		httpError(w, http.StatusNotFound, "not_found_error", "%s", err.Error())
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
