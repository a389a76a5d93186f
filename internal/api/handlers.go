// Package api exposes the attribution engine over HTTP. Handlers are thin:
// they decode requests, call into the core packages, and translate errors.
// Validation failures come back as 400s with field-level detail; unknown
// model IDs fall back to the default model rather than dropping the
// request.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/attribution-engine/internal/analytics"
	"github.com/ignite/attribution-engine/internal/attribution"
	"github.com/ignite/attribution-engine/internal/cache"
	"github.com/ignite/attribution-engine/internal/domain"
	"github.com/ignite/attribution-engine/internal/intelligence"
	"github.com/ignite/attribution-engine/internal/journey"
	"github.com/ignite/attribution-engine/internal/registry"
	"github.com/ignite/attribution-engine/internal/worker"
)

// Handlers holds the dependencies for all HTTP endpoints.
type Handlers struct {
	registry    *registry.Registry
	builder     *journey.Builder
	recommender *intelligence.Recommender
	recomputer  *worker.Recomputer
	snapshots   *cache.SnapshotStore // optional
	startedAt   time.Time
}

// NewHandlers creates the handler set. snapshots may be nil when Redis is
// not configured.
func NewHandlers(reg *registry.Registry, builder *journey.Builder, rec *intelligence.Recommender, recomputer *worker.Recomputer, snapshots *cache.SnapshotStore) *Handlers {
	return &Handlers{
		registry:    reg,
		builder:     builder,
		recommender: rec,
		recomputer:  recomputer,
		snapshots:   snapshots,
		startedAt:   time.Now(),
	}
}

// HealthCheck reports liveness.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// ========== Models ==========

// RegisterModel validates and stores a new attribution model.
// POST /api/models
func (h *Handlers) RegisterModel(w http.ResponseWriter, r *http.Request) {
	var m domain.AttributionModel
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.registry.Register(r.Context(), m)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":    "invalid model config",
				"problems": verr.Problems,
			})
			return
		}
		if errors.Is(err, registry.ErrDuplicateName) {
			respondError(w, http.StatusConflict, "model name already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"model_id": id})
}

// ListModels returns every registered model.
// GET /api/models
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"models": h.registry.List(),
	})
}

// GetModel returns one model by ID.
// GET /api/models/{modelID}
func (h *Handlers) GetModel(w http.ResponseWriter, r *http.Request) {
	m, err := h.registry.Get(urlParam(r, "modelID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "model not found")
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// SetDefaultModel flips the default flag to the given model.
// PUT /api/models/{modelID}/default
func (h *Handlers) SetDefaultModel(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "modelID")
	if err := h.registry.SetDefault(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			respondError(w, http.StatusNotFound, "model not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"default_model_id": id})
}

// ========== Journeys ==========

// BuildJourneysRequest carries raw touchpoints plus external conversion
// signals.
type BuildJourneysRequest struct {
	Touchpoints []domain.Touchpoint        `json:"touchpoints"`
	Conversions []journey.ConversionSignal `json:"conversions"`
}

// BuildJourneys groups raw touchpoints into journeys.
// POST /api/journeys/build
func (h *Handlers) BuildJourneys(w http.ResponseWriter, r *http.Request) {
	var req BuildJourneysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	journeys, err := h.builder.Build(req.Touchpoints, req.Conversions)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"journeys": journeys,
		"count":    len(journeys),
	})
}

// ========== Attribution ==========

// ComputeAttributionRequest carries one journey and an optional model ID.
type ComputeAttributionRequest struct {
	Journey domain.Journey `json:"journey"`
	ModelID string         `json:"model_id,omitempty"`
}

// ComputeAttribution runs one journey through the calculator. An empty or
// unknown model ID resolves to the current default.
// POST /api/attribution/compute
func (h *Handlers) ComputeAttribution(w http.ResponseWriter, r *http.Request) {
	var req ComputeAttributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	model, err := h.registry.Resolve(req.ModelID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	attributed, err := attribution.Compute(req.Journey, model)
	if err != nil {
		if errors.Is(err, attribution.ErrEmptyJourney) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, attributed)
}

// ========== Analytics ==========

// ChannelPerformanceRequest carries attributed journeys plus optional
// externally-tracked spend per channel.
type ChannelPerformanceRequest struct {
	Journeys       []domain.Journey           `json:"journeys"`
	SpendByChannel map[domain.Channel]float64 `json:"spend_by_channel,omitempty"`
	From           *time.Time                 `json:"from,omitempty"`
	To             *time.Time                 `json:"to,omitempty"`
}

// AggregateChannelPerformance reduces attributed journeys into per-channel
// metrics. ROI is reported as null for channels without spend data.
// POST /api/analytics/channels
func (h *Handlers) AggregateChannelPerformance(w http.ResponseWriter, r *http.Request) {
	var req ChannelPerformanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	journeys := req.Journeys
	if req.From != nil || req.To != nil {
		var from, to time.Time
		if req.From != nil {
			from = *req.From
		}
		if req.To != nil {
			to = *req.To
		}
		journeys = analytics.TimeRange(journeys, from, to)
	}

	metrics := analytics.AggregateJourneys(journeys, req.SpendByChannel)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"channels":      metrics,
		"journey_count": len(journeys),
	})
}

// PatternsRequest carries the journey set to analyze.
type PatternsRequest struct {
	Journeys []domain.Journey `json:"journeys"`
}

// AnalyzeJourneyPatterns buckets journeys by complexity and returns the top
// channel sequences by conversion count.
// POST /api/analytics/patterns?top=N
func (h *Handlers) AnalyzeJourneyPatterns(w http.ResponseWriter, r *http.Request) {
	var req PatternsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	topN := 10
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topN = n
		}
	}

	respondJSON(w, http.StatusOK, analytics.AnalyzePatterns(req.Journeys, topN))
}

// GetChannelReportSnapshot serves the latest cached channel report for a
// segment, written by the recompute worker.
// GET /api/analytics/channels/snapshot?segment=all
func (h *Handlers) GetChannelReportSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot cache not configured")
		return
	}
	segment := r.URL.Query().Get("segment")
	if segment == "" {
		segment = "all"
	}
	snap, err := h.snapshots.Get(r.Context(), segment)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no snapshot for segment")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// ========== Recommendation ==========

// RecommendRequest carries the journey set to score models against.
type RecommendRequest struct {
	Journeys []domain.Journey `json:"journeys"`
}

// RecommendModel scores every active model against the journey set.
// POST /api/models/recommend
func (h *Handlers) RecommendModel(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.recommender.Recommend(req.Journeys)
	if err != nil {
		if errors.Is(err, intelligence.ErrNoModels) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// ========== Recompute ==========

// RecomputeRequest carries a journey set (or asks for the stored backlog)
// and an optional model override.
type RecomputeRequest struct {
	Journeys   []domain.Journey `json:"journeys,omitempty"`
	ModelID    string           `json:"model_id,omitempty"`
	UseBacklog bool             `json:"use_backlog,omitempty"`
}

// TriggerRecompute runs a bulk re-attribution synchronously and returns the
// run summary. Honors the worker's configured deadline.
// POST /api/attribution/recompute
func (h *Handlers) TriggerRecompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var result *worker.RunResult
	var err error
	if req.UseBacklog {
		result, err = h.recomputer.RunBacklog(r.Context(), req.ModelID)
	} else {
		result, err = h.recomputer.Run(r.Context(), req.Journeys, req.ModelID)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
