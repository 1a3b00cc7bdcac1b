package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openbk/tariff/internal/domain"
	"github.com/openbk/tariff/internal/feeval"
	"github.com/openbk/tariff/internal/notes"
	"github.com/openbk/tariff/internal/resolver"
)

const asOfLayout = "2006-01-02"

// NoRuleMessage is what NO_RULE_FOUND renders as; never substituted with
// a guess.
const NoRuleMessage = "not available in the schedule"

// Handler holds dependencies for API handlers.
type Handler struct {
	store      domain.RuleStore
	sessions   domain.SessionStore
	bus        domain.EventBus
	resolver   *resolver.Resolver
	registry   *notes.Registry
	sessionTTL time.Duration
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(store domain.RuleStore, sessions domain.SessionStore, bus domain.EventBus, res *resolver.Resolver, registry *notes.Registry, sessionTTL time.Duration, version string) *Handler {
	if sessionTTL <= 0 {
		sessionTTL = domain.DefaultSessionTTL
	}
	return &Handler{
		store:      store,
		sessions:   sessions,
		bus:        bus,
		resolver:   res,
		registry:   registry,
		sessionTTL: sessionTTL,
		version:    version,
	}
}

// ProductDimensions is the dimension block of a resolve request.
type ProductDimensions struct {
	Category      string `json:"category,omitempty"`
	Network       string `json:"network,omitempty"`
	Product       string `json:"product,omitempty"`
	ChargeContext string `json:"charge_context,omitempty"`
}

// ResolveRequest is the request body for the two resolve endpoints.
type ResolveRequest struct {
	AsOfDate            string            `json:"as_of_date,omitempty"`
	ChargeType          string            `json:"charge_type"`
	ProductDimensions   ProductDimensions `json:"product_dimensions"`
	SessionID           string            `json:"session_id,omitempty"`
	ClarificationAnswer string            `json:"clarification_answer,omitempty"`
}

// ResolveResponse is the three-status response envelope.
type ResolveResponse struct {
	Status      domain.ResolutionStatus `json:"status"`
	Rule        *domain.FeeRule         `json:"rule,omitempty"`
	DisplayText string                  `json:"display_text,omitempty"`
	Options     []domain.Option         `json:"options,omitempty"`
	PromptText  string                  `json:"prompt_text,omitempty"`
	SessionID   string                  `json:"session_id,omitempty"`
	Message     string                  `json:"message,omitempty"`
}

// CalculateCardFee handles POST /fees/calculate.
func (h *Handler) CalculateCardFee(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, domain.FamilyCard)
}

// QueryRetailAssetCharge handles POST /retail-asset-charges/query.
func (h *Handler) QueryRetailAssetCharge(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, domain.FamilyRetailAsset)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, family domain.RuleFamily) {
	start := time.Now()
	ctx := r.Context()

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ChargeType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "charge_type is required",
		})
		return
	}

	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	if req.AsOfDate != "" {
		parsed, err := time.Parse(asOfLayout, req.AsOfDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "as_of_date must be formatted as YYYY-MM-DD",
			})
			return
		}
		asOf = parsed
	}

	q := domain.Query{
		Family:        family,
		ChargeType:    req.ChargeType,
		Category:      req.ProductDimensions.Category,
		Network:       req.ProductDimensions.Network,
		Product:       req.ProductDimensions.Product,
		ChargeContext: domain.ChargeContext(req.ProductDimensions.ChargeContext),
		AsOf:          asOf,
	}

	switch q.ChargeContext {
	case "", domain.ContextGeneral, domain.ContextOnLimit, domain.ContextOnEnhancedAmount, domain.ContextOnReducedAmount:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown charge_context",
		})
		return
	}

	sessionID := req.SessionID
	clarified := false

	// A follow-up turn: try to map the clarification answer onto the
	// stored options. Expired sessions fall through as fresh queries.
	if sessionID != "" && req.ClarificationAnswer != "" {
		state, err := h.sessions.Get(ctx, sessionID)
		switch {
		case errors.Is(err, domain.ErrSessionExpired):
			// Disambiguation context is gone; resolve from scratch.
		case err != nil:
			slog.Error("session lookup failed",
				"session_id", sessionID, "trace_id", GetTraceID(ctx), "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "session store unavailable",
			})
			return
		default:
			opt := resolver.MatchOption(state.Options, req.ClarificationAnswer)
			if opt == nil {
				// Unrelated answer: replay the stored prompt verbatim.
				h.publishResolution(ctx, state.Query, domain.StatusNeedsDisambiguation, "", sessionID, start)
				writeJSON(w, http.StatusOK, ResolveResponse{
					Status:     domain.StatusNeedsDisambiguation,
					Options:    state.Options,
					PromptText: state.PromptText,
					SessionID:  sessionID,
				})
				return
			}
			q = resolver.MergeOption(state.Query, *opt)
			clarified = true
		}
	}

	res, err := h.resolver.Resolve(ctx, q)
	if err != nil {
		slog.Error("resolution failed",
			"charge_type", q.ChargeType, "trace_id", GetTraceID(ctx), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "resolution failed",
		})
		return
	}

	switch res.Status {
	case domain.StatusFound:
		if clarified {
			if err := h.sessions.Delete(ctx, sessionID); err != nil {
				slog.Warn("failed to delete resolved session", "session_id", sessionID, "error", err)
			}
		}
		if res.DisplayText == feeval.MissingTextSentinel {
			h.publishMissingText(ctx, res.Rule)
		}
		h.publishResolution(ctx, q, res.Status, res.Rule.ID, sessionID, start)
		writeJSON(w, http.StatusOK, ResolveResponse{
			Status:      res.Status,
			Rule:        res.Rule,
			DisplayText: res.DisplayText,
		})

	case domain.StatusNeedsDisambiguation:
		if sessionID == "" {
			sessionID = uuid.New().String()
		}
		state := &domain.DisambiguationState{
			SessionID:  sessionID,
			Query:      q,
			Options:    res.Options,
			PromptText: res.PromptText,
			CreatedAt:  time.Now().UTC(),
		}
		if err := h.sessions.Put(ctx, state, h.sessionTTL); err != nil {
			slog.Error("failed to store disambiguation session",
				"session_id", sessionID, "trace_id", GetTraceID(ctx), "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "session store unavailable",
			})
			return
		}
		h.publishResolution(ctx, q, res.Status, "", sessionID, start)
		writeJSON(w, http.StatusOK, ResolveResponse{
			Status:     res.Status,
			Options:    res.Options,
			PromptText: res.PromptText,
			SessionID:  sessionID,
		})

	default:
		h.publishResolution(ctx, q, domain.StatusNoRuleFound, "", sessionID, start)
		writeJSON(w, http.StatusOK, ResolveResponse{
			Status:  domain.StatusNoRuleFound,
			Message: NoRuleMessage,
		})
	}
}

// publishResolution emits a ResolutionEvent for the analytics consumers.
// Best effort: a bus failure never fails the resolution.
func (h *Handler) publishResolution(ctx context.Context, q domain.Query, status domain.ResolutionStatus, ruleID, sessionID string, start time.Time) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.ResolutionEvent{
		Query:      q,
		Status:     status,
		RuleID:     ruleID,
		SessionID:  sessionID,
		DurationMs: time.Since(start).Milliseconds(),
	})
	if err != nil {
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicResolution, payload); err != nil {
		slog.Warn("failed to publish resolution event", "error", err)
	}
}

// publishMissingText flags a rule served with the sentinel so data
// curation can follow up.
func (h *Handler) publishMissingText(ctx context.Context, rule *domain.FeeRule) {
	slog.Warn("resolved rule served missing-text sentinel",
		"rule_id", rule.ID,
		"charge_type", rule.ChargeType,
	)
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"rule_id":     rule.ID,
		"charge_type": rule.ChargeType,
		"product":     rule.Product,
	})
	if err != nil {
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicMissingText, payload); err != nil {
		slog.Warn("failed to publish missing-text event", "error", err)
	}
}

// CreateRule handles POST /rules, the importer-facing insert.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.FeeRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	err := h.store.SaveRule(r.Context(), &rule)
	switch {
	case errors.Is(err, domain.ErrRuleOverlap):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case err != nil:
		slog.Error("failed to save rule", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
	default:
		writeJSON(w, http.StatusCreated, rule)
	}
}

// SupersedeRule handles POST /rules/{id}/supersede.
func (h *Handler) SupersedeRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	var replacement domain.FeeRule
	if err := json.NewDecoder(r.Body).Decode(&replacement); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	err := h.store.SupersedeRule(r.Context(), ruleID, &replacement)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
	case errors.Is(err, domain.ErrRuleOverlap):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case err != nil:
		slog.Error("failed to supersede rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to supersede rule",
		})
	default:
		writeJSON(w, http.StatusCreated, replacement)
	}
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	rule, err := h.store.GetRule(r.Context(), ruleID)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// ListRules handles GET /rules?family=CARD|RETAIL_ASSET.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	family := domain.RuleFamily(r.URL.Query().Get("family"))
	switch family {
	case domain.FamilyCard, domain.FamilyRetailAsset:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "family query parameter must be CARD or RETAIL_ASSET",
		})
		return
	}

	rules, err := h.store.ListRules(r.Context(), family)
	if err != nil {
		slog.Error("failed to list rules", "family", family, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetNote handles GET /notes/{number}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "note number must be a positive integer",
		})
		return
	}

	note, err := h.registry.GetNote(r.Context(), number)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "note not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get note", "number", number, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get note",
		})
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// UpsertNote handles PUT /notes/{number}, the importer-facing upsert.
func (h *Handler) UpsertNote(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "note number must be a positive integer",
		})
		return
	}

	var note domain.Note
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	note.Number = number

	err = h.registry.UpsertNote(r.Context(), &note)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case err != nil:
		slog.Error("failed to upsert note", "number", number, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to upsert note",
		})
	default:
		writeJSON(w, http.StatusOK, note)
	}
}

// AuditOverlaps handles GET /integrity/overlaps: the invariant check
// that the set of ACTIVE rules contains zero overlapping pairs.
func (h *Handler) AuditOverlaps(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountOverlaps(r.Context())
	if err != nil {
		slog.Error("overlap audit failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "overlap audit failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"overlapping_pairs": count,
		"ok":                count == 0,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.sessions != nil {
		if err := h.sessions.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
