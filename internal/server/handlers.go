package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kagami-ai/kagami/internal/auth"
	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/service/twin"
	"github.com/kagami-ai/kagami/internal/store"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	svc        *twin.Service
	jwtMgr     *auth.JWTManager
	apiKeyHash string
	logger     *slog.Logger
	version    string
	maxBody    int64
}

// HandlersDeps bundles the dependencies for NewHandlers.
type HandlersDeps struct {
	Service             *twin.Service
	JWTMgr              *auth.JWTManager
	APIKeyHash          string // Argon2id hash of the configured API key.
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		svc:        deps.Service,
		jwtMgr:     deps.JWTMgr,
		apiKeyHash: deps.APIKeyHash,
		logger:     deps.Logger,
		version:    deps.Version,
		maxBody:    deps.MaxRequestBodyBytes,
	}
}

// limitBody caps the request body size before decoding.
func (h *Handlers) limitBody(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
}

// authTokenRequest is the body of POST /auth/token.
type authTokenRequest struct {
	APIKey string `json:"api_key"`
}

// authTokenResponse is the body of a successful token issuance.
type authTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleAuthToken exchanges the configured API key for a JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)

	if h.jwtMgr == nil || h.apiKeyHash == "" {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "auth is not configured")
		return
	}

	var req authTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.APIKey == "" {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid api key")
		return
	}

	ok, err := auth.VerifyAPIKey(req.APIKey, h.apiKeyHash)
	if err != nil || !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid api key")
		return
	}

	token, exp, err := h.jwtMgr.IssueToken()
	if err != nil {
		h.logger.Error("auth token issuance failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to issue token")
		return
	}
	writeJSON(w, r, http.StatusOK, authTokenResponse{Token: token, ExpiresAt: exp})
}

// logDecisionRequest is the body of POST /v1/decisions.
type logDecisionRequest struct {
	model.DecisionInput
	Context model.CheckContext `json:"context"`
}

// HandleLogDecision stores a decision, returning the record plus any
// intervention warnings raised on the way in.
func (h *Handlers) HandleLogDecision(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)

	var req logDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	res, err := h.svc.Log(r.Context(), req.DecisionInput, req.Context)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

// outcomeRequest is the body of PATCH /v1/decisions/{id}/outcome.
type outcomeRequest struct {
	Outcome string `json:"outcome"`
}

// HandleUpdateOutcome records how a past decision turned out.
func (h *Handlers) HandleUpdateOutcome(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)

	id := r.PathValue("id")
	var req outcomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Outcome == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "outcome is required")
		return
	}

	rec, err := h.svc.UpdateOutcome(r.Context(), id, req.Outcome)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "decision not found: "+id)
			return
		}
		h.logger.Error("update outcome failed", "id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to update outcome")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleRecentDecisions returns the n most recent decisions (default 10).
func (h *Handlers) HandleRecentDecisions(w http.ResponseWriter, r *http.Request) {
	n := 10
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "n must be a non-negative integer")
			return
		}
		n = parsed
	}

	records, err := h.svc.Recent(r.Context(), n)
	if err != nil {
		h.logger.Error("recent decisions failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load decisions")
		return
	}
	writeJSON(w, r, http.StatusOK, records)
}

// HandleDecisionsByTag returns decisions carrying the given tag.
func (h *Handlers) HandleDecisionsByTag(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "tag is required")
		return
	}

	records, err := h.svc.ByTag(r.Context(), tag)
	if err != nil {
		h.logger.Error("decisions by tag failed", "tag", tag, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load decisions")
		return
	}
	writeJSON(w, r, http.StatusOK, records)
}

// HandleTimeline returns the full decision history, oldest first.
func (h *Handlers) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.Timeline(r.Context())
	if err != nil {
		h.logger.Error("timeline failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load timeline")
		return
	}
	writeJSON(w, r, http.StatusOK, records)
}

// HandleSimilarDecisions returns past decisions lexically similar to the
// query text.
func (h *Handlers) HandleSimilarDecisions(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("q")
	if text == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "q is required")
		return
	}

	matches, err := h.svc.FindSimilar(r.Context(), text)
	if err != nil {
		h.logger.Error("similar decisions failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to search decisions")
		return
	}
	writeJSON(w, r, http.StatusOK, matches)
}

// checkRequest is the body of POST /v1/decisions/check and POST /v1/regret.
type checkRequest struct {
	Decision string             `json:"decision"`
	Context  model.CheckContext `json:"context"`
}

// HandleCheckDecision runs the intervention rules without storing anything.
func (h *Handlers) HandleCheckDecision(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)

	var req checkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Decision == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "decision is required")
		return
	}

	res, err := h.svc.CheckDecision(r.Context(), req.Decision, req.Context)
	if err != nil {
		h.logger.Error("decision check failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to check decision")
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandlePredictRegret scores the regret risk of a candidate decision.
func (h *Handlers) HandlePredictRegret(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)

	var req checkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Decision == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "decision is required")
		return
	}

	p, err := h.svc.PredictRegret(r.Context(), req.Decision, req.Context)
	if err != nil {
		h.logger.Error("regret prediction failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to predict regret")
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// HandlePatterns returns the pattern summary over the full log.
func (h *Handlers) HandlePatterns(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Patterns(r.Context())
	if err != nil {
		h.logger.Error("pattern analysis failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to analyze patterns")
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

// HandleBiases returns detected cognitive biases.
func (h *Handlers) HandleBiases(w http.ResponseWriter, r *http.Request) {
	findings, err := h.svc.Biases(r.Context())
	if err != nil {
		h.logger.Error("bias detection failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to detect biases")
		return
	}
	writeJSON(w, r, http.StatusOK, findings)
}

// HandleState returns the live cognitive state snapshot.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.State()
	if err != nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "state monitor not configured")
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// activityRequest is the body of POST /v1/activity.
type activityRequest struct {
	Type     string `json:"type"`
	Duration int    `json:"duration"`
}

// HandleLogActivity feeds one activity event into the state monitor.
func (h *Handlers) HandleLogActivity(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)

	var req activityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Type == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "type is required")
		return
	}
	if req.Duration <= 0 {
		req.Duration = 1
	}

	if err := h.svc.LogActivity(req.Type, req.Duration); err != nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "state monitor not configured")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTakeBreak records a break in the state monitor.
func (h *Handlers) HandleTakeBreak(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.TakeBreak(); err != nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "state monitor not configured")
		return
	}
	snap, err := h.svc.State()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to read state")
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleDailyStats returns today's focus statistics.
func (h *Handlers) HandleDailyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.DailyStats()
	if err != nil {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "state monitor not configured")
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok", Version: h.version})
}
