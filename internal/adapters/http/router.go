package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
	"github.com/kirillkom/graphrag-dialogue/internal/core/ports"
)

const defaultSessionListLimit = 100

// HealthPinger reports backend liveness for the readiness endpoint.
type HealthPinger func(ctx context.Context) error

// RouterConfig carries the traffic-control knobs. Zero values disable the
// corresponding gate.
type RouterConfig struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

type Router struct {
	conversations ports.ConversationService
	search        ports.SearchService
	flows         ports.FlowAdminService

	metricsHandler    http.Handler
	metricsMiddleware func(http.Handler) http.Handler
	pingers           map[string]HealthPinger

	cfg RouterConfig
}

func NewRouter(
	conversations ports.ConversationService,
	search ports.SearchService,
	flows ports.FlowAdminService,
	cfg RouterConfig,
) *Router {
	return &Router{
		conversations: conversations,
		search:        search,
		flows:         flows,
		cfg:           cfg,
	}
}

// WithMetrics attaches the scrape endpoint and the per-request metrics
// middleware.
func (rt *Router) WithMetrics(handler http.Handler, middleware func(http.Handler) http.Handler) *Router {
	rt.metricsHandler = handler
	rt.metricsMiddleware = middleware
	return rt
}

// WithHealthPinger registers a named backend check for /healthz.
func (rt *Router) WithHealthPinger(name string, pinger HealthPinger) *Router {
	if rt.pingers == nil {
		rt.pingers = make(map[string]HealthPinger)
	}
	rt.pingers[name] = pinger
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metricsHandler != nil {
		mux.Handle("GET /metrics", rt.metricsHandler)
	}

	mux.HandleFunc("POST /v1/conversation/chat", rt.chat)
	mux.HandleFunc("GET /v1/conversation/session/{id}", rt.getSession)
	mux.HandleFunc("POST /v1/conversation/session/{id}/reset", rt.resetSession)
	mux.HandleFunc("DELETE /v1/conversation/session/{id}", rt.deleteSession)
	mux.HandleFunc("GET /v1/conversation/sessions", rt.listSessions)

	mux.HandleFunc("POST /v1/search", rt.runSearch)

	mux.HandleFunc("GET /v1/conversation/flow", rt.getFlowGraph)
	mux.HandleFunc("GET /v1/conversation/flow/intents", rt.listIntents)
	mux.HandleFunc("POST /v1/conversation/flow/intent", rt.upsertIntent)
	mux.HandleFunc("PUT /v1/conversation/flow/intent", rt.upsertIntent)
	mux.HandleFunc("DELETE /v1/conversation/flow/intent/{id}", rt.deleteIntent)
	mux.HandleFunc("POST /v1/conversation/flow/condition", rt.upsertCondition)
	mux.HandleFunc("PUT /v1/conversation/flow/condition", rt.upsertCondition)
	mux.HandleFunc("DELETE /v1/conversation/flow/condition/{id}", rt.deleteCondition)
	mux.HandleFunc("POST /v1/conversation/flow/action", rt.upsertAction)
	mux.HandleFunc("PUT /v1/conversation/flow/action", rt.upsertAction)
	mux.HandleFunc("DELETE /v1/conversation/flow/action/{id}", rt.deleteAction)
	mux.HandleFunc("POST /v1/conversation/flow/response", rt.upsertResponse)
	mux.HandleFunc("PUT /v1/conversation/flow/response", rt.upsertResponse)
	mux.HandleFunc("DELETE /v1/conversation/flow/response/{id}", rt.deleteResponse)
	mux.HandleFunc("POST /v1/conversation/flow/edge", rt.upsertEdge)
	mux.HandleFunc("DELETE /v1/conversation/flow/edge/{id}", rt.deleteEdge)
	mux.HandleFunc("POST /v1/conversation/flow/publish", rt.publishFlow)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	if rt.metricsMiddleware != nil {
		handler = rt.metricsMiddleware(handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(rt.pingers))
	healthy := true
	for name, ping := range rt.pingers {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var req domain.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	result, err := rt.conversations.Advance(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	state, err := rt.conversations.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) resetSession(w http.ResponseWriter, r *http.Request) {
	state, err := rt.conversations.ResetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.conversations.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSessionListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	ids, err := rt.conversations.ListSessions(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids, "count": len(ids)})
}

func (rt *Router) runSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, err := rt.search.Search(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getFlowGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := rt.flows.LoadGraph(r.Context(), r.URL.Query().Get("intent_id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	payload := map[string]any{"graph": graph}
	if snap := rt.flows.CurrentSnapshot(); snap != nil {
		payload["published_version"] = snap.Version()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) listIntents(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	intents, err := rt.flows.ListIntents(r.Context(), activeOnly)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if intents == nil {
		intents = []domain.IntentNode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"intents": intents})
}

func (rt *Router) upsertIntent(w http.ResponseWriter, r *http.Request) {
	var intent domain.IntentNode
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if intent.ID == "" || intent.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id and name are required"})
		return
	}
	if err := rt.flows.UpsertIntent(r.Context(), intent); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (rt *Router) deleteIntent(w http.ResponseWriter, r *http.Request) {
	if err := rt.flows.DeleteIntent(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) upsertCondition(w http.ResponseWriter, r *http.Request) {
	var cond domain.ConditionNode
	if err := json.NewDecoder(r.Body).Decode(&cond); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if cond.ID == "" || cond.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id and name are required"})
		return
	}
	if err := rt.flows.UpsertCondition(r.Context(), cond); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cond)
}

func (rt *Router) deleteCondition(w http.ResponseWriter, r *http.Request) {
	if err := rt.flows.DeleteCondition(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) upsertAction(w http.ResponseWriter, r *http.Request) {
	var action domain.ActionNode
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if action.ID == "" || action.ActionType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id and action_type are required"})
		return
	}
	if err := rt.flows.UpsertAction(r.Context(), action); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (rt *Router) deleteAction(w http.ResponseWriter, r *http.Request) {
	if err := rt.flows.DeleteAction(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) upsertResponse(w http.ResponseWriter, r *http.Request) {
	var resp domain.ResponseNode
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if resp.ID == "" || resp.Template == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id and template are required"})
		return
	}
	if err := rt.flows.UpsertResponse(r.Context(), resp); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) deleteResponse(w http.ResponseWriter, r *http.Request) {
	if err := rt.flows.DeleteResponse(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) upsertEdge(w http.ResponseWriter, r *http.Request) {
	var edge domain.FlowEdge
	if err := json.NewDecoder(r.Body).Decode(&edge); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if edge.SourceID == "" || edge.TargetID == "" || edge.EdgeType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source_id, target_id and edge_type are required"})
		return
	}
	if err := rt.flows.UpsertEdge(r.Context(), edge); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

func (rt *Router) deleteEdge(w http.ResponseWriter, r *http.Request) {
	if err := rt.flows.DeleteEdge(r.Context(), r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) publishFlow(w http.ResponseWriter, r *http.Request) {
	version, err := rt.flows.Publish(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "published", "version": version})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": requestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
