package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pulseboard/internal/alert"
	"pulseboard/internal/bus"
	"pulseboard/internal/metrics"
	"pulseboard/internal/stats"
	"pulseboard/internal/storage"
)

type Handler struct {
	Repo    *storage.Repository
	Blender *stats.Blender
	Bus     *bus.Bus
	Timeout time.Duration
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/statistics/timeseries", h.handleTimeseries)
	r.Route("/api/alerts", func(r chi.Router) {
		r.Post("/", h.handleRuleCreate)
		r.Get("/", h.handleRuleList)
		r.Get("/{id}", h.handleRuleGet)
		r.Put("/{id}", h.handleRuleUpdate)
		r.Delete("/{id}", h.handleRuleDelete)
		r.Post("/{id}/toggle", h.handleRuleToggle)
	})
	r.Get("/api/alerts/history", h.handleHistoryList)
	r.Post("/api/alerts/history/{id}/resolve", h.handleHistoryResolve)
}

func (h *Handler) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	result, err := h.Blender.Blend(ctx, q)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"ok": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type ruleRequest struct {
	Name            string   `json:"name"`
	Application     string   `json:"application"`
	MetricType      string   `json:"metricType"`
	Operator        string   `json:"conditionOperator"`
	Threshold       float64  `json:"thresholdValue"`
	DurationMinutes int      `json:"durationMinutes"`
	Severity        string   `json:"severity"`
	Methods         []string `json:"notificationMethods"`
	Active          *bool    `json:"active"`
}

func (req ruleRequest) toRule() alert.Rule {
	rule := alert.Rule{
		Name:            req.Name,
		Application:     req.Application,
		MetricType:      metrics.MetricType(req.MetricType),
		Operator:        alert.ConditionOperator(req.Operator),
		Threshold:       req.Threshold,
		DurationMinutes: req.DurationMinutes,
		Severity:        alert.Severity(req.Severity),
		Active:          true,
	}
	for _, m := range req.Methods {
		rule.Methods = append(rule.Methods, alert.NotificationMethod(m))
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	return rule
}

func (h *Handler) handleRuleCreate(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	rule := req.toRule()
	if err := alert.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	id, err := h.Repo.CreateRule(ctx, rule)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateName) {
			writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "message": "rule name already exists"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to persist rule"})
		return
	}
	h.publish(bus.SubjectRuleCreated, id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) handleRuleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	var (
		rules []alert.Rule
		err   error
	)
	if app := r.URL.Query().Get("application"); app != "" {
		rules, err = h.Repo.ListRulesByApplication(ctx, app)
	} else {
		rules, err = h.Repo.ListRules(ctx)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list rules"})
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *Handler) handleRuleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rule, err := h.Repo.GetRule(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "rule not found"})
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) handleRuleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	rule := req.toRule()
	rule.ID = id
	if err := alert.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Repo.UpdateRule(ctx, rule); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "rule not found"})
		case errors.Is(err, storage.ErrDuplicateName):
			writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "message": "rule name already exists"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to update rule"})
		}
		return
	}
	h.publish(bus.SubjectRuleUpdated, id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Repo.DeleteRule(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "rule not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to delete rule"})
		return
	}
	h.publish(bus.SubjectRuleDeleted, id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleRuleToggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rule, err := h.Repo.GetRule(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "rule not found"})
		return
	}
	if err := h.Repo.SetRuleActive(ctx, id, !rule.Active); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to toggle rule"})
		return
	}
	h.publish(bus.SubjectRuleToggled, id)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "active": !rule.Active})
}

func (h *Handler) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	var (
		history []alert.History
		err     error
	)
	if r.URL.Query().Get("unresolved") == "true" {
		history, err = h.Repo.ListUnresolvedHistory(ctx)
	} else {
		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
				limit = n
			}
		}
		history, err = h.Repo.ListRecentHistory(ctx, limit)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list history"})
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleHistoryResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Repo.ResolveHistory(ctx, id, req.Message, time.Now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "history record not found or already resolved"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to resolve"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) publish(subject, ruleID string) {
	if h.Bus == nil {
		return
	}
	_ = h.Bus.Publish(subject, ruleID)
}

func parseQuery(r *http.Request) (metrics.MetricQuery, error) {
	params := r.URL.Query()
	start, err := time.Parse(time.RFC3339, params.Get("start"))
	if err != nil {
		return metrics.MetricQuery{}, errors.New("start must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, params.Get("end"))
	if err != nil {
		return metrics.MetricQuery{}, errors.New("end must be RFC3339")
	}
	return metrics.MetricQuery{
		MetricType:  metrics.MetricType(params.Get("metricType")),
		Aggregation: metrics.AggregationType(params.Get("aggregation")),
		Period:      metrics.TimePeriod(params.Get("period")),
		Start:       start,
		End:         end,
		Application: params.Get("application"),
	}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, metrics.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, metrics.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
