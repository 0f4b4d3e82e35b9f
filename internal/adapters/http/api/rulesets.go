package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/racescore/internal/domain/rules"
)

// RuleSetDependencies lists published rule sets.
type RuleSetDependencies interface {
	RuleSets(ctx context.Context) ([]*rules.RuleSet, error)
	RuleSet(ctx context.Context, version int) (*rules.RuleSet, error)
	DefaultRuleSetVersion() int
}

type ruleSetsResponse struct {
	DefaultVersion int           `json:"default_version"`
	RuleSets       []ruleSetView `json:"rule_sets"`
}

// RuleSetHandler handles rule set requests.
type RuleSetHandler struct {
	deps RuleSetDependencies
}

// NewRuleSetHandler creates a new rule set handler.
func NewRuleSetHandler(deps RuleSetDependencies) *RuleSetHandler {
	return &RuleSetHandler{deps: deps}
}

// HandleList handles GET /v1/rulesets.
func (h *RuleSetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sets, err := h.deps.RuleSets(r.Context())
	if err != nil {
		writeServiceError(w, err, "internal error")
		return
	}
	out := ruleSetsResponse{DefaultVersion: h.deps.DefaultRuleSetVersion(), RuleSets: make([]ruleSetView, len(sets))}
	for i, rs := range sets {
		out.RuleSets[i] = rs.Document()
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /v1/rulesets/{version}.
func (h *RuleSetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_ruleset"
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, nil))
		return
	}
	rs, err := h.deps.RuleSet(r.Context(), version)
	if err != nil {
		writeServiceError(w, err, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rs.Document())
}
