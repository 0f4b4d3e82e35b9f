package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/racescore/internal/adapters/repository"
	"github.com/okian/racescore/internal/domain/breakdown"
	"github.com/okian/racescore/internal/domain/clock"
	"github.com/okian/racescore/internal/domain/model"
)

// ResultsDependencies reads persisted results.
type ResultsDependencies interface {
	Results(ctx context.Context, gameID model.GameID) ([]repository.ScoredRow, error)
}

// resultView is one athlete row. Placement and times are null for athletes
// without a valid finish.
type resultView struct {
	AthleteID      string              `json:"athlete_id"`
	Position       int                 `json:"position"`
	Placement      *int                `json:"placement"`
	FinishTime     *string             `json:"finish_time"`
	Gap            *string             `json:"gap"`
	GapMs          *int64              `json:"gap_ms"`
	TotalPoints    int                 `json:"total_points"`
	Breakdown      breakdown.Breakdown `json:"breakdown"`
	RuleSetVersion int                 `json:"rule_set_version"`
	RunID          string              `json:"run_id"`
	ScoredAt       time.Time           `json:"scored_at"`
}

type resultsResponse struct {
	GameID  string       `json:"game_id"`
	Results []resultView `json:"results"`
}

func toResultView(row repository.ScoredRow) resultView {
	v := resultView{
		AthleteID:      string(row.AthleteID),
		Position:       row.Position,
		TotalPoints:    row.TotalPoints,
		Breakdown:      row.Breakdown,
		RuleSetVersion: row.RuleSetVersion,
		RunID:          row.RunID,
		ScoredAt:       row.ScoredAt,
	}
	if row.Ranked() {
		placement, gapMs := row.Placement, row.GapMs
		finish := clock.Format(clock.FromMillis(row.FinishMs))
		gap := clock.FormatGap(row.GapMs)
		v.Placement, v.GapMs, v.FinishTime, v.Gap = &placement, &gapMs, &finish, &gap
	}
	return v
}

// ResultsHandler handles results requests.
type ResultsHandler struct {
	deps ResultsDependencies
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps ResultsDependencies) *ResultsHandler {
	return &ResultsHandler{deps: deps}
}

// HandleGetResults handles GET /v1/games/{gameID}/results.
func (h *ResultsHandler) HandleGetResults(w http.ResponseWriter, r *http.Request) {
	gameID := gameParam(r)
	rows, err := h.deps.Results(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, err, "internal error")
		return
	}
	out := resultsResponse{GameID: string(gameID), Results: make([]resultView, len(rows))}
	for i, row := range rows {
		out.Results[i] = toResultView(row)
	}
	writeJSON(w, http.StatusOK, out)
}
