package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/racescore/internal/app"
	"github.com/okian/racescore/internal/domain/model"
)

// ScoreDependencies runs scoring invocations.
type ScoreDependencies interface {
	ScoreNow(ctx context.Context, gameID model.GameID, raceID model.RaceID, ruleSetVersion int) (service.Report, error)
	ScoreAsync(ctx context.Context, gameID model.GameID, raceID model.RaceID, ruleSetVersion int) (string, error)
}

// scoreRequest mirrors the OpenAPI schema for POST /v1/games/{gameID}/score.
type scoreRequest struct {
	RaceID         string `json:"race_id"`
	RuleSetVersion int    `json:"rule_set_version"`
	Async          bool   `json:"async"`
}

func (s scoreRequest) validate() error {
	switch {
	case strings.TrimSpace(s.RaceID) == "":
		return errors.New("missing race_id")
	case s.RuleSetVersion < 0:
		return errors.New("rule_set_version must not be negative")
	}
	return nil
}

type scoreResponse struct {
	RunID          string    `json:"run_id"`
	GameID         string    `json:"game_id"`
	RaceID         string    `json:"race_id"`
	RuleSetVersion int       `json:"rule_set_version"`
	Finishers      int       `json:"finishers"`
	Athletes       int       `json:"athletes"`
	ScoredAt       time.Time `json:"scored_at"`
	DurationMs     int64     `json:"duration_ms"`
}

type acceptedResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// ScoreHandler handles score requests.
type ScoreHandler struct {
	deps ScoreDependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

// HandleScore handles POST /v1/games/{gameID}/score.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score"
	gameID := gameParam(r)
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("missing game id")))
		return
	}

	var req scoreRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	if req.Async {
		id, err := h.deps.ScoreAsync(r.Context(), gameID, model.RaceID(req.RaceID), req.RuleSetVersion)
		if err != nil {
			writeServiceError(w, err, scoringFailed)
			return
		}
		writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", RequestID: id})
		return
	}

	report, err := h.deps.ScoreNow(r.Context(), gameID, model.RaceID(req.RaceID), req.RuleSetVersion)
	if err != nil {
		writeServiceError(w, err, scoringFailed)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{
		RunID:          report.RunID,
		GameID:         string(report.GameID),
		RaceID:         string(report.RaceID),
		RuleSetVersion: report.RuleSetVersion,
		Finishers:      report.Finishers,
		Athletes:       len(report.Rows),
		ScoredAt:       report.ScoredAt,
		DurationMs:     report.Duration.Milliseconds(),
	})
}
