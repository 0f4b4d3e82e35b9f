package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/racescore/internal/adapters/http/api"
	"github.com/okian/racescore/internal/adapters/repository"
	service "github.com/okian/racescore/internal/app"
	"github.com/okian/racescore/internal/domain/bonus"
	"github.com/okian/racescore/internal/domain/breakdown"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/rules"
)

var scoredAt = time.Date(2026, 9, 27, 12, 0, 0, 0, time.UTC)

// mockDependencies implements api.Dependencies.
type mockDependencies struct {
	scoreErr   error
	asyncErr   error
	resultsErr error
	rows       []repository.ScoredRow

	lastGame    model.GameID
	lastRace    model.RaceID
	lastVersion int
}

func (m *mockDependencies) ScoreNow(_ context.Context, g model.GameID, r model.RaceID, v int) (service.Report, error) {
	m.lastGame, m.lastRace, m.lastVersion = g, r, v
	if m.scoreErr != nil {
		return service.Report{}, m.scoreErr
	}
	return service.Report{
		RunID:          "run-1",
		GameID:         g,
		RaceID:         r,
		RuleSetVersion: 1,
		Finishers:      1,
		Rows:           m.rows,
		ScoredAt:       scoredAt,
		Duration:       3 * time.Millisecond,
	}, nil
}

func (m *mockDependencies) ScoreAsync(_ context.Context, g model.GameID, r model.RaceID, v int) (string, error) {
	m.lastGame, m.lastRace, m.lastVersion = g, r, v
	if m.asyncErr != nil {
		return "", m.asyncErr
	}
	return "req-1", nil
}

func (m *mockDependencies) Results(_ context.Context, g model.GameID) ([]repository.ScoredRow, error) {
	if m.resultsErr != nil {
		return nil, m.resultsErr
	}
	if g != "g1" {
		return nil, fmt.Errorf("%w: %w", service.ErrConfiguration, repository.ErrGameNotFound)
	}
	return m.rows, nil
}

func (m *mockDependencies) RuleSets(context.Context) ([]*rules.RuleSet, error) {
	return rules.Builtin(), nil
}

func (m *mockDependencies) RuleSet(_ context.Context, v int) (*rules.RuleSet, error) {
	for _, rs := range rules.Builtin() {
		if rs.Version() == v {
			return rs, nil
		}
	}
	return nil, fmt.Errorf("%w: %w", service.ErrConfiguration, repository.ErrRuleSetNotFound)
}

func (m *mockDependencies) DefaultRuleSetVersion() int { return 1 }

func (m *mockDependencies) GetStats() map[string]any {
	return map[string]any{"started": true}
}

func sampleRows() []repository.ScoredRow {
	b, err := breakdown.Merge(
		breakdown.Placement(80),
		breakdown.Gap(15),
		breakdown.Bonuses(bonus.Award{Type: bonus.FastFinishKick, Points: 6}),
	)
	So(err, ShouldBeNil)
	return []repository.ScoredRow{
		{GameID: "g1", AthleteID: "a", Position: 1, Placement: 2, FinishMs: 7_689_030, GapMs: 30, TotalPoints: b.Total(), Breakdown: b, RuleSetVersion: 1, RunID: "run-1", ScoredAt: scoredAt},
		{GameID: "g1", AthleteID: "z", Position: 2, Breakdown: breakdown.Zero, RuleSetVersion: 1, RunID: "run-1", ScoredAt: scoredAt},
	}
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Routes(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{rows: sampleRows()}
		h := api.NewServer(deps).Handler(context.Background())

		Convey("Then health endpoint should be accessible", func() {
			w := serve(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then stats endpoint should be accessible", func() {
			w := serve(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then metrics are exposed", func() {
			serve(h, http.MethodGet, "/healthz", "")
			w := serve(h, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "racescore_engine_http_requests_total")
		})

		Convey("Then unknown routes are 404", func() {
			w := serve(h, http.MethodGet, "/v1/nothing", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestScoreHandler(t *testing.T) {
	Convey("Given a score endpoint", t, func() {
		deps := &mockDependencies{rows: sampleRows()}
		h := api.NewServer(deps).Handler(context.Background())

		Convey("When scoring synchronously", func() {
			w := serve(h, http.MethodPost, "/v1/games/g1/score", `{"race_id":"berlin-2026","rule_set_version":1}`)

			Convey("Then it returns the run report", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp["run_id"], ShouldEqual, "run-1")
				So(resp["athletes"], ShouldEqual, 2.0)
				So(deps.lastGame, ShouldEqual, model.GameID("g1"))
				So(deps.lastRace, ShouldEqual, model.RaceID("berlin-2026"))
				So(deps.lastVersion, ShouldEqual, 1)
			})
		})

		Convey("When scoring asynchronously", func() {
			w := serve(h, http.MethodPost, "/v1/games/g1/score", `{"race_id":"berlin-2026","async":true}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(w.Body.String(), ShouldContainSubstring, `"request_id":"req-1"`)
			So(deps.lastVersion, ShouldEqual, 0)
		})

		Convey("When the body is invalid", func() {
			for _, body := range []string{``, `{}`, `{"race_id":" "}`, `{"race_id":"r","rule_set_version":-1}`, `{"race_id":"r","extra":1}`} {
				w := serve(h, http.MethodPost, "/v1/games/g1/score", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When the service fails", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{fmt.Errorf("%w: %w", service.ErrConfiguration, repository.ErrGameNotFound), http.StatusNotFound, "not_found"},
				{fmt.Errorf("%w: %w", service.ErrConfiguration, repository.ErrRuleSetNotFound), http.StatusNotFound, "not_found"},
				{fmt.Errorf("%w: %w", service.ErrConfiguration, service.ErrRaceMismatch), http.StatusUnprocessableEntity, "configuration_error"},
				{fmt.Errorf("%w: g1", service.ErrBusy), http.StatusConflict, "busy"},
				{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
				{errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
			}
			for _, tc := range cases {
				deps.scoreErr = tc.err
				w := serve(h, http.MethodPost, "/v1/games/g1/score", `{"race_id":"r"}`)
				So(w.Code, ShouldEqual, tc.status)
				So(w.Body.String(), ShouldContainSubstring, `"code":"`+tc.code+`"`)
			}
		})

		Convey("When the run is busy", func() {
			deps.scoreErr = service.ErrBusy
			w := serve(h, http.MethodPost, "/v1/games/g1/score", `{"race_id":"r"}`)
			So(w.Header().Get("Retry-After"), ShouldEqual, "1")
		})

		Convey("When an unexpected failure occurs", func() {
			deps.scoreErr = errors.New("pq: connection refused")
			w := serve(h, http.MethodPost, "/v1/games/g1/score", `{"race_id":"r"}`)

			Convey("Then internals are not leaked", func() {
				So(w.Body.String(), ShouldContainSubstring, "scoring failed, previous results retained")
				So(w.Body.String(), ShouldNotContainSubstring, "pq:")
			})
		})

		Convey("When the async queue is full", func() {
			deps.asyncErr = service.ErrQueueFull
			w := serve(h, http.MethodPost, "/v1/games/g1/score", `{"race_id":"r","async":true}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(w.Header().Get("Retry-After"), ShouldEqual, "1")
		})
	})

	Convey("Given a rate limited score endpoint", t, func() {
		deps := &mockDependencies{}
		h := api.NewServer(deps, api.WithScoreRateLimit(0.001, 1)).Handler(context.Background())

		first := serve(h, http.MethodPost, "/v1/games/g1/score", `{"race_id":"r"}`)
		second := serve(h, http.MethodPost, "/v1/games/g1/score", `{"race_id":"r"}`)

		Convey("Then requests over the burst are refused", func() {
			So(first.Code, ShouldEqual, http.StatusOK)
			So(second.Code, ShouldEqual, http.StatusTooManyRequests)
			So(second.Body.String(), ShouldContainSubstring, "rate_limited")
		})

		Convey("Then reads are not limited", func() {
			w := serve(h, http.MethodGet, "/v1/rulesets", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestResultsHandler(t *testing.T) {
	Convey("Given persisted results", t, func() {
		deps := &mockDependencies{rows: sampleRows()}
		h := api.NewServer(deps).Handler(context.Background())

		Convey("When reading them", func() {
			w := serve(h, http.MethodGet, "/v1/games/g1/results", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				GameID  string           `json:"game_id"`
				Results []map[string]any `json:"results"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)

			Convey("Then ranked rows carry display times and the breakdown", func() {
				So(resp.GameID, ShouldEqual, "g1")
				So(resp.Results, ShouldHaveLength, 2)
				first := resp.Results[0]
				So(first["placement"], ShouldEqual, 2.0)
				So(first["finish_time"], ShouldEqual, "2:08:09.03")
				So(first["gap"], ShouldEqual, "+0:00.03")
				So(first["total_points"], ShouldEqual, 101.0)
				So(w.Body.String(), ShouldContainSubstring,
					`"breakdown":{"placement_points":80,"gap_bonus":15,"performance_bonuses":[{"type":"FAST_FINISH_KICK","points":6}],"total":101}`)
			})

			Convey("Then unranked rows have null placement and times", func() {
				second := resp.Results[1]
				So(second["placement"], ShouldBeNil)
				So(second["finish_time"], ShouldBeNil)
				So(second["total_points"], ShouldEqual, 0.0)
			})
		})

		Convey("When the game is unknown", func() {
			w := serve(h, http.MethodGet, "/v1/games/nope/results", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the store fails", func() {
			deps.resultsErr = errors.New("timeout")
			w := serve(h, http.MethodGet, "/v1/games/g1/results", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestRuleSetHandler(t *testing.T) {
	Convey("Given the builtin rule sets", t, func() {
		h := api.NewServer(&mockDependencies{}).Handler(context.Background())

		Convey("When listing them", func() {
			w := serve(h, http.MethodGet, "/v1/rulesets", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var resp struct {
				DefaultVersion int              `json:"default_version"`
				RuleSets       []rules.Document `json:"rule_sets"`
			}
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.DefaultVersion, ShouldEqual, 1)
			So(resp.RuleSets, ShouldHaveLength, 2)
			So(resp.RuleSets[1].Convention, ShouldEqual, "dense")
		})

		Convey("When fetching one version", func() {
			w := serve(h, http.MethodGet, "/v1/rulesets/1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var doc rules.Document
			So(json.Unmarshal(w.Body.Bytes(), &doc), ShouldBeNil)
			So(doc.Name, ShouldEqual, "classic")
			So(doc.PlacementPoints[0], ShouldEqual, 100)
		})

		Convey("When the version is unknown or invalid", func() {
			So(serve(h, http.MethodGet, "/v1/rulesets/9", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(h, http.MethodGet, "/v1/rulesets/abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodGet, "/v1/rulesets/0", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
