package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/racescore/internal/adapters/repository"
	"github.com/okian/racescore/internal/domain/breakdown"
	"github.com/okian/racescore/internal/domain/clock"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/pkg/logger"
)

// DriveConfig configures a load run against a live server.
type DriveConfig struct {
	BaseURL string
	// Rounds is how many score requests each game receives.
	Rounds         int
	Workers        int
	Timeout        time.Duration
	RuleSetVersion int
}

// DriveStats summarizes a load run.
type DriveStats struct {
	Requests  int64
	Scored    int64
	Busy      int64
	Throttled int64
	Failed    int64
	Verified  int
	Duration  time.Duration
}

type scoreBody struct {
	RaceID         string `json:"race_id"`
	RuleSetVersion int    `json:"rule_set_version,omitempty"`
}

type resultsBody struct {
	Results []struct {
		AthleteID      string              `json:"athlete_id"`
		Position       int                 `json:"position"`
		Placement      *int                `json:"placement"`
		FinishTime     *string             `json:"finish_time"`
		GapMs          *int64              `json:"gap_ms"`
		TotalPoints    int                 `json:"total_points"`
		Breakdown      breakdown.Breakdown `json:"breakdown"`
		RuleSetVersion int                 `json:"rule_set_version"`
		RunID          string              `json:"run_id"`
	} `json:"results"`
}

// Drive fires concurrent score requests for games at a running server,
// then reads every game's results back and verifies them. Busy (409) and
// throttled (429) answers are expected under contention and only counted.
func Drive(ctx context.Context, cfg DriveConfig, games []Game) (DriveStats, error) {
	if cfg.Rounds <= 0 || cfg.Workers <= 0 {
		return DriveStats{}, fmt.Errorf("%w: rounds and workers must be positive", ErrInvalidConfig)
	}
	log := logger.Get().Named("drive")
	client := &http.Client{Timeout: cfg.Timeout}
	base := strings.TrimRight(cfg.BaseURL, "/")
	start := time.Now()

	if err := checkHealth(ctx, client, base); err != nil {
		return DriveStats{}, err
	}

	var stats DriveStats
	jobs := make(chan Game, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range jobs {
				status, err := postScore(ctx, client, base, g.Game, cfg.RuleSetVersion)
				atomic.AddInt64(&stats.Requests, 1)
				switch {
				case err != nil:
					atomic.AddInt64(&stats.Failed, 1)
					log.Warn(ctx, "score request failed", logger.String("game_id", string(g.Game.ID)), logger.Error(err))
				case status == http.StatusOK:
					atomic.AddInt64(&stats.Scored, 1)
				case status == http.StatusConflict:
					atomic.AddInt64(&stats.Busy, 1)
				case status == http.StatusTooManyRequests:
					atomic.AddInt64(&stats.Throttled, 1)
				default:
					atomic.AddInt64(&stats.Failed, 1)
					log.Warn(ctx, "unexpected score status", logger.String("game_id", string(g.Game.ID)), logger.Int("status", status))
				}
			}
		}()
	}

feed:
	for r := 0; r < cfg.Rounds; r++ {
		for _, g := range games {
			select {
			case <-ctx.Done():
				break feed
			case jobs <- g:
			}
		}
	}
	close(jobs)
	wg.Wait()

	var errs []error
	for _, g := range games {
		rows, err := getResults(ctx, client, base, g.Game.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(rows) == 0 {
			// never scored: every request for it was busy or throttled
			continue
		}
		if err := Verify(g, rows); err != nil {
			errs = append(errs, fmt.Errorf("game %s: %w", g.Game.ID, err))
			continue
		}
		stats.Verified++
	}
	stats.Duration = time.Since(start)

	log.Info(ctx, "drive finished",
		logger.Int64("requests", stats.Requests),
		logger.Int64("scored", stats.Scored),
		logger.Int64("busy", stats.Busy),
		logger.Int64("throttled", stats.Throttled),
		logger.Int64("failed", stats.Failed),
		logger.Int("verified", stats.Verified),
		logger.Duration("duration", stats.Duration),
	)
	return stats, errors.Join(errs...)
}

func checkHealth(ctx context.Context, client *http.Client, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("seed.Drive: health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("seed.Drive: health check: status %d", resp.StatusCode)
	}
	return nil
}

func postScore(ctx context.Context, client *http.Client, base string, g model.Game, version int) (int, error) {
	payload, err := json.Marshal(scoreBody{RaceID: string(g.RaceID), RuleSetVersion: version})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/games/"+string(g.ID)+"/score", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func getResults(ctx context.Context, client *http.Client, base string, id model.GameID) ([]repository.ScoredRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/games/"+string(id)+"/results", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("seed.Drive: results %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seed.Drive: results %s: status %d", id, resp.StatusCode)
	}

	var body resultsBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("seed.Drive: results %s: %w", id, err)
	}

	rows := make([]repository.ScoredRow, 0, len(body.Results))
	for _, r := range body.Results {
		row := repository.ScoredRow{
			GameID:         id,
			AthleteID:      model.AthleteID(r.AthleteID),
			Position:       r.Position,
			TotalPoints:    r.TotalPoints,
			Breakdown:      r.Breakdown,
			RuleSetVersion: r.RuleSetVersion,
			RunID:          r.RunID,
		}
		if r.Placement != nil {
			row.Placement = *r.Placement
		}
		if r.FinishTime != nil {
			row.FinishMs, _ = clock.Parse(*r.FinishTime).Millis()
		}
		if r.GapMs != nil {
			row.GapMs = *r.GapMs
		}
		rows = append(rows, row)
	}
	return rows, nil
}
