package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/racescore/internal/adapters/notify"
	"github.com/okian/racescore/internal/adapters/repository"
	"github.com/okian/racescore/internal/domain/breakdown"
	"github.com/okian/racescore/internal/domain/clock"
	"github.com/okian/racescore/internal/domain/keylock"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/internal/domain/ranking"
	"github.com/okian/racescore/internal/domain/rules"
	"github.com/okian/racescore/internal/domain/scoring"
	"github.com/okian/racescore/pkg/logger"
	"github.com/okian/racescore/pkg/metrics"
)

const tracerName = "github.com/okian/racescore/internal/app"

// Stage names one step of a scoring run.
type Stage string

// Stages in execution order. Acquire precedes the pipeline proper.
const (
	StageAcquire   Stage = "acquire"
	StageLoad      Stage = "load"
	StageNormalize Stage = "normalize"
	StageRank      Stage = "rank"
	StageScore     Stage = "score"
	StageBonus     Stage = "bonus"
	StageAssemble  Stage = "assemble"
	StagePersist   Stage = "persist"
)

// LockMode decides what a run does when its game is already being scored.
type LockMode int

const (
	// LockWait queues behind the running invocation.
	LockWait LockMode = iota
	// LockReject fails fast with ErrBusy.
	LockReject
)

// ParseLockMode maps "wait" / "reject" to a LockMode.
func ParseLockMode(s string) (LockMode, bool) {
	switch s {
	case "", "wait":
		return LockWait, true
	case "reject":
		return LockReject, true
	default:
		return LockWait, false
	}
}

// RuleSetLookup resolves a published rule set by version.
type RuleSetLookup interface {
	RuleSet(ctx context.Context, version int) (*rules.RuleSet, error)
}

// Report describes a persisted run.
type Report struct {
	RunID          string
	GameID         model.GameID
	RaceID         model.RaceID
	RuleSetVersion int
	Finishers      int
	Rows           []repository.ScoredRow
	ScoredAt       time.Time
	Duration       time.Duration
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLockMode selects wait or reject on a concurrent run for the same game.
func WithLockMode(mode LockMode) OrchestratorOption {
	return func(o *Orchestrator) { o.lockMode = mode }
}

// WithLocker replaces the per-game locker.
func WithLocker(l keylock.Locker) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.locks = l
		}
	}
}

// WithNotifier sets the downstream notifier.
func WithNotifier(n notify.Notifier) OrchestratorOption {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithClock overrides the time source for scored_at.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(next func() string) OrchestratorOption {
	return func(o *Orchestrator) {
		if next != nil {
			o.newRunID = next
		}
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(l logger.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator runs the scoring pipeline for one game at a time per game.
// It is the only component that writes results.
type Orchestrator struct {
	source   repository.ResultSource
	ruleSets RuleSetLookup
	sink     repository.ResultSink
	locks    keylock.Locker
	notifier notify.Notifier
	lockMode LockMode
	now      func() time.Time
	newRunID func() string
	tracer   trace.Tracer
	logger   logger.Logger
}

// NewOrchestrator wires the pipeline to its collaborators.
func NewOrchestrator(source repository.ResultSource, ruleSets RuleSetLookup, sink repository.ResultSink, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		source:   source,
		ruleSets: ruleSets,
		sink:     sink,
		locks:    keylock.New(),
		notifier: notify.Nop{},
		lockMode: LockWait,
		now:      time.Now,
		newRunID: uuid.NewString,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.Get().Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ScoreRace scores every result row of the game under the given rule set
// and replaces its previous results. On error nothing was written.
func (o *Orchestrator) ScoreRace(ctx context.Context, gameID model.GameID, raceID model.RaceID, ruleSetVersion int) error {
	_, err := o.Run(ctx, gameID, raceID, ruleSetVersion)
	return err
}

// run is the state carried between stages. Each stage reads what earlier
// stages produced and adds its own output.
type run struct {
	id       string
	gameID   model.GameID
	raceID   model.RaceID
	version  int
	game     model.Game
	ruleSet  *rules.RuleSet
	calc     *scoring.Calculator
	inputs   []model.RaceResultInput
	times    []normalized
	placed   []ranking.Placed
	base     map[model.AthleteID][2]breakdown.Fragment
	bonuses  map[model.AthleteID]breakdown.Fragment
	rows     []repository.ScoredRow
	scoredAt time.Time
}

type normalized struct {
	athlete  model.AthleteID
	finish   clock.Time
	splits   map[model.Checkpoint]clock.Time
	tieBreak int
}

type stageFunc func(ctx context.Context, r *run) error

// Run executes the pipeline and returns a report of the persisted rows.
func (o *Orchestrator) Run(ctx context.Context, gameID model.GameID, raceID model.RaceID, ruleSetVersion int) (Report, error) {
	start := time.Now()
	r := &run{id: o.newRunID(), gameID: gameID, raceID: raceID, version: ruleSetVersion}

	ctx, span := o.tracer.Start(ctx, "scoring.run", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.String("game.id", string(gameID)),
		attribute.String("race.id", string(raceID)),
		attribute.Int("rule_set.version", ruleSetVersion),
	))
	defer span.End()

	log := o.logger.With(
		logger.String("run_id", r.id),
		logger.String("game_id", string(gameID)),
		logger.String("race_id", string(raceID)),
		logger.Int("rule_set_version", ruleSetVersion),
	)

	unlock, err := o.acquire(ctx, gameID)
	if err != nil {
		return Report{}, o.abort(ctx, span, log, r, StageAcquire, err, start)
	}
	defer unlock()

	// The caller may give up while waiting for the lock, not once the run holds it.
	ctx = context.WithoutCancel(ctx)

	stages := []struct {
		stage Stage
		fn    stageFunc
	}{
		{StageLoad, o.load},
		{StageNormalize, o.normalize},
		{StageRank, o.rank},
		{StageScore, o.score},
		{StageBonus, o.bonus},
		{StageAssemble, o.assemble},
		{StagePersist, o.persist},
	}
	for _, s := range stages {
		sctx, sspan := o.tracer.Start(ctx, "scoring."+string(s.stage))
		t0 := time.Now()
		err := s.fn(sctx, r)
		metrics.RecordStage(string(s.stage), float64(time.Since(t0).Microseconds())/1000)
		if err != nil {
			sspan.RecordError(err)
			sspan.SetStatus(codes.Error, err.Error())
			sspan.End()
			return Report{}, o.abort(ctx, span, log, r, s.stage, err, start)
		}
		sspan.End()
		log.Debug(ctx, "stage complete", logger.String("stage", string(s.stage)))
	}

	elapsed := time.Since(start)
	metrics.RecordRun(metrics.OutcomePersisted, float64(elapsed.Milliseconds()))
	metrics.RecordScoredRows(len(r.rows), len(r.placed))
	span.SetAttributes(attribute.Int("athletes", len(r.rows)), attribute.Int("finishers", len(r.placed)))
	log.Info(ctx, "scoring run persisted",
		logger.Int("athletes", len(r.rows)),
		logger.Int("finishers", len(r.placed)),
		logger.Duration("duration", elapsed),
	)

	o.notify(ctx, log, r)

	return Report{
		RunID:          r.id,
		GameID:         gameID,
		RaceID:         raceID,
		RuleSetVersion: ruleSetVersion,
		Finishers:      len(r.placed),
		Rows:           r.rows,
		ScoredAt:       r.scoredAt,
		Duration:       elapsed,
	}, nil
}

func (o *Orchestrator) abort(ctx context.Context, span trace.Span, log logger.Logger, r *run, stage Stage, err error, start time.Time) error {
	outcome := metrics.OutcomeAborted
	if errors.Is(err, ErrBusy) {
		outcome = metrics.OutcomeBusy
	}
	metrics.RecordRun(outcome, float64(time.Since(start).Milliseconds()))
	metrics.RecordErrorByComponent("orchestrator", string(stage))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if outcome == metrics.OutcomeBusy {
		log.Warn(ctx, "scoring run rejected", logger.String("stage", string(stage)), logger.Error(err))
	} else {
		log.Error(ctx, "scoring run aborted", logger.String("stage", string(stage)), logger.Error(err))
	}
	return &RunError{RunID: r.id, GameID: r.gameID, Stage: stage, Err: err}
}

func (o *Orchestrator) acquire(ctx context.Context, gameID model.GameID) (func(), error) {
	defer func() { metrics.UpdateLocksActive(o.locks.Active()) }()

	if o.lockMode == LockReject {
		unlock, ok := o.locks.TryLock(string(gameID))
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBusy, gameID)
		}
		return unlock, nil
	}

	t0 := time.Now()
	unlock, err := o.locks.Lock(ctx, string(gameID))
	metrics.RecordLockWait(float64(time.Since(t0).Microseconds()) / 1000)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return unlock, nil
}

func (o *Orchestrator) load(ctx context.Context, r *run) error {
	game, err := o.source.Game(ctx, r.gameID)
	if errors.Is(err, repository.ErrGameNotFound) {
		return configurationError("%w", err)
	}
	if err != nil {
		return fmt.Errorf("load game: %w", err)
	}
	if game.RaceID != r.raceID {
		return configurationError("%w: game %s scores race %s, not %s", ErrRaceMismatch, game.ID, game.RaceID, r.raceID)
	}
	r.game = game

	rs, err := o.ruleSets.RuleSet(ctx, r.version)
	if errors.Is(err, repository.ErrRuleSetNotFound) || errors.Is(err, rules.ErrNotFound) {
		return configurationError("%w", err)
	}
	if err != nil {
		return fmt.Errorf("load rule set: %w", err)
	}
	r.ruleSet = rs
	r.calc = scoring.NewCalculator(rs)

	inputs, err := o.source.Results(ctx, r.gameID)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	seen := make(map[model.AthleteID]struct{}, len(inputs))
	for _, in := range inputs {
		if in.GameID != r.gameID {
			return configurationError("result for athlete %s belongs to game %s", in.AthleteID, in.GameID)
		}
		if in.AthleteID == "" {
			return configurationError("result without athlete id")
		}
		if _, dup := seen[in.AthleteID]; dup {
			return configurationError("duplicate result for athlete %s", in.AthleteID)
		}
		seen[in.AthleteID] = struct{}{}
	}
	r.inputs = inputs
	return nil
}

// normalize parses every time field. Malformed values become clock.None and
// are dropped from the split maps; they never fail the run.
func (o *Orchestrator) normalize(_ context.Context, r *run) error {
	r.times = make([]normalized, 0, len(r.inputs))
	for _, in := range r.inputs {
		n := normalized{
			athlete:  in.AthleteID,
			finish:   clock.Parse(in.FinishTime),
			tieBreak: in.TieBreak,
		}
		if len(in.Splits) > 0 {
			n.splits = make(map[model.Checkpoint]clock.Time, len(in.Splits))
			for cp, raw := range in.Splits {
				if t := clock.Parse(raw); t.Valid() && cp.Valid() {
					n.splits[cp] = t
				}
			}
		}
		r.times = append(r.times, n)
	}
	return nil
}

func (o *Orchestrator) rank(_ context.Context, r *run) error {
	entries := make([]ranking.Entry, len(r.times))
	for i, n := range r.times {
		entries[i] = ranking.Entry{AthleteID: n.athlete, Finish: n.finish, TieBreak: n.tieBreak}
	}
	r.placed = ranking.Resolve(entries, r.ruleSet.Convention())
	return nil
}

func (o *Orchestrator) score(_ context.Context, r *run) error {
	r.base = make(map[model.AthleteID][2]breakdown.Fragment, len(r.placed))
	for _, p := range r.placed {
		placement, gap := r.calc.PlacementFragment(p)
		r.base[p.AthleteID] = [2]breakdown.Fragment{placement, gap}
	}
	return nil
}

func (o *Orchestrator) bonus(_ context.Context, r *run) error {
	splits := make(map[model.AthleteID]map[model.Checkpoint]clock.Time, len(r.times))
	for _, n := range r.times {
		splits[n.athlete] = n.splits
	}
	r.bonuses = make(map[model.AthleteID]breakdown.Fragment, len(r.placed))
	for _, p := range r.placed {
		r.bonuses[p.AthleteID] = r.calc.BonusFragment(p, splits[p.AthleteID])
	}
	return nil
}

// assemble merges fragments into rows: finishers in ranking order, then
// athletes without a time ordered by id, with no placement and zero points.
func (o *Orchestrator) assemble(_ context.Context, r *run) error {
	r.scoredAt = o.now().UTC()
	r.rows = make([]repository.ScoredRow, 0, len(r.times))

	ranked := make(map[model.AthleteID]struct{}, len(r.placed))
	for _, p := range r.placed {
		base := r.base[p.AthleteID]
		b, err := breakdown.Merge(base[0], base[1], r.bonuses[p.AthleteID])
		if err != nil {
			return fmt.Errorf("athlete %s: %w", p.AthleteID, err)
		}
		for _, a := range b.Bonuses() {
			metrics.RecordBonus(a.Type.String())
		}
		ranked[p.AthleteID] = struct{}{}
		r.rows = append(r.rows, o.row(r, p.AthleteID, p.Placement, p.FinishMs, p.GapMs, b))
	}

	var unranked []model.AthleteID
	for _, n := range r.times {
		if _, ok := ranked[n.athlete]; !ok {
			unranked = append(unranked, n.athlete)
		}
	}
	slices.SortFunc(unranked, cmp.Compare[model.AthleteID])
	for _, id := range unranked {
		r.rows = append(r.rows, o.row(r, id, 0, 0, 0, breakdown.Zero))
	}
	return nil
}

func (o *Orchestrator) row(r *run, id model.AthleteID, placement int, finishMs, gapMs int64, b breakdown.Breakdown) repository.ScoredRow {
	return repository.ScoredRow{
		GameID:         r.gameID,
		AthleteID:      id,
		Position:       len(r.rows) + 1,
		Placement:      placement,
		FinishMs:       finishMs,
		GapMs:          gapMs,
		TotalPoints:    b.Total(),
		Breakdown:      b,
		RuleSetVersion: r.version,
		RunID:          r.id,
		ScoredAt:       r.scoredAt,
	}
}

func (o *Orchestrator) persist(ctx context.Context, r *run) error {
	if err := o.sink.ReplaceScores(ctx, r.gameID, r.rows); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// notify runs after commit; failures are logged and counted only.
func (o *Orchestrator) notify(ctx context.Context, log logger.Logger, r *run) {
	err := o.notifier.GameScored(ctx, notify.GameScored{
		RunID:          r.id,
		GameID:         string(r.gameID),
		RaceID:         string(r.raceID),
		RuleSetVersion: r.version,
		ScoredAt:       r.scoredAt,
		Finishers:      len(r.placed),
		Athletes:       len(r.rows),
	})
	if err != nil {
		metrics.RecordNotifyFailure()
		log.Warn(ctx, "game.scored notification failed", logger.Error(err))
	}
}
