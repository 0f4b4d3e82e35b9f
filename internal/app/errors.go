package service

import (
	"errors"
	"fmt"

	"github.com/okian/racescore/internal/domain/model"
)

// Error classes surfaced to callers. Test with errors.Is.
var (
	// ErrConfiguration covers unknown games, races and rule-set versions and
	// invalid input sets. Nothing is written.
	ErrConfiguration = errors.New("scoring configuration error")
	// ErrBusy means the game is being scored by another run. Retryable.
	ErrBusy = errors.New("game is already being scored")
	// ErrRaceMismatch is a configuration error: the race is not the game's race.
	ErrRaceMismatch = errors.New("race does not belong to game")
	// ErrQueueFull means an async request could not be accepted. Retryable.
	ErrQueueFull = errors.New("score queue is full")
	// ErrNotStarted is returned by Service methods before Start.
	ErrNotStarted = errors.New("service not started")
)

// RunError reports an aborted scoring run.
type RunError struct {
	RunID  string
	GameID model.GameID
	Stage  Stage
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("scoring run %s for game %s aborted at %s: %v", e.RunID, e.GameID, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func configurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrConfiguration, fmt.Errorf(format, args...))
}
