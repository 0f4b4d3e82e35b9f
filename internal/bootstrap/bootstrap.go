// Package bootstrap turns a loaded Config into the running pieces shared by
// the HTTP server and the racescore CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/okian/racescore/internal/adapters/notify"
	"github.com/okian/racescore/internal/adapters/repository"
	"github.com/okian/racescore/internal/adapters/repository/migrations"
	service "github.com/okian/racescore/internal/app"
	"github.com/okian/racescore/internal/config"
	"github.com/okian/racescore/pkg/logger"
)

// ErrLockMode is returned for a lock_mode the orchestrator does not know.
var ErrLockMode = errors.New("bootstrap: unknown lock mode")

// OpenStore opens the configured store. SQL stores are migrated first so a
// fresh database is usable right away.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	store, err := repository.Open(cfg.StorageDriver, cfg.StorageDSN)
	if err != nil {
		return nil, fmt.Errorf("bootstrap.OpenStore: %w", err)
	}
	bs, ok := store.(*repository.BunStore)
	if !ok {
		return store, nil
	}
	group, err := migrations.Up(ctx, bs.DB())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bootstrap.OpenStore: %w", err)
	}
	if !group.IsZero() {
		logger.Get().Info(ctx, "database migrated",
			logger.String("driver", cfg.StorageDriver),
			logger.String("group", group.String()),
		)
	}
	return store, nil
}

// Events is the in-process game.scored bus.
type Events struct {
	Publisher *notify.Publisher
	PubSub    interface {
		message.Publisher
		message.Subscriber
	}
}

// NewEvents creates the bus on the configured topic.
func NewEvents(cfg *config.Config) *Events {
	ps := notify.NewInProcess()
	return &Events{
		Publisher: notify.NewPublisher(ps, notify.WithTopic(cfg.NotifyTopic)),
		PubSub:    ps,
	}
}

// Close shuts the bus down.
func (e *Events) Close() error {
	return e.PubSub.Close()
}

// NewService builds an unstarted Service from cfg. A nil events bus keeps
// the no-op notifier.
func NewService(cfg *config.Config, store repository.Store, events *Events, opts ...service.Option) (*service.Service, error) {
	mode, ok := service.ParseLockMode(cfg.LockMode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLockMode, cfg.LockMode)
	}
	orch := []service.OrchestratorOption{service.WithLockMode(mode)}
	if events != nil {
		orch = append(orch, service.WithNotifier(events.Publisher))
	}

	base := []service.Option{
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDefaultRuleSetVersion(cfg.DefaultRuleSetVersion),
		service.WithRuleSetsFile(cfg.RuleSetsFile),
		service.WithOrchestratorOptions(orch...),
	}
	return service.New(store, append(base, opts...)...), nil
}

// LogScoredGames logs every game.scored event until ctx is done or the
// subscription closes.
func LogScoredGames(ctx context.Context, sub message.Subscriber, topic string) error {
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("bootstrap.LogScoredGames: %w", err)
	}
	log := logger.Get().Named("events")
	for msg := range msgs {
		ev, err := notify.Decode(msg)
		if err != nil {
			log.Warn(ctx, "dropping undecodable event", logger.String("uuid", msg.UUID), logger.Error(err))
			msg.Ack()
			continue
		}
		log.Info(ctx, "game scored",
			logger.String("game_id", ev.GameID),
			logger.String("run_id", ev.RunID),
			logger.Int("rule_set_version", ev.RuleSetVersion),
			logger.Int("finishers", ev.Finishers),
		)
		msg.Ack()
	}
	return nil
}
