// Package notify tells downstream collaborators (league standings) that a
// game was rescored.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// DefaultTopic carries GameScored events.
const DefaultTopic = "game.scored"

// GameScored is published after a scoring run has persisted.
type GameScored struct {
	RunID          string    `json:"run_id"`
	GameID         string    `json:"game_id"`
	RaceID         string    `json:"race_id"`
	RuleSetVersion int       `json:"rule_set_version"`
	ScoredAt       time.Time `json:"scored_at"`
	Finishers      int       `json:"finishers"`
	Athletes       int       `json:"athletes"`
}

// Notifier publishes scoring events.
type Notifier interface {
	GameScored(ctx context.Context, ev GameScored) error
}

// Publisher sends events through a watermill publisher.
type Publisher struct {
	pub   message.Publisher
	topic string
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// NewPublisher wraps pub.
func NewPublisher(pub message.Publisher, opts ...Option) *Publisher {
	p := &Publisher{pub: pub, topic: DefaultTopic}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Topic returns the topic events are published on.
func (p *Publisher) Topic() string { return p.topic }

// GameScored publishes ev. The message UUID is the run id so consumers can
// deduplicate redeliveries.
func (p *Publisher) GameScored(ctx context.Context, ev GameScored) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify.GameScored: %w", err)
	}
	id := ev.RunID
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, payload)
	msg.Metadata.Set("subject", p.topic)
	msg.Metadata.Set("game_id", ev.GameID)
	msg.SetContext(ctx)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("notify.GameScored: publish: %w", err)
	}
	return nil
}

// NewInProcess returns an in-memory pub/sub for single-binary deployments
// and tests. Publishing does not block on slow subscribers.
func NewInProcess() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NopLogger{})
}

// Decode parses a GameScored payload.
func Decode(msg *message.Message) (GameScored, error) {
	var ev GameScored
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return GameScored{}, fmt.Errorf("notify.Decode: %w", err)
	}
	return ev, nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) GameScored(context.Context, GameScored) error { return nil }
