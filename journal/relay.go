package journal

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sealedcourt/db"
	"sealedcourt/metrics"
)

const (
	defaultRelayInterval = 2 * time.Second
	defaultBatchSize     = 100
	defaultMaxAttempts   = 10
)

// Publisher delivers one outbox message downstream.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// RelayConfig holds configuration for the outbox relay.
type RelayConfig struct {
	Store       Store
	Publisher   Publisher
	Runner      db.TxRunner
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Relay polls the outbox and publishes pending messages. A message that keeps
// failing is dead-lettered after MaxAttempts.
type Relay struct {
	store       Store
	pub         Publisher
	runner      db.TxRunner
	interval    time.Duration
	batch       int
	maxAttempts int
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

func NewRelay(cfg RelayConfig) *Relay {
	r := &Relay{
		store:       cfg.Store,
		pub:         cfg.Publisher,
		runner:      cfg.Runner,
		interval:    cfg.Interval,
		batch:       cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With().Str("component", "outbox_relay").Logger(),
		now:         cfg.Now,
	}
	if r.interval <= 0 {
		r.interval = defaultRelayInterval
	}
	if r.batch <= 0 {
		r.batch = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.runner == nil {
		r.runner = db.Direct{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("relay pass failed")
			}
		}
	}
}

// Flush runs one relay pass and reports how many messages were delivered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	delivered := 0
	err := r.runner.RunInTx(ctx, func(ctx context.Context) error {
		msgs, err := r.store.Claim(ctx, r.batch)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			ok, err := r.deliver(ctx, msg)
			if err != nil {
				return err
			}
			if ok {
				delivered++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if delivered > 0 {
		r.logger.Debug().Int("delivered", delivered).Msg("relayed outbox messages")
	}
	return delivered, nil
}

func (r *Relay) deliver(ctx context.Context, msg Message) (bool, error) {
	now := r.now().UTC()
	if err := r.pub.Publish(ctx, msg); err != nil {
		attempts := msg.Attempts + 1
		dead := attempts >= r.maxAttempts
		log := r.logger.Warn()
		if dead {
			log = r.logger.Error()
		}
		log.Err(err).
			Str("message_id", msg.ID.String()).
			Str("topic", msg.Topic).
			Int("attempts", attempts).
			Bool("dead_lettered", dead).
			Msg("publish outbox message")
		r.metrics.IncOutbox("failed")
		return false, r.store.MarkFailed(ctx, msg.ID, err.Error(), dead, now)
	}
	r.metrics.IncOutbox("published")
	return true, r.store.MarkProcessed(ctx, msg.ID, now)
}
