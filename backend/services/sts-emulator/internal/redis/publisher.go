package redisstore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/stats"
)

// Saver persists a batch of stats records.
type Saver interface {
	SaveAll(ctx context.Context, records []stats.Record) error
}

// Publisher periodically copies the current statistics to a Saver.
type Publisher struct {
	saver    Saver
	source   func() []stats.Record
	interval time.Duration
	logger   *zap.Logger
}

// NewPublisher builds a publisher reading records from source.
func NewPublisher(saver Saver, source func() []stats.Record, interval time.Duration, logger *zap.Logger) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Publisher{saver: saver, source: source, interval: interval, logger: logger}
}

// Run publishes on every interval until ctx is done. Failures are logged and retried on
// the next tick.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("failed to mirror stats to redis", zap.Error(err))
			}
		}
	}
}

// PublishOnce copies the current statistics.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	records := p.source()
	if err := p.saver.SaveAll(ctx, records); err != nil {
		return err
	}
	p.logger.Debug("stats mirrored", zap.Int("clients", len(records)))
	return nil
}
