package journal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/events"
)

const saveTimeout = 5 * time.Second

// Saver persists one event.
type Saver interface {
	Save(ctx context.Context, ev events.Event) error
}

// Writer drains an event feed into a Saver. A failed save is logged and skipped; it
// never reaches request handling.
type Writer struct {
	saver  Saver
	logger *zap.Logger
}

// NewWriter builds a journal writer.
func NewWriter(saver Saver, logger *zap.Logger) *Writer {
	return &Writer{saver: saver, logger: logger}
}

// Run saves events until feed is closed or ctx is done.
func (w *Writer) Run(ctx context.Context, feed <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			w.save(ctx, ev)
		}
	}
}

func (w *Writer) save(ctx context.Context, ev events.Event) {
	saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	if err := w.saver.Save(saveCtx, ev); err != nil {
		w.logger.Warn("failed to journal request",
			zap.String("event_id", ev.ID),
			zap.String("client", ev.Client),
			zap.Error(err))
	}
}
