package exchange

import (
	"context"

	"github.com/rs/zerolog"

	"bookbot-go/internal/metrics"
	"bookbot-go/internal/signal"
)

// BookSink persists book snapshots for the engine to poll.
type BookSink interface {
	PublishBook(ctx context.Context, b signal.Book) error
}

// Publish drains in into sink until ctx is canceled or in is closed.
// Write failures are logged and the snapshot is dropped; the next one supersedes it.
func Publish(ctx context.Context, in <-chan signal.Book, sink BookSink, log zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-in:
			if !ok {
				return nil
			}
			if err := sink.PublishBook(ctx, b); err != nil {
				log.Warn().Err(err).Str("symbol", b.Symbol).Int64("update_id", b.UpdateID).Msg("publish snapshot failed")
				continue
			}
			metrics.SnapshotsPublished.WithLabelValues(b.Symbol).Inc()
		}
	}
}
