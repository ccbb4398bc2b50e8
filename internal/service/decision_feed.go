package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

// DecisionFeed reads back the decisions QuoteService publishes, from this or
// any other process sharing the bus.
type DecisionFeed struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewDecisionFeed creates a DecisionFeed.
func NewDecisionFeed(bus domain.SignalBus, logger *slog.Logger) *DecisionFeed {
	return &DecisionFeed{
		bus:    bus,
		logger: logger.With(slog.String("component", "decision_feed")),
	}
}

// Since returns up to count decisions appended to the stream after
// since, oldest first.
func (f *DecisionFeed) Since(ctx context.Context, since time.Time, count int) ([]domain.Evaluation, error) {
	startID := fmt.Sprintf("%d-0", since.UnixMilli())
	msgs, err := f.bus.StreamRead(ctx, DecisionStream, startID, count)
	if err != nil {
		return nil, fmt.Errorf("service: read decisions: %w", err)
	}

	out := make([]domain.Evaluation, 0, len(msgs))
	for _, m := range msgs {
		var eval domain.Evaluation
		if err := json.Unmarshal(m.Payload, &eval); err != nil {
			f.logger.WarnContext(ctx, "skipping undecodable decision",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, eval)
	}
	return out, nil
}

// Follow streams live decisions for every ticker until ctx is done. The
// returned channel is closed when the subscription ends.
func (f *DecisionFeed) Follow(ctx context.Context) (<-chan domain.Evaluation, error) {
	raw, err := f.bus.Subscribe(ctx, DecisionChannel("*"))
	if err != nil {
		return nil, fmt.Errorf("service: follow decisions: %w", err)
	}

	out := make(chan domain.Evaluation)
	go func() {
		defer close(out)
		for payload := range raw {
			var eval domain.Evaluation
			if err := json.Unmarshal(payload, &eval); err != nil {
				f.logger.WarnContext(ctx, "skipping undecodable decision", slog.String("error", err.Error()))
				continue
			}
			select {
			case out <- eval:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
