package workers

import (
	"chat-core/domain"
	"context"
	"log/slog"
	"time"
)

// queueDepth is implemented by sinks backed by a bounded queue.
type queueDepth interface {
	Depth() (length, capacity int)
}

type QueueSample struct {
	ConnectionID domain.ConnectionID
	UserID       domain.UserID
	Length       int
	Capacity     int
}

func (s QueueSample) Ratio() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Length) / float64(s.Capacity)
}

// QueueDepthWorker periodically samples the outbound queue of every live connection
// and warns about the ones close to overflowing.
// Reading len and cap of a channel is non-blocking, so sampling never slows down the fan-out.
type QueueDepthWorker struct {
	log           *slog.Logger
	state         LiveState
	interval      time.Duration
	highWatermark float64
}

func NewQueueDepthWorker(log *slog.Logger, state LiveState, interval time.Duration, highWatermark float64) *QueueDepthWorker {
	return &QueueDepthWorker{log: log, state: state, interval: interval, highWatermark: highWatermark}
}

func (w *QueueDepthWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping queue sampling")
			return nil
		case <-ticker.C:
			for _, s := range w.Sample() {
				if s.Ratio() >= w.highWatermark {
					w.log.Warn("Connection queue filling up",
						"connection_id", s.ConnectionID,
						"user_id", s.UserID,
						"length", s.Length,
						"capacity", s.Capacity)
				}
			}
		}
	}
}

// Sample skips connections whose sink exposes no queue.
func (w *QueueDepthWorker) Sample() []QueueSample {
	var samples []QueueSample
	for _, conn := range w.state.Connections() {
		q, ok := conn.Sink.(queueDepth)
		if !ok {
			continue
		}
		length, capacity := q.Depth()
		samples = append(samples, QueueSample{
			ConnectionID: conn.ID,
			UserID:       conn.Identity.UserID,
			Length:       length,
			Capacity:     capacity,
		})
	}
	return samples
}
