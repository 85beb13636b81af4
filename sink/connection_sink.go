package sink

import (
	"chat-core/domain/event"
	"chat-core/errors"
	"context"
	"log/slog"
	"sync"
)

// ConnectionSink is the outbound queue of one live connection.
// Consume never blocks: when the queue is full the connection is flagged as a
// slow consumer and the transport is expected to close it.
type ConnectionSink struct {
	Events   chan event.Event
	overflow chan struct{}
	once     sync.Once
	log      *slog.Logger
}

func NewConnectionSink(log *slog.Logger, bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		Events:   make(chan event.Event, bufferSize),
		overflow: make(chan struct{}),
		log:      log,
	}
}

// Consume is called by the services
// Redirect the event through the concerned owner of the channel
// The transport write loop will take it from now
func (s *ConnectionSink) Consume(ctx context.Context, e event.Event) error {
	select {
	case <-s.overflow:
		return errors.ErrSlowConsumer
	default:
	}
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.once.Do(func() {
			s.log.Warn("Connection queue full, dropping connection", "event", e.Name())
			close(s.overflow)
		})
		return errors.ErrSlowConsumer
	}
}

// Overflow is closed once the queue overflowed.
func (s *ConnectionSink) Overflow() <-chan struct{} {
	return s.overflow
}

// Depth reports how many events wait in the queue and how many fit.
func (s *ConnectionSink) Depth() (length, capacity int) {
	return len(s.Events), cap(s.Events)
}
