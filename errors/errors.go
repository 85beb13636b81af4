package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords        = fmt.Errorf("no words have been found")

	ErrAccessDenied   = fmt.Errorf("access denied: not an active participant")
	ErrNotFound       = fmt.Errorf("not found")
	ErrPersistence    = fmt.Errorf("persistence failure")
	ErrInvalidMessage = fmt.Errorf("invalid message")
	ErrUnknownEvent   = fmt.Errorf("unknown event")
	ErrInvalidPayload = fmt.Errorf("invalid payload")
	ErrSlowConsumer   = fmt.Errorf("connection queue is full")
	ErrInvalidToken   = fmt.Errorf("invalid token")
)

// ClientMessage returns the text sent back in an error event.
// Storage details never reach the client.
func ClientMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrAccessDenied), stderrors.Is(err, ErrNotFound):
		return ErrAccessDenied.Error()
	case stderrors.Is(err, ErrPersistence):
		return "temporary failure, please try again"
	case stderrors.Is(err, ErrInvalidMessage),
		stderrors.Is(err, ErrInvalidPayload),
		stderrors.Is(err, ErrUnknownEvent):
		return err.Error()
	default:
		return "internal error"
	}
}
