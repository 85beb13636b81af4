package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientMessage(t *testing.T) {
	req := require.New(t)

	req.Equal("", ClientMessage(nil))
	req.Equal(ErrAccessDenied.Error(), ClientMessage(fmt.Errorf("join c1: %w", ErrAccessDenied)))
	req.Equal(ErrAccessDenied.Error(), ClientMessage(ErrNotFound))

	// Storage details are hidden
	msg := ClientMessage(fmt.Errorf("%w: badger: txn too big", ErrPersistence))
	req.NotContains(msg, "badger")

	req.Equal("invalid message: content is empty",
		ClientMessage(fmt.Errorf("%w: content is empty", ErrInvalidMessage)))
	req.Equal("internal error", ClientMessage(fmt.Errorf("boom")))
}
