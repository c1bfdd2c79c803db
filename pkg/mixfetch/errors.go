package mixfetch

import (
	"fmt"

	"github.com/nymtech/nym-sub006/internal/infrastructure/resilience"
	"github.com/nymtech/nym-sub006/internal/reconstruct"
	"github.com/nymtech/nym-sub006/internal/rpc"
)

// Errors returned by Client. Remote errors match these with errors.Is.
var (
	ErrNotReady     = rpc.ErrNotReady
	ErrSession      = rpc.ErrSession
	ErrDisconnected = rpc.ErrDisconnected
	ErrBadRequest   = rpc.ErrBadRequest
	ErrModule       = rpc.ErrModule
	ErrInternal     = rpc.ErrInternal
	ErrClosed       = rpc.ErrClosed

	// ErrNoResponse means the sandbox completed the call without a response
	ErrNoResponse = reconstruct.ErrNoResponse
	// ErrCircuitOpen is returned while repeated session failures keep the
	// client from issuing fetches
	ErrCircuitOpen = resilience.ErrCircuitOpen

	ErrInvalidHeader = fmt.Errorf("mixfetch: invalid request header: %w", rpc.ErrBadRequest)
	ErrInvalidURL    = fmt.Errorf("mixfetch: invalid url: %w", rpc.ErrBadRequest)
)
