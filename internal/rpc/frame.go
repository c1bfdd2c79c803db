package rpc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/nymtech/nym-sub006/internal/shared/types"
)

// Methods of the boundary
const (
	MethodSetup      = "setupMixFetch"
	MethodFetch      = "mixFetch"
	MethodDisconnect = "disconnectMixFetch"
)

// EventLoaded is sent once the sandbox has loaded both modules
const EventLoaded = "Loaded"

// Frame is one message on a transport
type Frame struct {
	ID     string            `cbor:"id,omitempty"`
	Method string            `cbor:"method,omitempty"`
	Params cbor.RawMessage   `cbor:"params,omitempty"`
	Result cbor.RawMessage   `cbor:"result,omitempty"`
	Error  *WireError        `cbor:"error,omitempty"`
	Event  string            `cbor:"event,omitempty"`
	Trace  map[string]string `cbor:"trace,omitempty"`
}

// IsRequest reports whether f calls a method
func (f Frame) IsRequest() bool { return f.Method != "" && f.ID != "" }

// IsResponse reports whether f answers a call
func (f Frame) IsResponse() bool { return f.Method == "" && f.ID != "" }

// IsEvent reports whether f is an event
func (f Frame) IsEvent() bool { return f.Event != "" && f.ID == "" }

// FetchParams are the params of mixFetch
type FetchParams struct {
	URL  string            `cbor:"url"`
	Args types.RequestArgs `cbor:"args"`
}

// FetchResult is the result of mixFetch. Response is nil when the module
// produced no response.
type FetchResult struct {
	Response *types.ResponseDescriptor `cbor:"response,omitempty"`
}

// EncodeFrame serializes f
func EncodeFrame(f Frame) ([]byte, error) {
	return cbor.Marshal(f)
}

// DecodeFrame parses a frame and checks it has a recognizable shape
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if !f.IsRequest() && !f.IsResponse() && !f.IsEvent() {
		return Frame{}, fmt.Errorf("%w: no id, method or event", ErrBadFrame)
	}
	return f, nil
}

func marshalPayload(v interface{}) (cbor.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return cbor.Marshal(v)
}

func unmarshalPayload(raw cbor.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return cbor.Unmarshal(raw, v)
}
