package rpc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nymtech/nym-sub006/internal/shared/types"
)

func TestFrameKinds(t *testing.T) {
	tests := []struct {
		name                     string
		frame                    Frame
		request, response, event bool
	}{
		{"request", Frame{ID: "call_1", Method: MethodFetch}, true, false, false},
		{"response", Frame{ID: "call_1"}, false, true, false},
		{"event", Frame{Event: EventLoaded}, false, false, true},
		{"empty", Frame{}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.request, tt.frame.IsRequest())
			assert.Equal(t, tt.response, tt.frame.IsResponse())
			assert.Equal(t, tt.event, tt.frame.IsEvent())
		})
	}
}

func TestFrameCarriesFetchParams(t *testing.T) {
	params, err := marshalPayload(FetchParams{
		URL: "https://example.com/upload",
		Args: types.RequestArgs{
			Method:  "PUT",
			Headers: types.Headers{{Name: "X-A", Value: "1"}, {Name: "X-A", Value: "2"}},
			Body:    []byte{0, 255, 10},
		},
	})
	require.NoError(t, err)

	data, err := EncodeFrame(Frame{ID: "call_1", Method: MethodFetch, Params: params, Trace: map[string]string{"X-Trace-ID": "t1"}})
	require.NoError(t, err)

	f, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.True(t, f.IsRequest())
	assert.Equal(t, "t1", f.Trace["X-Trace-ID"])

	var got FetchParams
	require.NoError(t, unmarshalPayload(f.Params, &got))
	assert.Equal(t, "https://example.com/upload", got.URL)
	assert.Equal(t, "PUT", got.Args.Method)
	assert.Equal(t, []string{"1", "2"}, got.Args.Headers.Values("x-a"))
	assert.Equal(t, []byte{0, 255, 10}, got.Args.Body)
}

func TestFetchResultWithoutResponse(t *testing.T) {
	raw, err := marshalPayload(FetchResult{})
	require.NoError(t, err)

	var result FetchResult
	require.NoError(t, unmarshalPayload(raw, &result))
	assert.Nil(t, result.Response)
}

func TestDecodeFrameErrors(t *testing.T) {
	_, err := DecodeFrame([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrBadFrame)

	data, err := EncodeFrame(Frame{})
	require.NoError(t, err)
	_, err = DecodeFrame(data)
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code ErrorCode
	}{
		{ErrNotReady, CodeNotReady},
		{fmt.Errorf("%w: gateway refused", ErrSession), CodeSession},
		{fmt.Errorf("host: %w", ErrDisconnected), CodeDisconnected},
		{ErrBadRequest, CodeBadRequest},
		{ErrMethodNotFound, CodeMethodNotFound},
		{ErrModule, CodeModule},
		{errors.New("anything else"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))

			remote := fromWire(toWire(tt.err))
			assert.Equal(t, tt.code, CodeOf(remote))
			assert.Contains(t, remote.Error(), tt.err.Error())
		})
	}

	assert.ErrorIs(t, ErrorCode("unheard_of").Err(), ErrInternal)
}
