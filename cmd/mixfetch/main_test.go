package main

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nymtech/nym-sub006/internal/shared/types"
	"github.com/nymtech/nym-sub006/pkg/mixfetch"
)

func TestRequestArgs(t *testing.T) {
	t.Cleanup(func() { method, headers, data = "GET", nil, "" })

	method = "post"
	headers = []string{"Content-Type: application/json", "X-A:1", "X-A: 2"}
	data = `{"a":1}`

	args, err := requestArgs()
	require.NoError(t, err)
	assert.Equal(t, "POST", args.Method)
	assert.Equal(t, types.Headers{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "X-A", Value: "1"},
		{Name: "X-A", Value: "2"},
	}, args.Headers)
	assert.Equal(t, []byte(`{"a":1}`), args.Body)

	headers = []string{"no-colon"}
	_, err = requestArgs()
	assert.Error(t, err)
}

func TestRequestArgsFromFile(t *testing.T) {
	t.Cleanup(func() { data = "" })

	path := filepath.Join(t.TempDir(), "body.bin")
	require.NoError(t, os.WriteFile(path, []byte{0, 1, 2}, 0o600))
	data = "@" + path

	args, err := requestArgs()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, args.Body)
}

func testResponse(kind types.BodyKind) *mixfetch.Response {
	return &mixfetch.Response{
		Response: &http.Response{
			Status:     "200 OK",
			StatusCode: 200,
			Proto:      "HTTP/1.1",
		},
		URL:        "https://example.com/x",
		StatusText: "OK",
		OK:         true,
		Headers:    types.Headers{{Name: "X-Hop", Value: "3"}, {Name: "X-Hop", Value: "5"}},
		Kind:       kind,
	}
}

func TestPrintPlainIncludesHeaders(t *testing.T) {
	t.Cleanup(func() { include = false })
	include = true

	var buf bytes.Buffer
	require.NoError(t, printPlain(&buf, testResponse(types.BodyEmpty)))
	assert.Equal(t, "HTTP/1.1 200 OK\nX-Hop: 3\nX-Hop: 5\n\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, testResponse(types.BodyEmpty)))

	var out jsonResponse
	require.NoError(t, sonic.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 200, out.Status)
	assert.Equal(t, "https://example.com/x", out.URL)
	assert.Equal(t, [][2]string{{"X-Hop", "3"}, {"X-Hop", "5"}}, out.Headers)
	assert.Equal(t, types.BodyEmpty, out.BodyKind)
	assert.Empty(t, out.Body)
	assert.Empty(t, out.BodyBase64)
}
