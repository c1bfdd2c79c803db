package mixfetch

import (
	"fmt"
	"io"
	"net/http"

	"github.com/nymtech/nym-sub006/internal/shared/types"
)

var _ http.RoundTripper = (*Client)(nil)

// RoundTrip implements http.RoundTripper. Redirects are followed inside
// the sandbox, so the response is final.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = data
	}

	headers := types.HeadersFromHTTP(req.Header)
	if req.Host != "" && req.Host != req.URL.Host {
		headers.Set("Host", req.Host)
	}

	resp, err := c.Fetch(req.Context(), req.URL.String(), RequestArgs{
		Method:   req.Method,
		Headers:  headers,
		Body:     body,
		Redirect: "follow",
	})
	if err != nil {
		return nil, err
	}
	resp.Response.Request = req
	return resp.Response, nil
}

// HTTPClient returns an *http.Client that sends every request through c
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Transport: c,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
