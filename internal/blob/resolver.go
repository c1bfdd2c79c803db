package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/nymtech/nym-sub006/internal/httpclient"
)

// HTTPResolver dereferences handles against a remote sandbox host's
// /blobs endpoint
type HTTPResolver struct {
	BaseURL string
	Client  *httpclient.Client
}

// NewHTTPResolver creates a resolver for the host at baseURL
func NewHTTPResolver(baseURL string, client *httpclient.Client) *HTTPResolver {
	if client == nil {
		client = httpclient.New(httpclient.DefaultConfig())
	}
	return &HTTPResolver{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

// Resolve fetches the blob behind handle. The host releases it on serve.
func (r *HTTPResolver) Resolve(ctx context.Context, handle string) ([]byte, string, error) {
	_, blobID, err := ParseHandle(handle)
	if err != nil {
		return nil, "", err
	}

	data, contentType, err := r.Client.GetWithType(ctx, r.BaseURL+"/blobs/"+url.PathEscape(blobID))
	if err != nil {
		if errors.Is(err, httpclient.ErrStatus) {
			return nil, "", fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, "", err
	}
	return data, contentType, nil
}
