package modules

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nymtech/nym-sub006/internal/httpclient"
)

// Source provides the bytes of a module image
type Source interface {
	// Name identifies the image in diagnostics and stack traces
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
}

// FileSource reads an image from the local filesystem
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return s.Path }

func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.Path)
}

// URLSource downloads an image over http(s)
type URLSource struct {
	URL    string
	Client *httpclient.Client
}

func (s URLSource) Name() string { return s.URL }

func (s URLSource) Fetch(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = httpclient.New(httpclient.DefaultConfig())
	}
	return client.Get(ctx, s.URL)
}

// BytesSource serves an image held in memory
type BytesSource struct {
	Label string
	Data  []byte
}

func (s BytesSource) Name() string {
	if s.Label == "" {
		return "inline"
	}
	return s.Label
}

func (s BytesSource) Fetch(context.Context) ([]byte, error) {
	return s.Data, nil
}

// ParseSource interprets location as an http(s) URL, a file:// URL or a path.
// An empty location yields nil.
func ParseSource(location string, client *httpclient.Client) Source {
	switch {
	case location == "":
		return nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return URLSource{URL: location, Client: client}
	case strings.HasPrefix(location, "file://"):
		return FileSource{Path: strings.TrimPrefix(location, "file://")}
	default:
		return FileSource{Path: location}
	}
}

func fetchImage(ctx context.Context, src Source) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source configured", ErrModuleFetch)
	}
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleFetch, src.Name(), err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty image", ErrModuleFetch, src.Name())
	}
	return data, nil
}
