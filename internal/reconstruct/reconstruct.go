package reconstruct

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/nymtech/nym-sub006/internal/shared/types"
)

var (
	// ErrNoResponse is returned for a nil descriptor
	ErrNoResponse = errors.New("reconstruct: no response")
	// ErrAmbiguousBody is returned for a descriptor whose body variant is
	// not one of the known kinds
	ErrAmbiguousBody = types.ErrAmbiguousBody
	// ErrNoResolver is returned for a blob body without a resolver
	ErrNoResolver = errors.New("reconstruct: no blob resolver")
)

// BlobResolver dereferences a blob handle into its bytes and type
type BlobResolver interface {
	Resolve(ctx context.Context, handle string) ([]byte, string, error)
}

// Response is a reconstructed response. The embedded *http.Response
// carries the status line, headers and a fully buffered body.
type Response struct {
	*http.Response

	URL        string
	StatusText string
	OK         bool
	Redirected bool
	Type       string

	// Headers keeps the original order and name casing
	Headers types.Headers
	Kind    types.BodyKind
	// Form holds the decoded fields of a form body
	Form []types.FormField

	data []byte
	text *string
}

// Bytes returns the body bytes
func (r *Response) Bytes() []byte {
	return r.data
}

// Text returns the body as a string. Text and JSON bodies return the
// string decoded inside the sandbox.
func (r *Response) Text() string {
	if r.text != nil {
		return *r.text
	}
	return string(r.data)
}

// JSON decodes the body into v
func (r *Response) JSON(v interface{}) error {
	return sonic.UnmarshalString(r.Text(), v)
}

// Option configures a Reconstructor
type Option func(*Reconstructor)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconstructor) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Reconstructor builds responses from descriptors
type Reconstructor struct {
	resolver BlobResolver
	logger   *zap.Logger
}

// New creates a reconstructor. resolver may be nil when blob bodies are
// never expected.
func New(resolver BlobResolver, opts ...Option) *Reconstructor {
	r := &Reconstructor{resolver: resolver, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build reconstructs the response described by desc
func (r *Reconstructor) Build(ctx context.Context, desc *types.ResponseDescriptor) (*Response, error) {
	if desc == nil {
		return nil, ErrNoResponse
	}

	resp := &Response{
		URL:        desc.URL,
		StatusText: desc.StatusText,
		OK:         desc.OK,
		Redirected: desc.Redirected,
		Type:       desc.Type,
		Headers:    desc.Headers.Clone(),
	}
	contentType := desc.Headers.Get("Content-Type")

	switch body := desc.Body.(type) {
	case nil, types.EmptyBody:
		resp.Kind = types.BodyEmpty
	case types.BytesBody:
		resp.Kind = types.BodyBytes
		resp.data = body.Data
	case types.JSONBody:
		resp.Kind = types.BodyJSON
		resp.data = encodeText(body.Text, contentType)
		resp.text = &body.Text
	case types.TextBody:
		resp.Kind = types.BodyText
		resp.data = encodeText(body.Text, contentType)
		resp.text = &body.Text
	case types.FormBody:
		data, err := EncodeForm(body.Fields, contentType)
		if err != nil {
			return nil, err
		}
		resp.Kind = types.BodyForm
		resp.Form = body.Fields
		resp.data = data
	case types.BlobBody:
		if r.resolver == nil {
			return nil, ErrNoResolver
		}
		data, _, err := r.resolver.Resolve(ctx, body.Ref.Handle)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", body.Ref.Handle, err)
		}
		if body.Ref.Size >= 0 && int64(len(data)) != body.Ref.Size {
			r.logger.Warn("blob size mismatch",
				zap.String("handle", body.Ref.Handle),
				zap.Int64("declared", body.Ref.Size),
				zap.Int("resolved", len(data)),
			)
		}
		resp.Kind = types.BodyBlob
		resp.data = data
	default:
		return nil, fmt.Errorf("%w: %T", ErrAmbiguousBody, desc.Body)
	}

	status := strconv.Itoa(desc.Status)
	if desc.StatusText != "" {
		status += " " + desc.StatusText
	}

	resp.Response = &http.Response{
		Status:        status,
		StatusCode:    desc.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        desc.Headers.HTTPHeader(),
		ContentLength: int64(len(resp.data)),
		Body:          http.NoBody,
	}
	if len(resp.data) > 0 {
		resp.Response.Body = io.NopCloser(bytes.NewReader(resp.data))
	}
	return resp, nil
}

// encodeText renders s in the charset declared by contentType, UTF-8 when
// none is declared or the text cannot be represented
func encodeText(s, contentType string) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return []byte(s)
	}
	enc, name := charset.Lookup(params["charset"])
	if enc == nil || name == "utf-8" {
		return []byte(s)
	}
	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

// EncodeForm renders fields in the encoding named by contentType.
// Multipart bodies reuse the declared boundary; anything else is
// urlencoded.
func EncodeForm(fields []types.FormField, contentType string) ([]byte, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		return encodeURLEncoded(fields), nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if boundary := params["boundary"]; boundary != "" {
		if err := w.SetBoundary(boundary); err != nil {
			return nil, fmt.Errorf("multipart boundary: %w", err)
		}
	}

	for _, f := range fields {
		h := make(textproto.MIMEHeader)
		disposition := map[string]string{"name": f.Name}
		if f.Filename != "" {
			disposition["filename"] = f.Filename
		}
		h.Set("Content-Disposition", mime.FormatMediaType("form-data", disposition))
		if f.ContentType != "" {
			h.Set("Content-Type", f.ContentType)
		}

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(part, f.Value); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeURLEncoded(fields []types.FormField) []byte {
	pairs := make([]string, len(fields))
	for i, f := range fields {
		pairs[i] = url.QueryEscape(f.Name) + "=" + url.QueryEscape(f.Value)
	}
	return []byte(strings.Join(pairs, "&"))
}
