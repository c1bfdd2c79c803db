package mime

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/sandbox"
	"github.com/nymtech/nym-sub006/internal/shared/types"
)

// OpaqueResponse is a fetched response whose body has not been read
type OpaqueResponse interface {
	Status() int
	StatusText() string
	URL() string
	Type() string
	OK() bool
	Redirected() bool
	Header() types.Headers
	HasBody() bool

	Bytes() ([]byte, error)
	Text() (string, error)
	Blob() ([]byte, string, error)
}

var _ OpaqueResponse = (*sandbox.Response)(nil)

// Stager keeps blob bodies inside the sandbox and hands out references
type Stager interface {
	Stage(ctx context.Context, data []byte, contentType string) (types.BlobRef, error)
}

// Option configures a Decoder
type Option func(*Decoder)

// WithLogger sets the decoder logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics records the strategy chosen for each body
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(d *Decoder) { d.metrics = metrics }
}

// Decoder applies a rule set to responses
type Decoder struct {
	rules   RuleSet
	stager  Stager
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewDecoder creates a decoder. stager may be nil when no rule selects
// the blob strategy.
func NewDecoder(rules RuleSet, stager Stager, opts ...Option) *Decoder {
	d := &Decoder{
		rules:  rules,
		stager: stager,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Rules returns the decoder's rule set
func (d *Decoder) Rules() RuleSet {
	return d.rules
}

// Select picks the strategy for resp. A body whose content type matches no
// rule takes the fallback strategy. ok is false when there is no body.
func (d *Decoder) Select(resp OpaqueResponse) (strategy Strategy, ok bool) {
	contentType := resp.Header().Get("Content-Type")
	if contentType != "" {
		if strategy, ok := d.rules.Match(contentType); ok {
			return strategy, true
		}
	}
	if !resp.HasBody() {
		return "", false
	}
	return d.rules.Fallback, true
}

// Decode materializes the body of resp
func (d *Decoder) Decode(ctx context.Context, resp OpaqueResponse) (types.Body, error) {
	strategy, ok := d.Select(resp)
	if !ok {
		d.metrics.RecordDecode("empty", 0)
		return types.EmptyBody{}, nil
	}

	body, size, err := d.apply(ctx, strategy, resp)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", strategy, err)
	}
	d.metrics.RecordDecode(string(body.Kind()), size)
	return body, nil
}

func (d *Decoder) apply(ctx context.Context, strategy Strategy, resp OpaqueResponse) (types.Body, int, error) {
	switch strategy {
	case StrategyBytes:
		data, err := resp.Bytes()
		if err != nil {
			return nil, 0, err
		}
		return types.BytesBody{Data: data}, len(data), nil

	case StrategyJSON:
		text, err := resp.Text()
		if err != nil {
			return nil, 0, err
		}
		return types.JSONBody{Text: text}, len(text), nil

	case StrategyText:
		text, err := resp.Text()
		if err != nil {
			return nil, 0, err
		}
		return types.TextBody{Text: text}, len(text), nil

	case StrategyForm:
		// Read raw bytes first so a malformed form can still cross as bytes
		data, err := resp.Bytes()
		if err != nil {
			return nil, 0, err
		}
		fields, err := sandbox.ParseForm(data, resp.Header().Get("Content-Type"))
		if err != nil {
			d.logger.Warn("malformed form body, passing raw bytes",
				zap.String("url", resp.URL()),
				zap.Error(err),
			)
			return types.BytesBody{Data: data}, len(data), nil
		}
		return types.FormBody{Fields: fields}, len(data), nil

	case StrategyBlob:
		if d.stager == nil {
			return nil, 0, fmt.Errorf("no blob stager configured")
		}
		data, contentType, err := resp.Blob()
		if err != nil {
			return nil, 0, err
		}
		if contentType == "" {
			contentType = mimetype.Detect(data).String()
		}
		ref, err := d.stager.Stage(ctx, data, contentType)
		if err != nil {
			return nil, 0, err
		}
		return types.BlobBody{Ref: ref}, len(data), nil
	}

	return nil, 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidRule, strategy)
}

// Describe reads resp into a descriptor. Metadata is copied verbatim.
func (d *Decoder) Describe(ctx context.Context, resp OpaqueResponse) (*types.ResponseDescriptor, error) {
	body, err := d.Decode(ctx, resp)
	if err != nil {
		return nil, err
	}
	return &types.ResponseDescriptor{
		URL:        resp.URL(),
		Status:     resp.Status(),
		StatusText: resp.StatusText(),
		Headers:    resp.Header(),
		Type:       resp.Type(),
		OK:         resp.OK(),
		Redirected: resp.Redirected(),
		Body:       body,
	}, nil
}
