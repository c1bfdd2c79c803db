package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nymtech/nym-sub006/internal/infrastructure/monitoring"
	"github.com/nymtech/nym-sub006/internal/shared/id"
	"github.com/nymtech/nym-sub006/internal/shared/types"
)

var (
	ErrNotFound  = errors.New("blob: not found")
	ErrBadHandle = errors.New("blob: malformed handle")
)

const (
	scheme         = "blob:"
	defaultTTL     = 2 * time.Minute
	defaultOrigin  = "null"
	defaultSweepIn = 30 * time.Second
)

// Config bounds blob lifetime
type Config struct {
	Origin        string
	TTL           time.Duration
	SweepInterval time.Duration
}

type entry struct {
	data        []byte
	contentType string
	expires     time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records staging and expiry
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(s *Store) { s.metrics = metrics }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store holds staged blobs
type Store struct {
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewStore creates an empty store
func NewStore(cfg Config, opts ...Option) *Store {
	if cfg.Origin == "" {
		cfg.Origin = defaultOrigin
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepIn
	}

	s := &Store{
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Origin returns the origin embedded in handles
func (s *Store) Origin() string {
	return s.cfg.Origin
}

// Stage keeps data and returns a handle to it
func (s *Store) Stage(ctx context.Context, data []byte, contentType string) (types.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return types.BlobRef{}, err
	}

	blobID := id.NewBlobID().String()

	s.mu.Lock()
	s.entries[blobID] = &entry{
		data:        data,
		contentType: contentType,
		expires:     s.now().Add(s.cfg.TTL),
	}
	s.mu.Unlock()

	s.metrics.BlobStaged()
	s.logger.Debug("blob staged",
		zap.String("blob_id", blobID),
		zap.Int("size", len(data)),
		zap.String("type", contentType),
	)

	return types.BlobRef{
		Handle: s.Handle(blobID),
		ID:     blobID,
		Size:   int64(len(data)),
		Type:   contentType,
	}, nil
}

// Handle formats the handle of blob id
func (s *Store) Handle(blobID string) string {
	return scheme + s.cfg.Origin + "/" + blobID
}

// ParseHandle splits a handle into its origin and blob id
func ParseHandle(handle string) (origin, blobID string, err error) {
	rest, ok := strings.CutPrefix(handle, scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrBadHandle, handle)
	}
	i := strings.LastIndexByte(rest, '/')
	if i < 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrBadHandle, handle)
	}
	return rest[:i], rest[i+1:], nil
}

// Take returns a blob's bytes and type and releases it
func (s *Store) Take(blobID string) ([]byte, string, error) {
	s.mu.Lock()
	e, ok := s.entries[blobID]
	if ok {
		delete(s.entries, blobID)
	}
	s.mu.Unlock()

	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, blobID)
	}
	if s.now().After(e.expires) {
		s.metrics.BlobReleased(true)
		return nil, "", fmt.Errorf("%w: %s expired", ErrNotFound, blobID)
	}

	s.metrics.BlobReleased(false)
	return e.data, e.contentType, nil
}

// Resolve dereferences a handle issued by this store
func (s *Store) Resolve(ctx context.Context, handle string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	origin, blobID, err := ParseHandle(handle)
	if err != nil {
		return nil, "", err
	}
	if origin != s.cfg.Origin {
		return nil, "", fmt.Errorf("%w: origin %q is not %q", ErrNotFound, origin, s.cfg.Origin)
	}
	return s.Take(blobID)
}

// Release drops a blob without reading it. It reports whether the blob
// was still staged.
func (s *Store) Release(blobID string) bool {
	s.mu.Lock()
	_, ok := s.entries[blobID]
	delete(s.entries, blobID)
	s.mu.Unlock()

	if ok {
		s.metrics.BlobReleased(false)
	}
	return ok
}

// Sweep drops expired blobs and returns how many were dropped
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	var expired []string
	for blobID, e := range s.entries {
		if now.After(e.expires) {
			expired = append(expired, blobID)
			delete(s.entries, blobID)
		}
	}
	s.mu.Unlock()

	for _, blobID := range expired {
		s.metrics.BlobReleased(true)
		s.logger.Debug("blob expired", zap.String("blob_id", blobID))
	}
	return len(expired)
}

// Run sweeps on every interval until ctx ends
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("expired unclaimed blobs", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of staged blobs
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
