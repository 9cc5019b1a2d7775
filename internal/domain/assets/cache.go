package assets

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copper/internal/shared/apperr"
	"github.com/GriffinCanCode/copper/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Extractor unpacks payload into dest, which does not exist yet
type Extractor interface {
	Extract(ctx context.Context, payload []byte, dest string) (Inventory, error)
}

// Inventory summarizes an extracted directory
type Inventory struct {
	Format string
	Files  int64
	Bytes  int64
}

// Cache maps payload checksums to extracted directories
type Cache struct {
	root      string
	extractor Extractor
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	mu      sync.RWMutex
	entries map[string]string
	flights singleflight.Group
}

// Option configures a Cache
type Option func(*Cache)

// WithExtractor replaces the archive extractor
func WithExtractor(e Extractor) Option {
	return func(c *Cache) { c.extractor = e }
}

// WithMetrics enables cache metrics
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates a cache rooted at dir
func NewCache(dir string, log *zap.Logger, opts ...Option) *Cache {
	log = logging.Or(log)
	c := &Cache{
		root:    dir,
		logger:  log,
		entries: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.extractor == nil {
		c.extractor = NewArchiveExtractor()
	}
	return c
}

// Checksum returns the cache key for payload
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Resolve returns the directory holding the extracted payload, extracting it
// at most once per checksum.
func (c *Cache) Resolve(ctx context.Context, payload []byte) (string, error) {
	sum := Checksum(payload)

	if location, ok := c.lookup(sum); ok {
		c.metrics.RecordAssetLookup("hit")
		return location, nil
	}

	// the extraction outlives any single caller; waiters may give up on ctx
	flight := c.flights.DoChan(sum, func() (interface{}, error) {
		if location, ok := c.lookup(sum); ok {
			return location, nil
		}
		return c.extract(context.WithoutCancel(ctx), sum, payload)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-flight:
		if res.Shared {
			c.metrics.RecordAssetLookup("shared")
		} else {
			c.metrics.RecordAssetLookup("miss")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// ResolveEncoded decodes a base64 payload and resolves it
func (c *Cache) ResolveEncoded(ctx context.Context, encoded string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", apperr.AssetExtractionFailed("", fmt.Errorf("decode payload: %w", err))
	}
	return c.Resolve(ctx, payload)
}

// ResolveAll resolves several base64 payloads concurrently. Locations are
// returned in request order.
func (c *Cache) ResolveAll(ctx context.Context, encoded []string) ([]string, error) {
	locations := make([]string, len(encoded))

	g, gctx := errgroup.WithContext(ctx)
	for i, payload := range encoded {
		i, payload := i, payload
		g.Go(func() error {
			location, err := c.ResolveEncoded(gctx, payload)
			if err != nil {
				return err
			}
			locations[i] = location
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return locations, nil
}

// Len returns the number of completed entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(sum string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	location, ok := c.entries[sum]
	return location, ok
}

func (c *Cache) extract(ctx context.Context, sum string, payload []byte) (string, error) {
	start := time.Now()
	dest := filepath.Join(c.root, id.NewDirName())

	c.logger.Info("extracting asset",
		zap.String("checksum", sum),
		zap.String("location", dest),
		zap.Int("size", len(payload)))

	if err := os.MkdirAll(c.root, 0o755); err != nil {
		c.metrics.RecordAssetExtraction("failure")
		return "", apperr.AssetExtractionFailed(sum, err)
	}

	inv, err := c.extractor.Extract(ctx, payload, dest)
	if err != nil {
		_ = os.RemoveAll(dest)
		c.metrics.RecordAssetExtraction("failure")
		c.logger.Error("asset extraction failed", zap.String("checksum", sum), zap.Error(err))
		return "", apperr.AssetExtractionFailed(sum, err)
	}

	c.mu.Lock()
	c.entries[sum] = dest
	c.mu.Unlock()

	c.metrics.RecordAssetExtraction("success")
	c.logger.Info("asset extracted",
		zap.String("checksum", sum),
		zap.String("location", dest),
		zap.String("format", inv.Format),
		zap.Int64("files", inv.Files),
		zap.Int64("bytes", inv.Bytes),
		zap.Duration("duration", time.Since(start)))

	return dest, nil
}
