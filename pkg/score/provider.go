// Package score loads a model bundle once per process and scores tables,
// JSON rows and CSV files against it.
package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/mchmarny/readmit/pkg/bundle"
	"github.com/mchmarny/readmit/pkg/net"
)

// DefaultRetries is the number of download retries for remote bundles.
const DefaultRetries = 5

// ErrNotLoaded is returned when the bundle has not been loaded yet.
var ErrNotLoaded = errors.New("model not loaded")

// Provider holds the bundle for one model source. Concurrent first calls
// to Load share a single load; the bundle is never reloaded.
type Provider struct {
	source   bundle.Source
	cacheDir string
	retries  uint64
	client   *http.Client

	mu     sync.Mutex
	loaded atomic.Pointer[bundle.Bundle]
}

// Option configures a Provider.
type Option func(*Provider)

// WithCacheDir sets the directory remote bundles are downloaded into.
func WithCacheDir(dir string) Option {
	return func(p *Provider) { p.cacheDir = dir }
}

// WithRetries sets the download retry count.
func WithRetries(n uint64) Option {
	return func(p *Provider) { p.retries = n }
}

// WithClient sets the HTTP client used for remote sources.
func WithClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// NewProvider parses source and returns an unloaded provider.
func NewProvider(source string, opts ...Option) (*Provider, error) {
	s, err := bundle.ParseSource(source)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		source:   s,
		cacheDir: filepath.Join(os.TempDir(), "readmit"),
		retries:  DefaultRetries,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// NewStaticProvider returns a provider that is already loaded with b.
func NewStaticProvider(source string, b *bundle.Bundle) *Provider {
	p := &Provider{source: bundle.Source{Raw: source, Kind: bundle.SourceLocal, Path: source}}
	p.loaded.Store(b)
	return p
}

// Source returns the configured model location as given.
func (p *Provider) Source() string { return p.source.Raw }

// Ready reports whether the bundle is loaded.
func (p *Provider) Ready() bool { return p.loaded.Load() != nil }

// Bundle returns the loaded bundle or nil.
func (p *Provider) Bundle() *bundle.Bundle { return p.loaded.Load() }

// Load returns the bundle, downloading and decoding it on first use.
func (p *Provider) Load(ctx context.Context) (*bundle.Bundle, error) {
	if b := p.loaded.Load(); b != nil {
		return b, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if b := p.loaded.Load(); b != nil {
		return b, nil
	}

	path := p.source.Path
	if p.source.Remote() {
		path = filepath.Join(p.cacheDir, bundle.FileName)
		slog.Info("downloading model", "source", p.source.Raw, "path", path)
		if err := net.Download(ctx, p.client, p.source.URL, path, p.retries); err != nil {
			return nil, fmt.Errorf("fetch model %s: %w", p.source.Raw, err)
		}
	}

	b, err := bundle.Load(path)
	if err != nil {
		return nil, err
	}
	slog.Info("model loaded", "source", p.source.Raw, "features", len(b.FeatureNames))
	p.loaded.Store(b)
	return b, nil
}
