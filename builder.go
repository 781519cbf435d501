package alphastream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alphastream/alphastream/internal/containerfmt"
	"github.com/alphastream/alphastream/internal/framecache"
	intruntime "github.com/alphastream/alphastream/internal/runtime"
	"github.com/alphastream/alphastream/internal/scheduler"
	"github.com/alphastream/alphastream/internal/streamcrypto"
	"github.com/alphastream/alphastream/internal/transport"
)

// Builder assembles Processors sharing one runtime shape: worker/pool
// sizes and timeouts. Configure it with Option values, then call Build
// once per container to open.
type Builder struct {
	limits intruntime.Limits
	logger *slog.Logger
}

// Option configures a Builder. Each setter validates its argument's range
// lazily, at Build time, alongside every other option — so an invalid
// combination is reported once, not setter-by-setter.
type Option func(*Builder)

// NewBuilder creates a Builder with every option at its documented
// default; apply Option values to override specific ranges.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{logger: slog.New(slog.NewTextHandler(os.Stderr, nil))}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithLogger overrides the default stderr text logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// WithWorkerThreads sets the general worker-thread count (1-64, default
// NumCPU).
func WithWorkerThreads(n int) Option {
	return func(b *Builder) { b.limits.WorkerThreads = n }
}

// WithIOTasks sets the transport concurrency pool size (1-32, default 4).
func WithIOTasks(n int) Option {
	return func(b *Builder) { b.limits.IOTasks = n }
}

// WithDecodeThreads sets the decrypt/inflate/parse pool size (1-64,
// default NumCPU).
func WithDecodeThreads(n int) Option {
	return func(b *Builder) { b.limits.DecodeThreads = n }
}

// WithRasterTasks sets the rasterization pool size (1-16, default 2).
func WithRasterTasks(n int) Option {
	return func(b *Builder) { b.limits.RasterTasks = n }
}

// WithCacheCapacity sets the frame-cache ring size (16-4096, default 512).
func WithCacheCapacity(n int) Option {
	return func(b *Builder) { b.limits.CacheCapacity = n }
}

// WithPrefetchWindow sets how many slots ahead of the play-head are kept
// at least Pending (1 to capacity-1, default 120).
func WithPrefetchWindow(n int) Option {
	return func(b *Builder) { b.limits.PrefetchWindow = n }
}

// WithTransportChunkSize sets the HTTP sub-range size (64KiB-16MiB,
// default 1MiB).
func WithTransportChunkSize(bytes int) Option {
	return func(b *Builder) { b.limits.TransportChunkSize = bytes }
}

// WithMaxConcurrentRanges sets the HTTP range fan-out (1-32, default 4).
func WithMaxConcurrentRanges(n int) Option {
	return func(b *Builder) { b.limits.MaxConcurrentRanges = n }
}

// WithTransportTimeouts sets per-request connect/read timeouts (1s-300s,
// default 10s each).
func WithTransportTimeouts(connect, read time.Duration) Option {
	return func(b *Builder) {
		b.limits.ConnectTimeout = connect
		b.limits.ReadTimeout = read
	}
}

// WithRetryCount sets the per-request transport retry count (1-10,
// default 3). A value of 0 selects the default, so retries cannot be
// turned off.
func WithRetryCount(n int) Option {
	return func(b *Builder) { b.limits.RetryCount = n }
}

// Build validates the Builder's accumulated options, opens cfg's source,
// decodes the container header and sizes table, and returns a ready
// Processor. On any failure the partially constructed source and runtime
// are closed before returning.
func (b *Builder) Build(ctx context.Context, cfg Config) (*Processor, error) {
	limits, err := intruntime.NewLimits(b.limits)
	if err != nil {
		return nil, fmt.Errorf("alphastream: invalid runtime limits: %w", err)
	}
	cfg = cfg.withDefaults()

	capacity := int(cfg.L0BufferLength)
	if capacity == 0 {
		capacity = limits.CacheCapacity
	}
	prefetch := int(cfg.L1BufferLength)
	if prefetch == 0 {
		prefetch = limits.PrefetchWindow
	}
	if prefetch > capacity-1 {
		prefetch = capacity - 1
	}
	if prefetch < 1 {
		prefetch = 1
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "processor")

	src, err := openTransport(cfg.Source, limits, cfg.DataTimeout)
	if err != nil {
		return nil, fmt.Errorf("alphastream: open source: %w", err)
	}

	var key *streamcrypto.Key32
	if cfg.Version != "" {
		k, err := streamcrypto.DeriveKey(cfg.SceneID, cfg.Version, cfg.ResourceName)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("alphastream: derive key: %w", err)
		}
		key = &k
	}

	initCtx, cancelInit := context.WithTimeout(ctx, cfg.InitTimeout)
	defer cancelInit()
	reader, err := containerfmt.OpenReader(initCtx, src, key, logger.With("component", "containerfmt"))
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("alphastream: open container: %w", err)
	}

	cache := framecache.New(capacity)
	rt := intruntime.New(context.Background(), limits, logger.With("component", "runtime"))

	decodeFn := newDecodeFunc(reader, rt, cfg.Width, cfg.Height)
	sched := scheduler.New(
		cache,
		reader.TotalFrames(),
		uint64(prefetch),
		int64(limits.IOTasks+limits.DecodeThreads),
		decodeFn,
		scheduler.WithLogger(logger.With("component", "scheduler")),
		scheduler.WithBaseContext(rt.Context()),
	)
	if cfg.StartFrame > 0 {
		sched.Seed(rt.Context(), cfg.StartFrame)
	}

	logger.Info("alphastream: processor opened", "frames", reader.TotalFrames(), "width", cfg.Width, "height", cfg.Height)

	return &Processor{
		src:    src,
		reader: reader,
		rt:     rt,
		sched:  sched,
		width:  cfg.Width,
		height: cfg.Height,
		logger: logger,
	}, nil
}

// openTransport opens cfg.Source's underlying transport. dataTimeout, when
// non-zero, overrides the runtime's default per-request read timeout for
// HTTP sources — Config.DataTimeout bounds transport reads issued for one
// Processor, independent of the Builder-wide default every other Processor
// built from the same Builder uses.
func openTransport(s Source, limits intruntime.Limits, dataTimeout time.Duration) (transport.Source, error) {
	switch s.kind {
	case sourceURL:
		requestTimeout := limits.ReadTimeout
		if dataTimeout > 0 {
			requestTimeout = dataTimeout
		}
		return transport.NewHTTPSource(s.url, transport.HTTPOptions{
			ChunkSize:           uint64(limits.TransportChunkSize),
			MaxConcurrentRanges: int64(limits.MaxConcurrentRanges),
			RetryCount:          limits.RetryCount,
			RequestTimeout:      requestTimeout,
			Client: &http.Client{Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: limits.ConnectTimeout}).DialContext,
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			}},
		}), nil
	case sourcePath:
		return transport.NewFileSource(s.path)
	case sourceBuffer:
		return transport.NewMemorySource(s.buf), nil
	default:
		return nil, fmt.Errorf("alphastream: unknown source kind %d", s.kind)
	}
}
