// Package runtime validates the runtime shape (pool sizes, transport
// tuning) and owns the permit semaphores and lifetime context of one
// Processor: I/O, decode and raster concurrency. Each Processor gets its own
// Runtime; Processors built from the same Builder share its Limits but not
// its permits or context. Closing a Runtime cancels its context and does
// not join any tasks.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limits holds the validated runtime shape. Zero values are never valid;
// use NewLimits so defaults and ranges are applied uniformly.
type Limits struct {
	WorkerThreads       int
	IOTasks             int
	DecodeThreads       int
	RasterTasks         int
	CacheCapacity       int
	PrefetchWindow      int
	TransportChunkSize  int
	MaxConcurrentRanges int
	ConnectTimeout      time.Duration
	ReadTimeout         time.Duration
	RetryCount          int
}

func clampDefault(v, lo, hi, def int) (int, error) {
	if v == 0 {
		v = def
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("runtime: value %d out of range [%d,%d]", v, lo, hi)
	}
	return v, nil
}

// NewLimits validates and defaults a Limits value per the builder's ranges:
// worker threads 1-64 (default NumCPU), I/O tasks 1-32 (default 4), decode
// threads 1-64 (default NumCPU), raster tasks 1-16 (default 2), cache
// capacity 16-4096 (default 512), prefetch window 1-(capacity-1) (default
// 120), transport chunk size 64KiB-16MiB (default 1MiB), max concurrent
// ranges 1-32 (default 4), connect/read timeouts 1s-300s (default 10s),
// retry count 0-10 (default 3). A zero field takes its default before
// range validation.
func NewLimits(l Limits) (Limits, error) {
	var err error
	ncpu := runtime.NumCPU()

	if l.WorkerThreads, err = clampDefault(l.WorkerThreads, 1, 64, ncpu); err != nil {
		return Limits{}, err
	}
	if l.IOTasks, err = clampDefault(l.IOTasks, 1, 32, 4); err != nil {
		return Limits{}, err
	}
	if l.DecodeThreads, err = clampDefault(l.DecodeThreads, 1, 64, ncpu); err != nil {
		return Limits{}, err
	}
	if l.RasterTasks, err = clampDefault(l.RasterTasks, 1, 16, 2); err != nil {
		return Limits{}, err
	}
	if l.CacheCapacity, err = clampDefault(l.CacheCapacity, 16, 4096, 512); err != nil {
		return Limits{}, err
	}
	maxPrefetch := l.CacheCapacity - 1
	if maxPrefetch < 1 {
		maxPrefetch = 1
	}
	prefetchDefault := 120
	if prefetchDefault > maxPrefetch {
		prefetchDefault = maxPrefetch
	}
	if l.PrefetchWindow, err = clampDefault(l.PrefetchWindow, 1, maxPrefetch, prefetchDefault); err != nil {
		return Limits{}, err
	}
	if l.TransportChunkSize, err = clampDefault(l.TransportChunkSize, 64*1024, 16*1024*1024, 1024*1024); err != nil {
		return Limits{}, err
	}
	if l.MaxConcurrentRanges, err = clampDefault(l.MaxConcurrentRanges, 1, 32, 4); err != nil {
		return Limits{}, err
	}
	if l.RetryCount, err = clampDefault(l.RetryCount, 0, 10, 3); err != nil {
		return Limits{}, err
	}
	if l.ConnectTimeout == 0 {
		l.ConnectTimeout = 10 * time.Second
	}
	if l.ConnectTimeout < time.Second || l.ConnectTimeout > 300*time.Second {
		return Limits{}, fmt.Errorf("runtime: connect timeout %v out of range [1s,300s]", l.ConnectTimeout)
	}
	if l.ReadTimeout == 0 {
		l.ReadTimeout = 10 * time.Second
	}
	if l.ReadTimeout < time.Second || l.ReadTimeout > 300*time.Second {
		return Limits{}, fmt.Errorf("runtime: read timeout %v out of range [1s,300s]", l.ReadTimeout)
	}
	return l, nil
}

// Runtime owns the worker-pool permits shared across a Processor's
// lifetime: I/O concurrency, decode concurrency, and raster concurrency.
// It is created once per Processor and torn down on Close, which cancels
// its context so every in-flight permit wait or transport read unblocks.
// Runtime does not itself spawn or join decode-task goroutines — those
// belong to the scheduler built over it, whose own Close joins them;
// Processor.Close calls the scheduler's Close before this one.
type Runtime struct {
	Limits Limits
	logger *slog.Logger

	IOSem     *semaphore.Weighted
	DecodeSem *semaphore.Weighted
	RasterSem *semaphore.Weighted

	cancel context.CancelFunc
	ctx    context.Context
}

// New builds a Runtime from validated Limits, deriving a cancellable
// context its owner uses to signal teardown to every decode task that
// checks ctx.Done() at a suspension point.
func New(parent context.Context, limits Limits, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Runtime{
		Limits:    limits,
		logger:    logger,
		IOSem:     semaphore.NewWeighted(int64(limits.IOTasks)),
		DecodeSem: semaphore.NewWeighted(int64(limits.DecodeThreads)),
		RasterSem: semaphore.NewWeighted(int64(limits.RasterTasks)),
		cancel:    cancel,
		ctx:       ctx,
	}
}

// Context returns the runtime's lifetime context; decode tasks derive
// their own cancellable context from it so scheduler-level cancellation
// composes with whole-runtime teardown.
func (r *Runtime) Context() context.Context {
	return r.ctx
}

// Close cancels the runtime's context, unblocking every task waiting on
// an I/O, decode, or raster permit or on a transport read, then logs
// teardown. It does not block on task completion: a cancelled decode task
// still runs its own cleanup before returning, and nothing here waits for
// that to happen.
func (r *Runtime) Close() error {
	r.cancel()
	r.logger.Info("runtime: closed", "workers", r.Limits.WorkerThreads, "io_tasks", r.Limits.IOTasks, "decode_threads", r.Limits.DecodeThreads)
	return nil
}
