// Package scheduler drives decode tasks toward the play-head and owns the
// backpressure between the frame cache and the decode pipeline. It knows
// nothing about containers, transports, or rasterization: DecodeFunc is
// supplied by the caller and does all of that.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alphastream/alphastream/internal/framecache"
)

// Status reports the outcome of a GetFrame call.
type Status int

const (
	// StatusReady indicates the requested slot is populated; Mask is valid.
	StatusReady Status = iota
	// StatusNotReady indicates the 12ms time-box elapsed before the slot
	// became Ready. The decode task, if any, keeps running in the
	// background and its result lands in the cache for a later request.
	StatusNotReady
	// StatusOutOfBounds indicates i >= TotalFrames.
	StatusOutOfBounds
	// StatusFailed indicates the decode task for i ran to completion with
	// an error during this call's wait.
	StatusFailed
)

// timeBox is the soft per-call deadline for a requested slot to become
// Ready before GetFrame returns StatusNotReady.
const timeBox = 12 * time.Millisecond

// failDebounce is the minimum interval between successive decode attempts
// for a slot that most recently failed, so a persistently broken frame
// (bad range, corrupt block) does not busy-loop the decode pool.
const failDebounce = 100 * time.Millisecond

// DecodeFunc produces the rasterized mask for frame i. Implementations are
// expected to internally acquire whatever I/O and CPU concurrency permits
// they need (see runtime.Runtime) before touching the transport and before
// running decrypt/inflate/parse/rasterize; Scheduler itself only bounds how
// many decode tasks it spawns concurrently via taskSem, leaving the split
// between the pools to the caller's DecodeFunc.
type DecodeFunc func(ctx context.Context, i uint64) ([]byte, error)

// Scheduler owns the decode-task lifecycle around a framecache.Cache: which
// slots to prefetch, how long to wait for the one the caller actually
// asked for, and when a previously failed slot is eligible for retry.
type Scheduler struct {
	cache    *framecache.Cache
	decode   DecodeFunc
	logger   *slog.Logger
	total    uint64
	prefetch uint64
	// baseCtx is the parent of every decode task's own cancellable
	// context, so a single cancellation (e.g. Processor.Close tearing
	// down its runtime) unblocks every in-flight task at its next
	// suspension point, in addition to the per-slot cancellation
	// Invalidate/Advance already perform.
	baseCtx context.Context

	// taskSem bounds the number of concurrently in-flight decode task
	// goroutines this Scheduler has spawned; it is independent of the
	// I/O/decode pool permits DecodeFunc acquires internally, and exists
	// so a very large prefetch window cannot spawn thousands of blocked
	// goroutines ahead of permit availability.
	taskSem *semaphore.Weighted

	// wg tracks every decode task goroutine this Scheduler has spawned
	// that has not yet returned. Close blocks on it, so no task can call
	// back into the cache or logger after Close has returned.
	wg sync.WaitGroup

	// closed is set at the start of Close, before it invalidates the
	// cache, so a GetFrame/Seed call already past its own closed check
	// elsewhere cannot spawn a fresh task once teardown has begun.
	closed atomic.Bool

	mu         sync.Mutex
	lastFailed map[uint64]time.Time
	cancels    map[uint64]context.CancelFunc
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler over cache, using decode to produce masks for
// slots it reserves. total is the container's frame count; prefetchWindow
// is clamped to [1, cache.Capacity()-1] by the caller per the builder's
// validated range. maxConcurrentTasks bounds how many decode goroutines
// may be in flight at once (typically ioTasks+decodeThreads from the
// runtime that owns this Scheduler).
func New(cache *framecache.Cache, total, prefetchWindow uint64, maxConcurrentTasks int64, decode DecodeFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		cache:      cache,
		decode:     decode,
		logger:     slog.Default(),
		total:      total,
		prefetch:   prefetchWindow,
		baseCtx:    context.Background(),
		taskSem:    semaphore.NewWeighted(maxConcurrentTasks),
		lastFailed: make(map[uint64]time.Time),
		cancels:    make(map[uint64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithBaseContext sets the parent context for spawned decode tasks.
// Cancelling it (e.g. on Processor.Close) cancels every in-flight task.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.baseCtx = ctx }
}

// Seed advances the cache's play-head to i and ensures its prefetch
// window is populated, without waiting for any slot. Used to warm the
// cache around Config.StartFrame before the first GetFrame call.
func (s *Scheduler) Seed(ctx context.Context, i uint64) {
	if i >= s.total {
		return
	}
	if s.cache.IsSeek(i) {
		s.cache.Invalidate()
	}
	s.cache.Advance(i)
	s.ensureSlot(i)
	s.prefetchAhead(i)
}

// GetFrame implements the per-request scheduling contract: update the
// play-head, ensure the prefetch window is at least Pending, then wait up
// to the 12ms time-box for slot i.
func (s *Scheduler) GetFrame(ctx context.Context, i uint64) ([]byte, Status, error) {
	if i >= s.total {
		return nil, StatusOutOfBounds, nil
	}

	if s.cache.IsSeek(i) {
		s.logger.Warn("scheduler: seek detected, invalidating cache", "frame", i, "head", s.cache.Head())
		s.cache.Invalidate()
	}
	s.cache.Advance(i)

	// ensureSlot's handle is captured synchronously, in the same call
	// that may have just spawned the task producing it — unlike a
	// Lookup performed afterwards, it cannot race against that task
	// completing (possibly instantly, for an error that resolves
	// without ever blocking) and dropping the slot back to Empty before
	// this call gets a chance to wait on it.
	handle := s.ensureSlot(i)
	s.prefetchAhead(i)

	if handle == nil {
		if state, _, mask := s.cache.Lookup(i); state == framecache.Ready {
			return mask, StatusReady, nil
		}
		return nil, StatusNotReady, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeBox)
	defer cancel()
	mask, err, cancelled, ok := handle.Wait(waitCtx)
	if !ok {
		return nil, StatusNotReady, nil
	}
	if cancelled {
		return nil, StatusNotReady, nil
	}
	if err != nil {
		s.recordFailure(i)
		return nil, StatusFailed, err
	}
	return mask, StatusReady, nil
}

// prefetchAhead ensures every Empty slot in (i, i+prefetch_window), clamped
// to the container length, is at least Pending, closer-to-head first. It
// never waits on what it spawns; handles are discarded.
func (s *Scheduler) prefetchAhead(i uint64) {
	end := i + s.prefetch
	if end > s.total {
		end = s.total
	}
	for j := i + 1; j < end; j++ {
		s.ensureSlot(j)
	}
}

// ensureSlot returns the handle to wait on for slot j: the existing
// handle if it is already Pending, a freshly spawned one if it was Empty
// and eligible for retry, or nil if j is Ready (use Lookup for its mask)
// or could not be reserved this call (task pool momentarily exhausted,
// or a recent failure's debounce has not elapsed). It never blocks: a
// full task pool is skipped via TryAcquire rather than waited on, since
// this runs inline within GetFrame's 12ms-budgeted call.
func (s *Scheduler) ensureSlot(j uint64) *framecache.Handle {
	state, handle, _ := s.cache.Lookup(j)
	switch state {
	case framecache.Pending:
		return handle
	case framecache.Ready:
		return nil
	}

	if s.closed.Load() {
		return nil
	}
	if !s.debounceElapsed(j) {
		return nil
	}
	if !s.taskSem.TryAcquire(1) {
		return nil
	}

	h, isNew := s.cache.Reserve(j)
	if !isNew {
		// Another caller reserved it between Lookup and Reserve; h is
		// already Pending and running under its own permit.
		s.taskSem.Release(1)
		return h
	}

	taskCtx, cancel := context.WithCancel(s.baseCtx)
	h.SetOnCancel(cancel)
	s.mu.Lock()
	s.cancels[j] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runTask(taskCtx, j, cancel)
	return h
}

func (s *Scheduler) runTask(ctx context.Context, j uint64, cancel context.CancelFunc) {
	defer s.wg.Done()
	defer s.taskSem.Release(1)
	defer cancel()
	defer s.clearCancel(j)

	mask, err := s.decode(ctx, j)
	if err != nil {
		s.logger.Warn("scheduler: decode task failed", "frame", j, "error", err)
		s.cache.Fail(j, err)
		s.recordFailure(j)
		return
	}
	s.cache.Complete(j, mask)
}

// Close invalidates the cache — cancelling every Pending slot's decode
// task via its handle's onCancel callback — then blocks until every
// decode task this Scheduler has ever spawned has returned. After Close
// returns, no task goroutine can still be running, so none can call back
// into the cache or logger.
func (s *Scheduler) Close() {
	s.closed.Store(true)
	s.cache.Invalidate()
	s.wg.Wait()
}

func (s *Scheduler) clearCancel(j uint64) {
	s.mu.Lock()
	delete(s.cancels, j)
	s.mu.Unlock()
}

func (s *Scheduler) recordFailure(j uint64) {
	s.mu.Lock()
	s.lastFailed[j] = time.Now()
	s.mu.Unlock()
}

func (s *Scheduler) debounceElapsed(j uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastFailed[j]
	if !ok {
		return true
	}
	if time.Since(last) >= failDebounce {
		delete(s.lastFailed, j)
		return true
	}
	return false
}
