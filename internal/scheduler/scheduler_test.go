package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alphastream/alphastream/internal/framecache"
)

func TestGetFrameReturnsReadyAfterDecode(t *testing.T) {
	t.Parallel()

	cache := framecache.New(16)
	decode := func(ctx context.Context, i uint64) ([]byte, error) {
		return []byte{byte(i)}, nil
	}
	s := New(cache, 100, 8, 4, decode)

	mask, status, err := s.GetFrame(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusReady {
		t.Fatalf("status = %v, want StatusReady", status)
	}
	if len(mask) != 1 || mask[0] != 5 {
		t.Fatalf("mask = %v, want [5]", mask)
	}
}

func TestGetFrameOutOfBounds(t *testing.T) {
	t.Parallel()

	cache := framecache.New(16)
	s := New(cache, 10, 4, 4, func(ctx context.Context, i uint64) ([]byte, error) {
		return []byte{0}, nil
	})

	_, status, err := s.GetFrame(context.Background(), 10)
	if err != nil || status != StatusOutOfBounds {
		t.Fatalf("GetFrame(10) = status=%v err=%v, want StatusOutOfBounds,nil", status, err)
	}
}

func TestGetFrameNotReadyWithinTimeBox(t *testing.T) {
	t.Parallel()

	cache := framecache.New(16)
	release := make(chan struct{})
	decode := func(ctx context.Context, i uint64) ([]byte, error) {
		<-release
		return []byte{1}, nil
	}
	s := New(cache, 10, 4, 4, decode)
	defer close(release)

	start := time.Now()
	_, status, err := s.GetFrame(context.Background(), 0)
	elapsed := time.Since(start)
	if err != nil || status != StatusNotReady {
		t.Fatalf("status=%v err=%v, want StatusNotReady,nil", status, err)
	}
	if elapsed > 100*time.Millisecond {
		t.Fatalf("GetFrame blocked for %v, want roughly the 12ms time-box", elapsed)
	}
}

func TestGetFrameSucceedsOnSubsequentCallAfterSlowDecode(t *testing.T) {
	t.Parallel()

	cache := framecache.New(16)
	release := make(chan struct{})
	decode := func(ctx context.Context, i uint64) ([]byte, error) {
		<-release
		return []byte{42}, nil
	}
	s := New(cache, 10, 4, 4, decode)

	_, status, _ := s.GetFrame(context.Background(), 0)
	if status != StatusNotReady {
		t.Fatalf("first call status = %v, want StatusNotReady", status)
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mask, status, _ := s.GetFrame(context.Background(), 0)
		if status == StatusReady {
			if len(mask) != 1 || mask[0] != 42 {
				t.Fatalf("mask = %v, want [42]", mask)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("frame 0 never became Ready after decode completed")
}

func TestGetFrameFailedReportsError(t *testing.T) {
	t.Parallel()

	cache := framecache.New(16)
	wantErr := errors.New("boom")
	decode := func(ctx context.Context, i uint64) ([]byte, error) {
		return nil, wantErr
	}
	s := New(cache, 10, 4, 4, decode)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, status, err := s.GetFrame(context.Background(), 0)
		if status == StatusFailed {
			if !errors.Is(err, wantErr) {
				t.Fatalf("err = %v, want %v", err, wantErr)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("frame 0 never reported StatusFailed")
}

func TestGetFrameDebouncesFailedSlotRetries(t *testing.T) {
	t.Parallel()

	cache := framecache.New(16)
	var attempts atomic.Int32
	decode := func(ctx context.Context, i uint64) ([]byte, error) {
		attempts.Add(1)
		return nil, errors.New("always fails")
	}
	s := New(cache, 10, 4, 4, decode)

	// Drain the first failure synchronously.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, status, _ := s.GetFrame(context.Background(), 0)
		if status == StatusFailed {
			break
		}
		time.Sleep(time.Millisecond)
	}

	n1 := attempts.Load()
	// Immediate retries within the debounce window must not spawn new
	// decode attempts.
	for i := 0; i < 5; i++ {
		s.GetFrame(context.Background(), 0)
	}
	if n2 := attempts.Load(); n2 != n1 {
		t.Fatalf("attempts grew from %d to %d within debounce window", n1, n2)
	}
}

func TestGetFramePrefetchesWindowAhead(t *testing.T) {
	t.Parallel()

	cache := framecache.New(64)
	var decoded sync32
	decode := func(ctx context.Context, i uint64) ([]byte, error) {
		decoded.add(1)
		return []byte{byte(i)}, nil
	}
	s := New(cache, 100, 8, 8, decode)

	s.GetFrame(context.Background(), 0)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if decoded.load() >= 8 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := decoded.load(); got < 8 {
		t.Fatalf("decoded %d frames, want at least 8 (prefetch_window)", got)
	}
}

type sync32 struct {
	v atomic.Int32
}

func (s *sync32) add(n int32) { s.v.Add(n) }
func (s *sync32) load() int32 { return s.v.Load() }
