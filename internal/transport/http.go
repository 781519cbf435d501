package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// HTTPOptions configures an HTTPSource. Zero values are replaced by the
// documented defaults in NewHTTPSource.
type HTTPOptions struct {
	ChunkSize           uint64        // default 1 MiB
	MaxConcurrentRanges int64         // default 4
	RetryCount          int           // default 3
	RetryBaseDelay      time.Duration // default 250ms
	RequestTimeout      time.Duration // default 10s
	Client              *http.Client  // default: pooled client with TLS defaults
}

func (o *HTTPOptions) setDefaults() {
	if o.ChunkSize == 0 {
		o.ChunkSize = 1 << 20
	}
	if o.MaxConcurrentRanges == 0 {
		o.MaxConcurrentRanges = 4
	}
	if o.RetryCount == 0 {
		o.RetryCount = 3
	}
	if o.RetryBaseDelay == 0 {
		o.RetryBaseDelay = 250 * time.Millisecond
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.Client == nil {
		o.Client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
}

// HTTPSource reads an AlphaStream container over HTTPS using Range
// requests. A single logical ReadRange larger than ChunkSize is split into
// aligned sub-ranges fetched concurrently, bounded by MaxConcurrentRanges.
type HTTPSource struct {
	url  string
	opts HTTPOptions
	sem  *semaphore.Weighted

	lengthOnce sync.Once
	length     uint64
	lengthErr  error

	cancelled atomic.Bool
}

// NewHTTPSource creates a Source backed by an HTTPS resource at url.
func NewHTTPSource(url string, opts HTTPOptions) *HTTPSource {
	opts.setDefaults()
	return &HTTPSource{
		url:  url,
		opts: opts,
		sem:  semaphore.NewWeighted(opts.MaxConcurrentRanges),
	}
}

// Len discovers the resource length with a single-byte range request,
// caching the result for subsequent calls.
func (h *HTTPSource) Len(ctx context.Context) (uint64, error) {
	h.lengthOnce.Do(func() {
		h.length, h.lengthErr = h.probeLength(ctx)
	})
	return h.length, h.lengthErr
}

func (h *HTTPSource) probeLength(ctx context.Context) (uint64, error) {
	resp, err := h.doRangeRequest(ctx, 0, 0)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if cr := resp.Header.Get("Content-Range"); cr != "" {
		var total uint64
		if _, scanErr := fmt.Sscanf(cr, "bytes 0-0/%d", &total); scanErr == nil {
			return total, nil
		}
	}
	return uint64(resp.ContentLength), nil
}

func (h *HTTPSource) ReadRange(ctx context.Context, offset, size uint64) ([]byte, error) {
	if h.cancelled.Load() {
		return nil, ErrCancelled
	}
	total, err := h.Len(ctx)
	if err != nil {
		return nil, err
	}
	if offset > total {
		return nil, ErrOutOfBounds
	}
	end := offset + size
	if end > total {
		end = total
	}
	if end == offset {
		return []byte{}, nil
	}

	type chunk struct {
		start, end uint64 // [start, end), inclusive end handled below
	}
	var chunks []chunk
	for start := offset; start < end; start += h.opts.ChunkSize {
		stop := start + h.opts.ChunkSize
		if stop > end {
			stop = end
		}
		chunks = append(chunks, chunk{start, stop})
	}

	out := make([]byte, end-offset)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range chunks {
		c := c
		if err := h.sem.Acquire(gctx, 1); err != nil {
			return nil, fmt.Errorf("transport: acquire range permit: %w", err)
		}
		g.Go(func() error {
			defer h.sem.Release(1)
			data, err := h.fetchRangeWithRetry(gctx, c.start, c.end-1)
			if err != nil {
				return err
			}
			copy(out[c.start-offset:c.end-offset], data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *HTTPSource) fetchRangeWithRetry(ctx context.Context, start, endInclusive uint64) ([]byte, error) {
	delay := h.opts.RetryBaseDelay
	var lastErr error
	for attempt := 0; attempt <= h.opts.RetryCount; attempt++ {
		if h.cancelled.Load() {
			return nil, ErrCancelled
		}
		resp, err := h.doRangeRequest(ctx, start, endInclusive)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				return nil, err
			}
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
				return nil, ErrNotFound
			case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
				return nil, ErrOutOfBounds
			case resp.StatusCode >= 500:
				lastErr = fmt.Errorf("transport: server error %d", resp.StatusCode)
			case resp.StatusCode == http.StatusPartialContent || resp.StatusCode == http.StatusOK:
				if readErr != nil {
					lastErr = fmt.Errorf("transport: read body: %w", readErr)
					break
				}
				return body, nil
			default:
				return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
			}
		}

		if attempt == h.opts.RetryCount {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrCancelled
		}
		delay *= 2
	}
	return nil, fmt.Errorf("%w: %v", ErrTransport, lastErr)
}

func (h *HTTPSource) doRangeRequest(ctx context.Context, start, endInclusive uint64) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, endInclusive))

	resp, err := h.opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, ErrTimeout
	}
	return resp, nil
}

func isRetryable(err error) bool {
	return err == ErrTimeout || err == ErrTransport
}

func (h *HTTPSource) Cancel() {
	h.cancelled.Store(true)
}

func (h *HTTPSource) Close() error {
	h.opts.Client.CloseIdleConnections()
	return nil
}
