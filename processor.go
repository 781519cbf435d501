package alphastream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alphastream/alphastream/internal/containerfmt"
	"github.com/alphastream/alphastream/internal/raster"
	intruntime "github.com/alphastream/alphastream/internal/runtime"
	"github.com/alphastream/alphastream/internal/scheduler"
	"github.com/alphastream/alphastream/internal/transport"
)

// MaskView is a rasterized R8 alpha mask at a caller-requested resolution.
// Data has exactly Width*Height bytes, row-major, 255 = fully opaque.
type MaskView struct {
	Data          []byte
	Width, Height uint32
}

// Processor holds one open container's runtime, format reader, frame
// cache, and per-instance error state. Build it with Builder.Build; a
// failed Build returns no Processor, so every live Processor is usable.
type Processor struct {
	src    transport.Source
	reader *containerfmt.Reader
	rt     *intruntime.Runtime
	sched  *scheduler.Scheduler
	width  uint32
	height uint32
	logger *slog.Logger

	errMu   sync.Mutex
	lastErr ErrorRecord

	closed atomic.Bool
}

// GetFrame decodes frame i, resized to w x h, waiting up to the
// scheduler's internal time-box for it to become available. ok is false
// when the frame was not ready in time, is out of bounds, or failed to
// decode; LastError explains why.
func (p *Processor) GetFrame(ctx context.Context, i uint64, w, h uint32) (*MaskView, bool) {
	if p.closed.Load() {
		p.setError(ErrTransport, "processor is closed")
		return nil, false
	}

	mask, status, err := p.sched.GetFrame(ctx, i)
	switch status {
	case scheduler.StatusReady:
		resized := raster.ResizeNN(mask, int(p.width), int(p.height), int(w), int(h))
		return &MaskView{Data: resized, Width: w, Height: h}, true
	case scheduler.StatusNotReady:
		p.setError(ErrNotReady, "frame not ready within scheduling budget")
		return nil, false
	case scheduler.StatusOutOfBounds:
		p.setError(ErrOutOfBounds, fmt.Sprintf("frame index %d out of bounds", i))
		return nil, false
	case scheduler.StatusFailed:
		p.setError(codeForDecodeError(err), err.Error())
		return nil, false
	default:
		p.setError(ErrDecode, "unknown scheduler status")
		return nil, false
	}
}

// GetTriangleStrip decodes frame i directly (bypassing the frame cache,
// since triangle strips are not cached) and fan-triangulates every
// channel's polyline, concatenating their vertices.
func (p *Processor) GetTriangleStrip(ctx context.Context, i uint64) ([]float32, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("alphastream: processor is closed")
	}
	if i >= p.reader.TotalFrames() {
		p.setError(ErrOutOfBounds, fmt.Sprintf("frame index %d out of bounds", i))
		return nil, ErrOutOfBoundsError
	}

	frame, err := p.reader.DecodeFrame(ctx, i)
	if err != nil {
		p.setError(codeForDecodeError(err), err.Error())
		return nil, err
	}

	var out []float32
	for _, ch := range frame.Channels {
		out = append(out, raster.TriangleStrip(ch)...)
	}
	return out, nil
}

// TotalFrames returns the container's frame count, or 0 if it failed to
// open (Build would have already returned an error in that case, so this
// is mostly useful for a defensive caller holding onto a reference).
func (p *Processor) TotalFrames() uint64 {
	return p.reader.TotalFrames()
}

// FrameSize returns the native decode resolution, prior to any GetFrame
// resize.
func (p *Processor) FrameSize() (w, h uint32) {
	return p.width, p.height
}

// LastError returns the most recently recorded error. It is not cleared
// by a successful call; use ClearError.
func (p *Processor) LastError() ErrorRecord {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.lastErr
}

// ClearError resets LastError to {ErrNone, ""}.
func (p *Processor) ClearError() {
	p.errMu.Lock()
	p.lastErr = ErrorRecord{}
	p.errMu.Unlock()
}

// Close cancels outstanding transport reads, invalidates the frame cache
// (cancelling every in-flight decode task) and joins them, then tears
// down the runtime and closes the transport. It blocks until every
// decode task this Processor ever spawned has returned, so no task can
// call back into the cache or logger after Close returns. It is safe to
// call more than once; subsequent calls are no-ops.
func (p *Processor) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.src.Cancel()
	p.sched.Close()
	rtErr := p.rt.Close()
	srcErr := p.src.Close()
	p.logger.Info("alphastream: processor closed")
	if rtErr != nil {
		return rtErr
	}
	return srcErr
}

func (p *Processor) setError(code ErrorCode, msg string) {
	p.errMu.Lock()
	p.lastErr = ErrorRecord{Code: code, Message: msg}
	p.errMu.Unlock()
}

// ErrOutOfBoundsError is the sentinel GetTriangleStrip returns for an
// out-of-range frame index, mirroring the internal transport/containerfmt
// sentinel-error convention at the public boundary.
var ErrOutOfBoundsError = errors.New("alphastream: frame index out of bounds")

// codeForDecodeError classifies an error surfaced from the scheduler or
// the format reader into the foreign-facing taxonomy.
func codeForDecodeError(err error) ErrorCode {
	switch {
	case err == nil:
		return ErrNone
	case errors.Is(err, transport.ErrTimeout):
		return ErrTimeout
	case errors.Is(err, transport.ErrNotFound),
		errors.Is(err, transport.ErrOutOfBounds),
		errors.Is(err, transport.ErrCancelled),
		errors.Is(err, transport.ErrTransport):
		return ErrTransport
	default:
		return ErrDecode
	}
}

// newDecodeFunc builds the scheduler.DecodeFunc that bridges the format
// reader and rasterizer, acquiring the runtime's I/O, decode and raster
// permits around the read (ReadFrameCipher), decode (DecodePayload) and
// rasterize phases respectively. The I/O permit is a coarser cap across all
// decode tasks in flight, on top of the transport's own range-request
// fan-out (HTTPSource.sem); each permit is released before the next is
// acquired, so the decode and raster pools never block on a slow read.
func newDecodeFunc(reader *containerfmt.Reader, rt *intruntime.Runtime, width, height uint32) scheduler.DecodeFunc {
	return func(ctx context.Context, i uint64) ([]byte, error) {
		if err := rt.IOSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		cipherBytes, err := reader.ReadFrameCipher(ctx, i)
		rt.IOSem.Release(1)
		if err != nil {
			return nil, err
		}

		if err := rt.DecodeSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		frame, err := reader.DecodePayload(cipherBytes, i)
		rt.DecodeSem.Release(1)
		if err != nil {
			return nil, err
		}

		if err := rt.RasterSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		mask := raster.Rasterize(frame.Channels, int(width), int(height))
		rt.RasterSem.Release(1)
		return mask, nil
	}
}
