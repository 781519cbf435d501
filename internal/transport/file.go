package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/mmap"
)

// fileFallbackBufSize is the buffered-reader size used when the local file
// cannot be memory-mapped.
const fileFallbackBufSize = 128 * 1024

// FileSource reads an AlphaStream container from a local file, preferring a
// memory-mapped view and falling back to a buffered, seek-based reader when
// mapping the file fails (e.g. on filesystems that do not support mmap).
type FileSource struct {
	length uint64

	// Memory-mapped path. Non-nil when mapping succeeded.
	mr *mmap.ReaderAt

	// Fallback path: seek + buffered read, serialized by mu since
	// os.File.Seek followed by a Read is not itself atomic.
	mu sync.Mutex
	f  *os.File
	br *bufio.Reader

	cancelled atomic.Bool
}

// NewFileSource opens path, preferring mmap.
func NewFileSource(path string) (*FileSource, error) {
	if mr, err := mmap.Open(path); err == nil {
		return &FileSource{mr: mr, length: uint64(mr.Len())}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transport: open %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("transport: stat %q: %w", path, err)
	}
	return &FileSource{
		f:      f,
		br:     bufio.NewReaderSize(f, fileFallbackBufSize),
		length: uint64(info.Size()),
	}, nil
}

func (s *FileSource) Len(_ context.Context) (uint64, error) {
	return s.length, nil
}

func (s *FileSource) ReadRange(_ context.Context, offset, size uint64) ([]byte, error) {
	if s.cancelled.Load() {
		return nil, ErrCancelled
	}
	if offset > s.length {
		return nil, ErrOutOfBounds
	}
	end := offset + size
	if end > s.length {
		end = s.length
	}
	buf := make([]byte, end-offset)
	if len(buf) == 0 {
		return buf, nil
	}

	if s.mr != nil {
		n, err := s.mr.ReadAt(buf, int64(offset))
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("transport: mmap read: %w", err)
		}
		return buf[:n], nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled.Load() {
		return nil, ErrCancelled
	}
	if _, err := s.f.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("transport: seek: %w", err)
	}
	s.br.Reset(s.f)
	n, err := io.ReadFull(s.br, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	return buf[:n], nil
}

// Cancel marks the source cancelled; subsequent ReadRange calls return
// ErrCancelled. Cancellation is best-effort and does not interrupt a read
// already blocked in a syscall.
func (s *FileSource) Cancel() {
	s.cancelled.Store(true)
}

func (s *FileSource) Close() error {
	if s.mr != nil {
		return s.mr.Close()
	}
	return s.f.Close()
}
