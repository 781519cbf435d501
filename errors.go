package alphastream

// ErrorCode is the foreign-facing error taxonomy reported by LastError.
// Internal packages never construct one directly; the Processor maps its
// internal sentinel errors to a code at the boundary.
type ErrorCode int

const (
	// ErrNone means no error is recorded.
	ErrNone ErrorCode = iota
	// ErrNotReady means a requested slot had not become Ready within the
	// scheduler's time-box; recoverable by retrying the same frame.
	ErrNotReady
	// ErrTimeout means a transport operation exceeded its deadline.
	ErrTimeout
	// ErrDecode means the container or a frame block was malformed;
	// not recoverable for that frame.
	ErrDecode
	// ErrTransport means a connectivity or bounds failure at the
	// transport layer.
	ErrTransport
	// ErrOutOfBounds means a frame index was outside [0, TotalFrames()).
	ErrOutOfBounds
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "None"
	case ErrNotReady:
		return "NotReady"
	case ErrTimeout:
		return "Timeout"
	case ErrDecode:
		return "Decode"
	case ErrTransport:
		return "Transport"
	case ErrOutOfBounds:
		return "OutOfBounds"
	default:
		return "Unknown"
	}
}

// ErrorRecord is the per-instance last-error state exposed by
// Processor.LastError. It is never cleared by a successful call; callers
// clear it explicitly with Processor.ClearError.
type ErrorRecord struct {
	Code    ErrorCode
	Message string
}
