package alphastream

import "time"

// Config is the data-level description of one container to open: where it
// lives, which key derives its decryption (if any), and how the Processor
// should schedule access to it. Builder holds the runtime-shape options
// (worker counts, pool sizes) that apply across every Processor it builds;
// Config is per-source.
type Config struct {
	// Source is where the container bytes come from.
	Source Source

	// ResourceName overrides the terminal path segment of Source as the
	// key-derivation salt component. Required for FromBuffer sources if
	// the container is encrypted; derived automatically for FromURL and
	// FromPath otherwise.
	ResourceName string

	// SceneID, Version feed key derivation alongside ResourceName.
	// Leave Version empty to open the container as plaintext.
	SceneID uint32
	Version string

	// Width, Height are the native decode resolution: the pixel
	// dimensions the Rasterizer fills before any GetFrame-time resize.
	Width, Height uint32

	// StartFrame seeds the scheduler's play-head before the first
	// GetFrame call, so the initial prefetch window starts at it
	// instead of frame 0.
	StartFrame uint64

	// L0BufferLength overrides the builder's cache-capacity default for
	// this Processor; 0 uses the Builder's configured value.
	L0BufferLength uint32
	// L1BufferLength overrides the builder's prefetch-window default for
	// this Processor; 0 uses the Builder's configured value.
	L1BufferLength uint32

	// InitTimeout bounds Build: opening the source and decoding its
	// header and sizes table. Zero uses a 4s default.
	InitTimeout time.Duration
	// DataTimeout overrides the Builder's per-request read timeout
	// (WithTransportTimeouts) for this Processor's HTTP source only.
	// Zero leaves the Builder's configured value in effect.
	DataTimeout time.Duration
}

const defaultInitTimeout = 4 * time.Second

func (c Config) withDefaults() Config {
	if c.InitTimeout == 0 {
		c.InitTimeout = defaultInitTimeout
	}
	if c.ResourceName == "" {
		c.ResourceName = c.Source.baseName()
	}
	return c
}
