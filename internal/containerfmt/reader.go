package containerfmt

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/alphastream/alphastream/internal/streamcrypto"
	"github.com/alphastream/alphastream/internal/transport"
)

// Reader opens an AlphaStream container (encrypted "ASVR" or plaintext
// "ASVP") and decodes individual frames on demand.
type Reader struct {
	src    transport.Source
	key    *streamcrypto.Key32 // nil for plaintext containers
	logger *slog.Logger

	offsets  []uint64 // len = frameCount+1, offsets[i] is the start of frame i
	sizes    []uint64 // len = frameCount
	bodyBase uint64
}

// OpenReader performs the reader's phase 1: it reads the header, decrypts
// it when key is non-nil, inflates the sizes table, and computes the
// inclusive prefix-sum offset array. Per-frame decode is lazy (see
// DecodeFrame) and does not happen here.
func OpenReader(ctx context.Context, src transport.Source, key *streamcrypto.Key32, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	header, err := src.ReadRange(ctx, 0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("containerfmt: read header: %w", err)
	}
	if len(header) != headerSize {
		return nil, ErrMalformedHeader
	}

	var headerKS *streamcrypto.Keystream
	if key != nil {
		headerKS, err = streamcrypto.NewKeystream(*key, streamcrypto.HeaderKeyID)
		if err != nil {
			return nil, fmt.Errorf("containerfmt: header keystream: %w", err)
		}
		header = append([]byte(nil), header...)
		headerKS.XOR(header)
	} else if string(header[0:4]) == magicPlain0 {
		logger.Debug("containerfmt: plaintext magic confirmed", "magic", string(header[0:8]))
	}

	compressedSizesLen := binary.LittleEndian.Uint32(header[12:16])

	sizesRegion, err := src.ReadRange(ctx, headerSize, uint64(compressedSizesLen))
	if err != nil {
		return nil, fmt.Errorf("containerfmt: read sizes table: %w", err)
	}
	if uint32(len(sizesRegion)) != compressedSizesLen {
		return nil, ErrMalformedSizes
	}
	if headerKS != nil {
		// Continue the same keystream used for the header: header and
		// sizes table are encrypted as one contiguous region under
		// key-id 0xFFFFFFFF.
		sizesRegion = append([]byte(nil), sizesRegion...)
		headerKS.XOR(sizesRegion)
	}

	sizesBytes, err := inflate(sizesRegion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSizes, err)
	}
	if len(sizesBytes)%8 != 0 {
		return nil, ErrMalformedSizes
	}

	frameCount := len(sizesBytes) / 8
	sizes := make([]uint64, frameCount)
	for i := 0; i < frameCount; i++ {
		sizes[i] = binary.LittleEndian.Uint64(sizesBytes[i*8 : i*8+8])
	}

	bodyBase := uint64(headerSize) + uint64(compressedSizesLen)
	offsets := make([]uint64, frameCount+1)
	offsets[0] = bodyBase
	for i := 0; i < frameCount; i++ {
		offsets[i+1] = offsets[i] + sizes[i]
	}

	logger.Info("containerfmt: opened container", "frames", frameCount, "encrypted", key != nil)

	return &Reader{
		src:      src,
		key:      key,
		logger:   logger,
		offsets:  offsets,
		sizes:    sizes,
		bodyBase: bodyBase,
	}, nil
}

// TotalFrames returns the container's frame count M.
func (r *Reader) TotalFrames() uint64 {
	return uint64(len(r.sizes))
}

// FrameOffset returns the byte offset of frame i, for offset-math tests.
func (r *Reader) FrameOffset(i uint64) (uint64, bool) {
	if i >= uint64(len(r.offsets)) {
		return 0, false
	}
	return r.offsets[i], true
}

// DecodeFrame implements the per-frame decode pipeline: read ciphertext,
// decrypt (if encrypted), validate the inflated length, parse channels.
// It is ReadFrameCipher followed by DecodePayload, for callers that don't
// need to acquire separate I/O and decode concurrency permits in between.
func (r *Reader) DecodeFrame(ctx context.Context, i uint64) (*Frame, error) {
	cipherBytes, err := r.ReadFrameCipher(ctx, i)
	if err != nil {
		return nil, err
	}
	return r.DecodePayload(cipherBytes, i)
}

// ReadFrameCipher performs the transport-bound phase of a frame decode:
// reading frame i's block and, if the container is encrypted, undoing its
// ChaCha20 keystream. The result is still zlib-compressed. Split out from
// DecodeFrame so a caller bounding I/O and CPU concurrency with separate
// permits (see runtime.Runtime) can release the I/O permit before
// acquiring the decode permit for DecodePayload.
func (r *Reader) ReadFrameCipher(ctx context.Context, i uint64) ([]byte, error) {
	if i >= uint64(len(r.sizes)) {
		return nil, ErrFrameIndex
	}

	cipherBytes, err := r.src.ReadRange(ctx, r.offsets[i], r.sizes[i])
	if err != nil {
		return nil, fmt.Errorf("containerfmt: read frame %d: %w", i, err)
	}
	if uint64(len(cipherBytes)) != r.sizes[i] {
		return nil, ErrMalformedFrame
	}

	if r.key != nil {
		// Decrypt into a copy: a source may return a view of memory it
		// still owns (MemorySource is zero-copy).
		cipherBytes = append([]byte(nil), cipherBytes...)
		if err := streamcrypto.XORKeystream(cipherBytes, *r.key, uint32(i)); err != nil {
			return nil, fmt.Errorf("containerfmt: decrypt frame %d: %w", i, err)
		}
	}
	return cipherBytes, nil
}

// DecodePayload inflates and parses a frame's decrypted block (as produced
// by ReadFrameCipher) into its channels. i is used only for error context.
func (r *Reader) DecodePayload(cipherBytes []byte, i uint64) (*Frame, error) {
	if len(cipherBytes) < 4 {
		return nil, ErrMalformedFrame
	}
	expectedLen := binary.LittleEndian.Uint32(cipherBytes[0:4])

	payload, err := inflate(cipherBytes[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: inflate frame %d: %v", ErrMalformedFrame, i, err)
	}
	if uint32(len(payload)) != expectedLen {
		return nil, fmt.Errorf("%w: frame %d length mismatch (got %d want %d)", ErrMalformedFrame, i, len(payload), expectedLen)
	}

	return parseFramePayload(payload)
}

func parseFramePayload(payload []byte) (*Frame, error) {
	if len(payload) < 4 {
		return nil, ErrMalformedFrame
	}
	channelCount := binary.LittleEndian.Uint32(payload[0:4])
	headerLen := 4 + 4*uint64(channelCount)
	if uint64(len(payload)) < headerLen {
		return nil, ErrMalformedFrame
	}

	sizes := make([]uint32, channelCount)
	var sum uint64
	for c := uint32(0); c < channelCount; c++ {
		off := 4 + 4*c
		sizes[c] = binary.LittleEndian.Uint32(payload[off : off+4])
		sum += uint64(sizes[c])
	}
	if headerLen+sum != uint64(len(payload)) {
		return nil, ErrMalformedFrame
	}

	channels := make([]Channel, channelCount)
	cursor := headerLen
	for c := uint32(0); c < channelCount; c++ {
		end := cursor + uint64(sizes[c])
		ch, err := decodeChannel(payload[cursor:end])
		if err != nil {
			return nil, err
		}
		channels[c] = ch
		cursor = end
	}
	return &Frame{Channels: channels}, nil
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return data, nil
}
