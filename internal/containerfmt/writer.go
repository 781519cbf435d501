package containerfmt

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"

	"github.com/alphastream/alphastream/internal/streamcrypto"
)

// Writer builds an AlphaStream container in two phases: AddFrame buffers
// decoded frames, Finish compresses, sizes, and (optionally) encrypts them
// into a single byte slice the Reader can open.
type Writer struct {
	encrypted bool
	key       *streamcrypto.Key32
	frames    [][]Channel
}

// NewWriter creates a Writer. When key is non-nil the container is written
// in the encrypted ("ASVR") variant; otherwise it is written plaintext
// ("ASVP") with the magic stamped into the header.
func NewWriter(key *streamcrypto.Key32) *Writer {
	return &Writer{encrypted: key != nil, key: key}
}

// AddFrame buffers one frame's channels for inclusion at Finish.
func (w *Writer) AddFrame(channels []Channel) {
	w.frames = append(w.frames, channels)
}

// Finish compresses, sizes, and (if configured) encrypts the buffered
// frames, returning a complete container byte slice.
func (w *Writer) Finish() ([]byte, error) {
	frameBlocks := make([][]byte, len(w.frames))
	sizes := make([]uint64, len(w.frames))

	for i, channels := range w.frames {
		payload, err := encodeFramePayload(channels)
		if err != nil {
			return nil, fmt.Errorf("containerfmt: encode frame %d: %w", i, err)
		}
		compressed, err := deflate(payload)
		if err != nil {
			return nil, fmt.Errorf("containerfmt: compress frame %d: %w", i, err)
		}

		block := make([]byte, 4+len(compressed))
		binary.LittleEndian.PutUint32(block[0:4], uint32(len(payload)))
		copy(block[4:], compressed)

		if w.encrypted {
			if err := streamcrypto.XORKeystream(block, *w.key, uint32(i)); err != nil {
				return nil, fmt.Errorf("containerfmt: encrypt frame %d: %w", i, err)
			}
		}

		frameBlocks[i] = block
		sizes[i] = uint64(len(block))
	}

	sizesBytes := make([]byte, 8*len(sizes))
	for i, s := range sizes {
		binary.LittleEndian.PutUint64(sizesBytes[i*8:i*8+8], s)
	}
	compressedSizes, err := deflate(sizesBytes)
	if err != nil {
		return nil, fmt.Errorf("containerfmt: compress sizes table: %w", err)
	}

	header := make([]byte, headerSize)
	if !w.encrypted {
		copy(header[0:4], magicPlain0)
		copy(header[4:8], magicPlain1)
		binary.LittleEndian.PutUint32(header[8:12], uint32(len(w.frames)))
	}
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(compressedSizes)))

	if w.encrypted {
		ks, err := streamcrypto.NewKeystream(*w.key, streamcrypto.HeaderKeyID)
		if err != nil {
			return nil, fmt.Errorf("containerfmt: header keystream: %w", err)
		}
		ks.XOR(header)
		ks.XOR(compressedSizes)
	}

	var out bytes.Buffer
	out.Write(header)
	out.Write(compressedSizes)
	for _, block := range frameBlocks {
		out.Write(block)
	}
	return out.Bytes(), nil
}

func encodeFramePayload(channels []Channel) ([]byte, error) {
	encoded := make([][]byte, len(channels))
	for i, c := range channels {
		b, err := encodeChannel(c)
		if err != nil {
			return nil, err
		}
		encoded[i] = b
	}

	headerLen := 4 + 4*len(channels)
	total := headerLen
	for _, b := range encoded {
		total += len(b)
	}

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(channels)))
	for i, b := range encoded {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], uint32(len(b)))
	}
	cursor := headerLen
	for _, b := range encoded {
		copy(buf[cursor:], b)
		cursor += len(b)
	}
	return buf, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
