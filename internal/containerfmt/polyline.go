package containerfmt

import "encoding/binary"

// decodeChannel parses one channel payload: an absolute base point as two
// 16-bit unsigned little-endian values, followed by as many signed 8-bit
// (Δx, Δy) delta pairs as remain in the record. Deltas accumulate into
// 32-bit integers so a long polyline cannot wrap the way a 16-bit
// accumulator would, even though the base point itself is 16-bit.
func decodeChannel(b []byte) (Channel, error) {
	if len(b) < 4 {
		return Channel{}, ErrMalformedFrame
	}
	x := int32(binary.LittleEndian.Uint16(b[0:2]))
	y := int32(binary.LittleEndian.Uint16(b[2:4]))

	points := []Point{{X: x, Y: y}}
	for i := 4; i+1 < len(b); i += 2 {
		dx := int32(int8(b[i]))
		dy := int32(int8(b[i+1]))
		x += dx
		y += dy
		points = append(points, Point{X: x, Y: y})
	}
	return Channel{Points: points}, nil
}

// encodeChannel is the writer-side inverse of decodeChannel: it emits the
// base point followed by int8 deltas. A step between consecutive points
// outside [-128, 127] on either axis is not clamped: it returns
// ErrMalformedFrame.
func encodeChannel(c Channel) ([]byte, error) {
	if len(c.Points) == 0 {
		return nil, ErrMalformedFrame
	}
	buf := make([]byte, 4+2*(len(c.Points)-1))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(c.Points[0].X))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(c.Points[0].Y))

	prev := c.Points[0]
	for i, p := range c.Points[1:] {
		dx := p.X - prev.X
		dy := p.Y - prev.Y
		if dx < -128 || dx > 127 || dy < -128 || dy > 127 {
			return nil, ErrMalformedFrame
		}
		buf[4+2*i] = byte(int8(dx))
		buf[4+2*i+1] = byte(int8(dy))
		prev = p
	}
	return buf, nil
}
