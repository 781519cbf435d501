// Package raster rasterizes decoded polylines into R8 coverage masks and
// resizes them with nearest-neighbour sampling. Both operations are pure
// functions of their inputs and safe to call concurrently.
package raster

import (
	"sort"

	"github.com/alphastream/alphastream/internal/containerfmt"
)

// edge is one polyline segment, excluded from scanline intercepts when
// horizontal but still a valid (degenerate) segment otherwise.
type edge struct {
	x0, y0, x1, y1 int32
}

// Rasterize fills width*height R8 mask bytes (255 = opaque, 0 = transparent)
// from channels using the even-odd scanline rule. For each scanline y, the
// edges whose min(y0,y1) <= y < max(y0,y1) contribute an x-intercept;
// intercepts are sorted and pixels between each (even, odd) pair are
// filled, inclusive of both intercepts, clipped to [0, width-1].
func Rasterize(channels []containerfmt.Channel, width, height int) []byte {
	mask := make([]byte, width*height)
	if width <= 0 || height <= 0 {
		return mask
	}

	var edges []edge
	for _, ch := range channels {
		pts := ch.Points
		for i := 0; i+1 < len(pts); i++ {
			edges = append(edges, edge{pts[i].X, pts[i].Y, pts[i+1].X, pts[i+1].Y})
		}
	}
	if len(edges) == 0 {
		return mask
	}

	var xs []int32
	for y := 0; y < height; y++ {
		xs = xs[:0]
		for _, e := range edges {
			if e.y0 == e.y1 {
				continue // horizontal edges don't contribute intercepts
			}
			ymin, ymax := e.y0, e.y1
			if ymin > ymax {
				ymin, ymax = ymax, ymin
			}
			yy := int32(y)
			if yy < ymin || yy >= ymax {
				continue
			}
			x := intercept(e, yy)
			xs = append(xs, x)
		}
		if len(xs) < 2 {
			continue
		}
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })

		row := mask[y*width : (y+1)*width]
		for i := 0; i+1 < len(xs); i += 2 {
			start, end := clamp(xs[i], width), clamp(xs[i+1], width)
			if end < start {
				continue
			}
			for x := start; x <= end; x++ {
				row[x] = 255
			}
		}
	}
	return mask
}

// intercept computes the x-intercept of edge e at the centre of scanline y
// (y + 0.5), using 64-bit fixed-point arithmetic to avoid floating point:
// x = x0 + (2*(y-y0)+1)*(x1-x0) / (2*(y1-y0)), floor-divided.
func intercept(e edge, y int32) int32 {
	if e.x0 == e.x1 {
		return e.x0
	}
	num := int64(2*(y-e.y0)+1) * int64(e.x1-e.x0)
	den := 2 * int64(e.y1-e.y0)
	return e.x0 + int32(floorDiv(num, den))
}

// floorDiv is integer division rounding toward negative infinity, unlike
// Go's native "/" which truncates toward zero.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func clamp(x int32, width int) int32 {
	if x < 0 {
		return 0
	}
	if x > int32(width-1) {
		return int32(width - 1)
	}
	return x
}

// ResizeNN resizes src (sw*sh bytes) to dw*dh bytes using nearest-neighbour
// sampling with floor mapping: x' = floor(x*sw/dw), y' = floor(y*sh/dh).
// When sizes match, the source is returned unchanged (no copy required at
// the contract level).
func ResizeNN(src []byte, sw, sh, dw, dh int) []byte {
	if sw == dw && sh == dh {
		return src
	}
	dst := make([]byte, dw*dh)
	for y := 0; y < dh; y++ {
		sy := y * sh / dh
		srcRow := src[sy*sw : (sy+1)*sw]
		dstRow := dst[y*dw : (y+1)*dw]
		for x := 0; x < dw; x++ {
			sx := x * sw / dw
			dstRow[x] = srcRow[sx]
		}
	}
	return dst
}
