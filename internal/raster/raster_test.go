package raster

import (
	"testing"

	"github.com/alphastream/alphastream/internal/containerfmt"
)

func square(x0, y0, size int32) containerfmt.Channel {
	return containerfmt.Channel{Points: []containerfmt.Point{
		{X: x0, Y: y0},
		{X: x0 + size, Y: y0},
		{X: x0 + size, Y: y0 + size},
		{X: x0, Y: y0 + size},
		{X: x0, Y: y0},
	}}
}

func popcount(mask []byte) int {
	n := 0
	for _, b := range mask {
		if b != 0 {
			n++
		}
	}
	return n
}

func TestRasterizeAxisAlignedSquare(t *testing.T) {
	t.Parallel()

	// The fill is inclusive of both intercept columns, so the 10-wide
	// square covers columns 0..10 on each of its 10 scanlines.
	mask := Rasterize([]containerfmt.Channel{square(0, 0, 10)}, 16, 16)
	if got, want := popcount(mask), 11*10; got != want {
		t.Errorf("population = %d, want %d", got, want)
	}
}

func TestRasterizeConvexHexagon(t *testing.T) {
	t.Parallel()

	hex := containerfmt.Channel{Points: []containerfmt.Point{
		{X: 10, Y: 0}, {X: 20, Y: 5}, {X: 20, Y: 15},
		{X: 10, Y: 20}, {X: 0, Y: 15}, {X: 0, Y: 5}, {X: 10, Y: 0},
	}}
	mask := Rasterize([]containerfmt.Channel{hex}, 24, 24)
	if popcount(mask) == 0 {
		t.Errorf("expected nonzero fill for convex hexagon")
	}
}

func TestRasterizeDisjointRectangles(t *testing.T) {
	t.Parallel()

	mask := Rasterize([]containerfmt.Channel{square(0, 0, 4), square(10, 10, 4)}, 20, 20)
	if got, want := popcount(mask), 2*5*4; got != want {
		t.Errorf("population = %d, want %d", got, want)
	}
}

func TestRasterizeOutOfCanvasClipped(t *testing.T) {
	t.Parallel()

	mask := Rasterize([]containerfmt.Channel{square(100, 100, 10)}, 16, 16)
	if got := popcount(mask); got != 0 {
		t.Errorf("population = %d, want 0 for fully out-of-canvas shape", got)
	}
}

func TestRasterizeSelfIntersectingStar(t *testing.T) {
	t.Parallel()

	star := containerfmt.Channel{Points: []containerfmt.Point{
		{X: 10, Y: 0}, {X: 6, Y: 20}, {X: 20, Y: 7},
		{X: 0, Y: 7}, {X: 14, Y: 20}, {X: 10, Y: 0},
	}}
	mask := Rasterize([]containerfmt.Channel{star}, 24, 24)
	if popcount(mask) == 0 {
		t.Errorf("expected nonzero fill for self-intersecting star under even-odd rule")
	}
}

func TestResizeNNIdentity(t *testing.T) {
	t.Parallel()

	src := []byte{1, 2, 3, 4}
	dst := ResizeNN(src, 2, 2, 2, 2)
	if &dst[0] != &src[0] {
		t.Errorf("expected identity (no copy) when sizes match")
	}
}

func TestResizeNNDownsample(t *testing.T) {
	t.Parallel()

	// 4x4 checkerboard-ish source, downsample to 2x2.
	src := make([]byte, 16)
	for i := range src {
		if i%2 == 0 {
			src[i] = 255
		}
	}
	dst := ResizeNN(src, 4, 4, 2, 2)
	if len(dst) != 4 {
		t.Fatalf("len(dst) = %d, want 4", len(dst))
	}
	// x'=floor(x*4/2)=2x, y'=floor(y*4/2)=2y, so dst samples src[2y*4+2x]
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			want := src[(2*y)*4+2*x]
			if got := dst[y*2+x]; got != want {
				t.Errorf("dst[%d,%d] = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestTriangleStripFanTriangulation(t *testing.T) {
	t.Parallel()

	ch := square(0, 0, 10)
	strip := TriangleStrip(ch)
	// square has 5 points with last==first (closed); dedup -> 4 unique
	// points -> (4-2) = 2 triangles -> 6 vertices -> 12 floats.
	if len(strip) != 12 {
		t.Fatalf("len(strip) = %d, want 12", len(strip))
	}
}

func TestTriangleStripDegenerate(t *testing.T) {
	t.Parallel()

	ch := containerfmt.Channel{Points: []containerfmt.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}}
	if strip := TriangleStrip(ch); strip != nil {
		t.Errorf("expected nil strip for < 3 points, got %v", strip)
	}
}
