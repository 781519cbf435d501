package raster

import "github.com/alphastream/alphastream/internal/containerfmt"

// TriangleStrip fan-triangulates a single channel's points into interleaved
// (x, y) float32 vertex pairs: v0,v1,v2, v0,v2,v3, ..., v0,v(n-2),v(n-1).
// This backs the Processor facade's optional triangle-strip output; the
// upstream format only specifies its shape contract ([]float32 of x,y
// pairs), not a tessellation algorithm, so fan triangulation is used as a
// simple, deterministic choice for convex and star-shaped polylines.
func TriangleStrip(ch containerfmt.Channel) []float32 {
	points := ch.Points
	if len(points) > 1 && points[0] == points[len(points)-1] {
		points = points[:len(points)-1]
	}
	if len(points) < 3 {
		return nil
	}

	out := make([]float32, 0, (len(points)-2)*6)
	for i := 1; i+1 < len(points); i++ {
		for _, p := range [3]containerfmt.Point{points[0], points[i], points[i+1]} {
			out = append(out, float32(p.X), float32(p.Y))
		}
	}
	return out
}
