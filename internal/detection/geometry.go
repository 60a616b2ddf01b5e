package detection

import "math"

// ApproxPolyDP simplifies a closed contour with the Douglas-Peucker
// algorithm, dropping every vertex closer than epsilon to the simplified
// outline.
//
// The closed curve is split into two open chains at the point farthest
// from the first point; each chain is simplified independently and the
// results are joined. Returned vertices keep the contour's orientation.
func ApproxPolyDP(c Contour, epsilon float64) Contour {
	if len(c) < 3 {
		out := make(Contour, len(c))
		copy(out, c)
		return out
	}

	far := 0
	var farDist float64
	for i, p := range c {
		if d := dist(c[0], p); d > farDist {
			far, farDist = i, d
		}
	}
	if far == 0 {
		return Contour{c[0]}
	}

	// Chain one runs c[0]..c[far]; chain two runs c[far]..c[n-1],c[0].
	first := douglasPeucker(c[:far+1], epsilon)
	second := make(Contour, 0, len(c)-far+1)
	second = append(second, c[far:]...)
	second = append(second, c[0])
	tail := douglasPeucker(second, epsilon)

	out := make(Contour, 0, len(first)+len(tail))
	out = append(out, first...)
	out = append(out, tail[1:len(tail)-1]...)
	return out
}

// douglasPeucker simplifies an open chain, always keeping both endpoints.
func douglasPeucker(chain Contour, epsilon float64) Contour {
	n := len(chain)
	if n <= 2 {
		out := make(Contour, n)
		copy(out, chain)
		return out
	}

	keep := make([]bool, n)
	keep[0], keep[n-1] = true, true

	type span struct{ lo, hi int }
	stack := []span{{0, n - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.hi-s.lo < 2 {
			continue
		}

		idx := -1
		maxDist := -1.0
		for i := s.lo + 1; i < s.hi; i++ {
			if d := segmentDistance(chain[i], chain[s.lo], chain[s.hi]); d > maxDist {
				idx, maxDist = i, d
			}
		}
		if maxDist > epsilon {
			keep[idx] = true
			stack = append(stack, span{s.lo, idx}, span{idx, s.hi})
		}
	}

	out := make(Contour, 0, n)
	for i, k := range keep {
		if k {
			out = append(out, chain[i])
		}
	}
	return out
}

// segmentDistance returns the distance from p to the line through a and b,
// or to a itself when a and b coincide.
func segmentDistance(p, a, b Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return dist(p, a)
	}
	return math.Abs(dy*float64(p.X-a.X)-dx*float64(p.Y-a.Y)) / length
}

func dist(a, b Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// IsConvex reports whether the polygon turns the same way at every vertex.
// Polygons with fewer than three vertices, or with collinear vertices, are
// not convex.
func IsConvex(poly Contour) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	sign := 0
	for i := range poly {
		a, b, c := poly[i], poly[(i+1)%n], poly[(i+2)%n]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		switch {
		case cross == 0:
			return false
		case sign == 0 && cross > 0:
			sign = 1
		case sign == 0:
			sign = -1
		case (cross > 0) != (sign > 0):
			return false
		}
	}
	return true
}
