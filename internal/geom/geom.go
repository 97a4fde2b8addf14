// Package geom provides the integer point and rectangle types used by
// window layout, surface hit testing and popup positioning.
package geom

// Point represents a 2D integer coordinate or extent.
type Point struct {
	X, Y int32
}

// Pt creates a new Point.
func Pt(x, y int32) Point {
	return Point{X: x, Y: y}
}

// Add returns p + other.
func (p Point) Add(other Point) Point {
	return Point{p.X + other.X, p.Y + other.Y}
}

// Sub returns p - other.
func (p Point) Sub(other Point) Point {
	return Point{p.X - other.X, p.Y - other.Y}
}

// Div returns p / scalar using integer division.
func (p Point) Div(scalar int32) Point {
	return Point{p.X / scalar, p.Y / scalar}
}

// IsZero reports whether both components are zero.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Rect is an axis-aligned rectangle given by its top-left corner and size.
type Rect struct {
	Pos  Point
	Size Point
}

// Rct creates a new Rect.
func Rct(x, y, w, h int32) Rect {
	return Rect{Pos: Point{x, y}, Size: Point{w, h}}
}

// Contains reports whether pt lies inside r. Matches the pointer hit test
// convention: the left/top edges are exclusive, right/bottom inclusive.
func (r Rect) Contains(pt Point) bool {
	return pt.X > r.Pos.X && pt.Y > r.Pos.Y &&
		pt.X <= r.Pos.X+r.Size.X && pt.Y <= r.Pos.Y+r.Size.Y
}

// Translate returns r moved by delta.
func (r Rect) Translate(delta Point) Rect {
	return Rect{Pos: r.Pos.Add(delta), Size: r.Size}
}

// Clamp limits pt to the half-open range [0, size).
func Clamp(pt Point, size Point) Point {
	if pt.X < 0 {
		pt.X = 0
	}
	if pt.Y < 0 {
		pt.Y = 0
	}
	if pt.X > size.X-1 {
		pt.X = size.X - 1
	}
	if pt.Y > size.Y-1 {
		pt.Y = size.Y - 1
	}
	return pt
}
