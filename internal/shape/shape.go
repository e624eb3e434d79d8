package shape

import (
	"math"
)

// Kind of drawn primitive
type Kind string

const (
	KindFreehand  Kind = "freehand"
	KindRectangle Kind = "rectangle"
	KindEllipse   Kind = "ellipse"
)

func (k Kind) Valid() bool {
	switch k {
	case KindFreehand, KindRectangle, KindEllipse:
		return true
	}
	return false
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Style is what the toolbar contributes to a new shape
type Style struct {
	Color       string
	StrokeWidth float64
	Erase       bool
}

// Shape is one drawn primitive. Geometry fields are interpreted per Kind:
// freehand uses Points, rectangle uses X/Y/Width/Height, ellipse uses the
// X/Y anchor plus CenterX/CenterY/Radius.
type Shape struct {
	ID          string  `json:"id"`
	Kind        Kind    `json:"kind"`
	Erase       bool    `json:"erase,omitempty"`
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"strokeWidth"`
	Points      []Point `json:"points,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
	CenterX     float64 `json:"centerX,omitempty"`
	CenterY     float64 `json:"centerY,omitempty"`
	Radius      float64 `json:"radius,omitempty"`
}

// Create builds a new shape anchored at origin using the package ID source.
func Create(kind Kind, origin Point, style Style) Shape {
	return defaultSource.Create(kind, origin, style)
}

// Extend recomputes geometry for the pointer position p. Freehand appends one
// point; rectangle and ellipse are constant time.
func Extend(s Shape, p Point) Shape {
	switch s.Kind {
	case KindFreehand:
		s.Points = append(s.Points, p)
	case KindRectangle:
		s.Width = p.X - s.X
		s.Height = p.Y - s.Y
	case KindEllipse:
		dx := p.X - s.X
		dy := p.Y - s.Y
		r := math.Max(math.Abs(dx), math.Abs(dy)) / 2
		s.Radius = r
		s.CenterX = s.X + signed(r, dx)
		s.CenterY = s.Y + signed(r, dy)
	}
	return s
}

// Translate moves a shape by (dx, dy) without changing its extent.
func Translate(s Shape, dx, dy float64) Shape {
	switch s.Kind {
	case KindFreehand:
		moved := make([]Point, len(s.Points))
		for i, p := range s.Points {
			moved[i] = Point{X: p.X + dx, Y: p.Y + dy}
		}
		s.Points = moved
	case KindRectangle:
		s.X += dx
		s.Y += dy
	case KindEllipse:
		s.X += dx
		s.Y += dy
		s.CenterX += dx
		s.CenterY += dy
	}
	return s
}

func (s Shape) clone() Shape {
	if s.Points != nil {
		s.Points = append([]Point(nil), s.Points...)
	}
	return s
}

func signed(r, d float64) float64 {
	if d >= 0 {
		return r
	}
	return -r
}
