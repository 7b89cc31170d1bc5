package coord

import (
	"math"
)

// Axes lists the axis letters a Point carries, in storage order.
const Axes = "XYZABC"

// Point is a position on up to six axes. Linear axes come first.
type Point struct{ X, Y, Z, A, B, C float64 }

func (p Point) Equal(b Point) bool {
	return p == b
}

func (p Point) Mul(val float64) Point {
	p.X *= val
	p.Y *= val
	p.Z *= val
	p.A *= val
	p.B *= val
	p.C *= val
	return p
}

func (p Point) Div(val float64) Point {
	return p.Mul(1 / val)
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	p.A += target.A
	p.B += target.B
	p.C += target.C
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	p.A -= target.A
	p.B -= target.B
	p.C -= target.C
	return p
}

// Axis returns the value for the axis letter (upper or lower case).
func (p Point) Axis(axis byte) (float64, bool) {
	switch axis {
	case 'X', 'x':
		return p.X, true
	case 'Y', 'y':
		return p.Y, true
	case 'Z', 'z':
		return p.Z, true
	case 'A', 'a':
		return p.A, true
	case 'B', 'b':
		return p.B, true
	case 'C', 'c':
		return p.C, true
	}
	return 0, false
}

// SetAxis returns a copy of p with the axis set to val. Unknown axes
// leave p unchanged.
func (p Point) SetAxis(axis byte, val float64) Point {
	switch axis {
	case 'X', 'x':
		p.X = val
	case 'Y', 'y':
		p.Y = val
	case 'Z', 'z':
		p.Z = val
	case 'A', 'a':
		p.A = val
	case 'B', 'b':
		p.B = val
	case 'C', 'c':
		p.C = val
	}
	return p
}

// Map applies fn to every axis value.
func (p Point) Map(fn func(float64) float64) Point {
	return Point{fn(p.X), fn(p.Y), fn(p.Z), fn(p.A), fn(p.B), fn(p.C)}
}

// DistanceXY will return the 2D distance to p from (x,y).
func (p Point) DistanceXY(x, y float64) float64 {
	return math.Sqrt(math.Pow(x-p.X, 2) + math.Pow(y-p.Y, 2))
}

// DistanceXYZ will return the linear distance between p and target.
func (p Point) DistanceXYZ(target Point) float64 {
	d := target.Sub(p)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}
