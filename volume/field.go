package volume

import (
	"fmt"
	"math"
)

// Field is a ground truth density over world space.
type Field func(p [3]float64) float64

// Sphere is a solid ball with a soft edge of the given width.
func Sphere(center [3]float64, radius, edge float64) Field {
	if radius <= 0 || edge <= 0 {
		panic("sphere radius and edge must be positive")
	}
	return func(p [3]float64) float64 {
		d := dist(p, center) - radius
		return 1 / (1 + math.Exp(d/edge))
	}
}

// Shell is a hollow sphere of the given thickness.
func Shell(center [3]float64, radius, thickness float64) Field {
	if radius <= 0 || thickness <= 0 {
		panic("shell radius and thickness must be positive")
	}
	return func(p [3]float64) float64 {
		d := (dist(p, center) - radius) / thickness
		return math.Exp(-d * d)
	}
}

// Sum adds fields together.
func Sum(fields ...Field) Field {
	return func(p [3]float64) float64 {
		total := 0.0
		for _, f := range fields {
			total += f(p)
		}
		return total
	}
}

// Named fields for configuration.
const (
	FieldSphere = "sphere"
	FieldShell  = "shell"
	FieldPair   = "pair"
)

// NewField builds a named field inside the unit cube.
func NewField(name string) (Field, error) {
	switch name {
	case FieldSphere, "":
		return Sphere([3]float64{0.5, 0.5, 0.5}, 0.3, 0.01), nil
	case FieldShell:
		return Shell([3]float64{0.5, 0.5, 0.5}, 0.35, 0.03), nil
	case FieldPair:
		return Sum(
			Sphere([3]float64{0.3, 0.3, 0.5}, 0.15, 0.01),
			Sphere([3]float64{0.7, 0.7, 0.5}, 0.1, 0.005),
		), nil
	default:
		return nil, fmt.Errorf("unknown field %q", name)
	}
}

func dist(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
