// Package geometry provides the angle math shared by all spinal
// measurements. Angles are in degrees; coordinates are image-space pixels
// with y growing down.
package geometry

import (
	"math"

	"github.com/menta2k/spine-analyzer/pkg/types"
)

// Angle returns the direction of the line from p1 to p2 in degrees,
// in the range (-180, 180]. Coincident points yield 0.
func Angle(p1, p2 types.Point) float64 {
	return math.Atan2(p2.Y-p1.Y, p2.X-p1.X) * 180 / math.Pi
}

// TiltAngle returns the tilt of the line joining a left/right landmark
// pair, folded into [-90, 90] so near-horizontal lines report a small
// signed angle. Positive means the left point sits higher (smaller y)
// than the right one.
func TiltAngle(left, right types.Point) float64 {
	a := Angle(left, right)
	if a > 90 {
		a -= 180
	} else if a < -90 {
		a += 180
	}
	return a
}

// CobbAngle measures the angle between the upper end vertebra's caudal
// endplate (uL, uR) and the lower end vertebra's cranial endplate (lL,
// lR). The sign is positive (left-convex) when the upper edge's raw
// angle exceeds the lower edge's. Degenerate edges are not validated:
// coincident points simply contribute a 0° edge.
func CobbAngle(uL, uR, lL, lR types.Point) float64 {
	return Angle(uL, uR) - Angle(lL, lR)
}
