package measure

import (
	"math"

	"github.com/menta2k/spine-analyzer/pkg/geometry"
	"github.com/menta2k/spine-analyzer/pkg/types"
)

// CurveRegion is one spinal segment analyzed for a lateral curve. Regions
// overlap on purpose: the same curve may be reported under more than one
// region type and consumers filter by the type label.
type CurveRegion struct {
	Name    string
	Members []string // cranio-caudal
}

// CurveRegions returns the analyzed regions in emission order.
func CurveRegions() []CurveRegion {
	return []CurveRegion{
		{Name: "Thoracic", Members: []string{
			"T2", "T3", "T4", "T5", "T6", "T7", "T8", "T9", "T10", "T11", "T12",
		}},
		{Name: "Thoracolumbar", Members: []string{
			"T2", "T3", "T4", "T5", "T6", "T7", "T8", "T9", "T10", "T11", "T12", "L1",
		}},
		{Name: "Lumbar", Members: []string{
			"L1", "L2", "L3", "L4",
		}},
	}
}

// regionCobb runs the per-region curve analysis: find the apex (maximum
// lateral displacement from the region midline), pick the most-tilted
// vertebrae above and below it as end vertebrae, and measure the Cobb
// angle between the upper vertebra's caudal endplate and the lower
// vertebra's cranial endplate. Curves at or below MinCobbAngle, and
// regions where no distinct end pair exists, produce nothing.
func (e *Engine) regionCobb(region CurveRegion, set types.VertebraSet) (types.Measurement, bool) {
	members := make([]types.Vertebra, 0, len(region.Members))
	for _, name := range region.Members {
		if v, ok := set[name]; ok {
			members = append(members, v)
		}
	}
	if len(members) < 2 {
		return types.Measurement{}, false
	}

	midlineX := 0.0
	for _, v := range members {
		midlineX += v.Corners.Center.X
	}
	midlineX /= float64(len(members))

	// Apex: strictly greater displacement wins, so ties resolve to the
	// most cranial member.
	apex := members[0]
	apexOffset := math.Abs(apex.Corners.Center.X - midlineX)
	for _, v := range members[1:] {
		if off := math.Abs(v.Corners.Center.X - midlineX); off > apexOffset {
			apex, apexOffset = v, off
		}
	}
	apexY := apex.Corners.Center.Y

	upper, hasUpper := apex, false
	lower, hasLower := apex, false
	var upperTilt, lowerTilt float64
	for _, v := range members {
		tilt := geometry.Angle(v.Corners.TopLeft, v.Corners.TopRight)
		if v.Corners.Center.Y < apexY-e.config.EndSearchMargin {
			if !hasUpper || tilt > upperTilt {
				upper, upperTilt, hasUpper = v, tilt, true
			}
		}
		if v.Corners.Center.Y > apexY+e.config.EndSearchMargin {
			if !hasLower || tilt < lowerTilt {
				lower, lowerTilt, hasLower = v, tilt, true
			}
		}
	}
	if upper.Name == lower.Name {
		return types.Measurement{}, false
	}

	angle := geometry.CobbAngle(
		upper.Corners.BottomLeft, upper.Corners.BottomRight,
		lower.Corners.TopLeft, lower.Corners.TopRight,
	)
	if math.Abs(angle) <= e.config.MinCobbAngle {
		return types.Measurement{}, false
	}

	return types.Measurement{
		Type: "Cobb-" + region.Name,
		Points: []types.Point{
			upper.Corners.BottomLeft, upper.Corners.BottomRight,
			lower.Corners.TopLeft, lower.Corners.TopRight,
		},
		Angle:         &angle,
		UpperVertebra: upper.Name,
		LowerVertebra: lower.Name,
		ApexVertebra:  apex.Name,
	}, true
}
