package measure

import (
	"math"

	"github.com/menta2k/spine-analyzer/pkg/geometry"
	"github.com/menta2k/spine-analyzer/pkg/types"
)

// coronalBalance emits the paired-landmark tilts and the CSVL-relative
// offsets, in fixed order: CA, Pelvic, Sacral, AVT, TS. Each is skipped
// when its landmarks are missing.
//
// Argument order for the tilts follows the upstream convention of passing
// the R/L name suffix as the left/right argument (CA: CR,CL — Pelvic:
// IL,IR — Sacral: SL,SR). The suffixes are not verified against true
// image-space sides; TODO: confirm the sign convention with clinical
// validation before changing it.
func (e *Engine) coronalBalance(torso types.TorsoLandmarks, set types.VertebraSet) []types.Measurement {
	var out []types.Measurement

	if torso.CR != nil && torso.CL != nil {
		angle := geometry.TiltAngle(torso.CR.Point, torso.CL.Point)
		out = append(out, types.Measurement{
			Type:   TypeCA,
			Points: []types.Point{torso.CR.Point, torso.CL.Point},
			Angle:  &angle,
		})
	}
	if torso.IR != nil && torso.IL != nil {
		angle := geometry.TiltAngle(torso.IL.Point, torso.IR.Point)
		out = append(out, types.Measurement{
			Type:   TypePelvic,
			Points: []types.Point{torso.IR.Point, torso.IL.Point},
			Angle:  &angle,
		})
	}
	if torso.SR != nil && torso.SL != nil {
		angle := geometry.TiltAngle(torso.SL.Point, torso.SR.Point)
		out = append(out, types.Measurement{
			Type:   TypeSacral,
			Points: []types.Point{torso.SR.Point, torso.SL.Point},
			Angle:  &angle,
		})
	}

	// CSVL: vertical reference through the sacral midpoint. Prerequisite
	// for AVT and TS, not a measurement of its own.
	if torso.SR == nil || torso.SL == nil {
		return out
	}
	csvlX := (torso.SR.X + torso.SL.X) / 2

	if apex, ok := csvlApex(set, csvlX); ok {
		out = append(out, types.Measurement{
			Type: TypeAVT,
			Points: []types.Point{
				apex.Corners.Center,
				{X: csvlX, Y: apex.Corners.Center.Y},
			},
			ApexVertebra: apex.Name,
		})
	}
	if c7, ok := set["C7"]; ok {
		out = append(out, types.Measurement{
			Type: TypeTS,
			Points: []types.Point{
				c7.Corners.Center,
				{X: csvlX, Y: c7.Corners.Center.Y},
			},
		})
	}
	return out
}

// csvlApex finds the vertebra with the largest lateral offset from the
// CSVL across the whole set, walking in canonical order so ties resolve
// cranio-caudally.
func csvlApex(set types.VertebraSet, csvlX float64) (types.Vertebra, bool) {
	var apex types.Vertebra
	found := false
	best := 0.0
	for _, v := range set.Ordered() {
		off := math.Abs(v.Corners.Center.X - csvlX)
		if !found || off > best {
			apex, best, found = v, off, true
		}
	}
	return apex, found
}
