// Package measure turns detected spinal landmarks into clinical scoliosis
// parameters: Cobb angles per curve region, coronal tilts, apical
// vertebral translation and trunk shift.
//
// Everything here is pure and deterministic. Missing landmarks or
// vertebrae silently omit the dependent measurements; no code path
// returns an error. Identical inputs always produce identical output.
package measure

import (
	"github.com/menta2k/spine-analyzer/pkg/types"
)

// Measurement type labels, in emission order.
const (
	TypeT1Tilt = "T1 Tilt"
	TypeCA     = "CA"
	TypePelvic = "Pelvic"
	TypeSacral = "Sacral"
	TypeAVT    = "AVT"
	TypeTS     = "TS"
)

// Engine computes measurements from one radiograph's detections.
type Engine struct {
	config Config
}

// Config holds the measurement thresholds.
type Config struct {
	// MinCobbAngle is the minimum curve magnitude (degrees) considered
	// clinically significant. Curves at or below it are not reported.
	MinCobbAngle float64
	// EndSearchMargin is the vertical distance (pixels) a vertebra's
	// center must clear the apex by to qualify as an end-vertebra
	// candidate.
	EndSearchMargin float64
}

// DefaultConfig returns the clinically standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinCobbAngle:    10.0,
		EndSearchMargin: 10.0,
	}
}

// New creates an Engine with the default thresholds.
func New() *Engine {
	return &Engine{config: DefaultConfig()}
}

// NewWithConfig creates an Engine with custom thresholds.
func NewWithConfig(config Config) *Engine {
	return &Engine{config: config}
}

// Analyze produces the full annotation for one radiograph using the
// default thresholds.
func Analyze(torso types.TorsoLandmarks, set types.VertebraSet, imageID string, imageWidth, imageHeight int) types.AnnotationResult {
	return New().Analyze(torso, set, imageID, imageWidth, imageHeight)
}

// Analyze produces the full annotation for one radiograph. Emission
// order is fixed: T1 Tilt, the three regional Cobb angles, CA, Pelvic,
// Sacral, AVT, TS. Measurements whose inputs are missing are omitted,
// never errored.
func (e *Engine) Analyze(torso types.TorsoLandmarks, set types.VertebraSet, imageID string, imageWidth, imageHeight int) types.AnnotationResult {
	measurements := []types.Measurement{}

	if m, ok := e.t1Tilt(set); ok {
		measurements = append(measurements, m)
	}
	for _, region := range CurveRegions() {
		if m, ok := e.regionCobb(region, set); ok {
			measurements = append(measurements, m)
		}
	}
	measurements = append(measurements, e.coronalBalance(torso, set)...)

	return types.AnnotationResult{
		ImageID:      imageID,
		ImageWidth:   imageWidth,
		ImageHeight:  imageHeight,
		Measurements: measurements,
	}
}

// t1Tilt emits the T1 upper-endplate line when T1 was detected. Unlike
// the paired-landmark tilts it carries no angle field; upstream viewers
// derive it from the two points.
func (e *Engine) t1Tilt(set types.VertebraSet) (types.Measurement, bool) {
	t1, ok := set["T1"]
	if !ok {
		return types.Measurement{}, false
	}
	return types.Measurement{
		Type:   TypeT1Tilt,
		Points: []types.Point{t1.Corners.TopLeft, t1.Corners.TopRight},
	}, true
}
