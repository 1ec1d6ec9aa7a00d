// Package detection turns raw backend detections into the typed landmark
// model the measurement engine consumes: confidence gating, class-id
// naming, corner validation and duplicate resolution.
package detection

import (
	"context"
	"strings"

	"github.com/menta2k/spine-analyzer/pkg/client"
	"github.com/menta2k/spine-analyzer/pkg/types"
)

// SimpleTestPrompt for testing whether the model can see the radiograph.
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt defines the raw detection contract for spine radiographs.
const DefaultPrompt = `You are a spine radiograph landmark locator.

Return JSON only:
{
  "landmarks": [
    {"key": "CR", "x": 0.0, "y": 0.0, "confidence": 0.0}
  ],
  "vertebrae": [
    {"cls_id": 0, "confidence": 0.0,
     "corners": [[0.0,0.0],[0.0,0.0],[0.0,0.0],[0.0,0.0]]}
  ]
}

HARD RULES
- All coordinates are pixels on the supplied image, x right, y down.
- landmarks: one entry per visible torso landmark. Keys: CR/CL (clavicle
  right/left), IR/IL (iliac crest right/left), SR/SL (sacrum right/left).
  Omit a landmark rather than guessing.
- vertebrae: one entry per visible vertebral body. cls_id: 0=C7,
  1..12=T1..T12, 13..17=L1..L5. corners are exactly four [x,y] pairs in
  top-left, top-right, bottom-left, bottom-right order; top is toward the
  head.
- confidence in [0,1]. Report low confidence honestly.
- If nothing is visible, return {"landmarks":[],"vertebrae":[]}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// torsoKeys are the recognized landmark keys; anything else is dropped.
var torsoKeys = map[string]bool{
	"CR": true, "CL": true, "IR": true, "IL": true, "SR": true, "SL": true,
}

// Detector runs landmark detection through a backend and builds the typed
// landmark model from the raw response.
type Detector struct {
	client client.LandmarkClient
	config Config
}

// Config holds the detection thresholds.
type Config struct {
	// MinLandmarkConfidence gates torso landmarks; below it the landmark
	// is treated as undetected.
	MinLandmarkConfidence float64
	// MinVertebraConfidence gates vertebra detections.
	MinVertebraConfidence float64
}

// DefaultConfig returns the default detection thresholds.
func DefaultConfig() Config {
	return Config{
		MinLandmarkConfidence: 0.3,
		MinVertebraConfidence: 0.3,
	}
}

// NewDetector creates a detector with default thresholds.
func NewDetector(client client.LandmarkClient) *Detector {
	return &Detector{client: client, config: DefaultConfig()}
}

// NewDetectorWithConfig creates a detector with custom thresholds.
func NewDetectorWithConfig(client client.LandmarkClient, config Config) *Detector {
	return &Detector{client: client, config: config}
}

// DetectRaw runs the model on a base64 radiograph and returns its raw
// detections. Callers that downscaled the image rescale the coordinates
// before Build.
func (d *Detector) DetectRaw(ctx context.Context, model, imageB64 string) (*types.RawDetection, error) {
	return d.client.DetectLandmarks(ctx, model, DefaultPrompt, imageB64)
}

// Detect runs the model on a base64 radiograph and returns the typed
// landmark model.
func (d *Detector) Detect(ctx context.Context, model, imageB64 string) (types.TorsoLandmarks, types.VertebraSet, error) {
	raw, err := d.DetectRaw(ctx, model, imageB64)
	if err != nil {
		return types.TorsoLandmarks{}, nil, err
	}
	torso, set := d.Build(raw)
	return torso, set, nil
}

// TestVision checks that the model can actually see the image.
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

// Build converts a raw detection into the typed landmark model.
// Low-confidence entries, unknown landmark keys and malformed corner
// lists are dropped silently; duplicate vertebra names keep the
// higher-confidence detection.
func (d *Detector) Build(raw *types.RawDetection) (types.TorsoLandmarks, types.VertebraSet) {
	var torso types.TorsoLandmarks
	for _, lm := range raw.Landmarks {
		key := strings.ToUpper(strings.TrimSpace(lm.Key))
		if !torsoKeys[key] || lm.Confidence < d.config.MinLandmarkConfidence {
			continue
		}
		entry := &types.Landmark{
			Point:      types.Point{X: lm.X, Y: lm.Y},
			Confidence: lm.Confidence,
		}
		switch key {
		case "CR":
			torso.CR = entry
		case "CL":
			torso.CL = entry
		case "IR":
			torso.IR = entry
		case "IL":
			torso.IL = entry
		case "SR":
			torso.SR = entry
		case "SL":
			torso.SL = entry
		}
	}

	set := types.VertebraSet{}
	for _, rv := range raw.Vertebrae {
		if rv.Confidence < d.config.MinVertebraConfidence || len(rv.Corners) != 4 {
			continue
		}
		set.Add(types.Vertebra{
			Name: types.VertebraNameForClass(rv.ClsID),
			Corners: types.NewVertebraCorners(
				corner(rv.Corners[0]), corner(rv.Corners[1]),
				corner(rv.Corners[2]), corner(rv.Corners[3]),
			),
			Confidence: rv.Confidence,
			ClassID:    rv.ClsID,
		})
	}
	return torso, set
}

func corner(xy [2]float64) types.Point {
	return types.Point{X: xy[0], Y: xy[1]}
}
