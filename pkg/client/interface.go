package client

import (
	"context"

	"github.com/menta2k/spine-analyzer/pkg/types"
)

// LandmarkClient is a backend that runs the landmark model on a
// radiograph and returns its raw detections. The model itself is opaque;
// implementations only transport.
type LandmarkClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	DetectLandmarks(ctx context.Context, model, prompt, imgB64 string) (*types.RawDetection, error)
}
