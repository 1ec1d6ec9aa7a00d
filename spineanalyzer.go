// Package spineanalyzer measures scoliosis parameters on spine
// radiographs from detected anatomical landmarks.
//
// The package combines an opaque landmark-detection backend (an external
// vision model reached over HTTP) with a pure geometric measurement
// engine that converts vertebra corners and torso landmarks into
// clinically meaningful parameters: Cobb angles for the thoracic,
// thoracolumbar and lumbar regions, clavicle/pelvic/sacral tilts, apical
// vertebral translation and trunk shift.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		spineanalyzer "github.com/menta2k/spine-analyzer"
//		"github.com/menta2k/spine-analyzer/pkg/llamacpp"
//	)
//
//	func main() {
//		sa := spineanalyzer.New()
//
//		backend, err := llamacpp.NewClient("http://localhost:8080")
//		if err != nil {
//			log.Fatal(err)
//		}
//		sa.SetBackend(backend, "openbmb/minicpm-v4.5")
//
//		img, err := sa.LoadImage("spine_ap.png")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		result, err := sa.AnalyzeRadiograph(context.Background(), img, "spine_ap")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		for _, m := range result.Measurements {
//			if m.Angle != nil {
//				fmt.Printf("%s: %.1f°\n", m.Type, *m.Angle)
//			} else {
//				fmt.Printf("%s\n", m.Type)
//			}
//		}
//	}
//
// The package consists of four main components:
//
// 1. Backends (pkg/ollama, pkg/llamacpp): transport radiographs to the
// landmark model and return its raw detections
// 2. Detection (pkg/detection): confidence gating, class-id naming and
// duplicate resolution of raw detections
// 3. Measure (pkg/measure): the pure measurement engine (geometry in
// pkg/geometry)
// 4. Processing (pkg/processing): radiograph I/O and overlay rendering
//
// The measurement engine is deterministic and stateless: identical
// detections always produce identical output, missing landmarks simply
// omit the dependent measurements, and calls are safe to run
// concurrently across requests.
package spineanalyzer

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/spine-analyzer/pkg/client"
	"github.com/menta2k/spine-analyzer/pkg/detection"
	"github.com/menta2k/spine-analyzer/pkg/measure"
	"github.com/menta2k/spine-analyzer/pkg/processing"
	"github.com/menta2k/spine-analyzer/pkg/types"
)

// Version of the spine analyzer library
const Version = "1.0.0"

// Default model-input preparation for the landmark backend.
const (
	defaultSendFormat  = "jpg"
	defaultSendMaxDim  = 1536
	defaultSendQuality = 85
)

// SpineAnalyzer provides a high-level interface for radiograph
// measurement.
type SpineAnalyzer struct {
	processor *processing.Processor
	engine    *measure.Engine
	detector  *detection.Detector
	model     string
}

// New creates a SpineAnalyzer with default configuration. A backend must
// be attached with SetBackend before AnalyzeRadiograph can run; the pure
// Measure path works without one.
func New() *SpineAnalyzer {
	return &SpineAnalyzer{
		processor: processing.NewProcessor(),
		engine:    measure.New(),
	}
}

// NewWithConfig creates a SpineAnalyzer with custom thresholds.
func NewWithConfig(measureConfig measure.Config) *SpineAnalyzer {
	return &SpineAnalyzer{
		processor: processing.NewProcessor(),
		engine:    measure.NewWithConfig(measureConfig),
	}
}

// SetBackend attaches a landmark backend and the model it should run.
func (sa *SpineAnalyzer) SetBackend(c client.LandmarkClient, model string) {
	sa.detector = detection.NewDetector(c)
	sa.model = model
}

// SetDetector attaches a fully configured detector.
func (sa *SpineAnalyzer) SetDetector(d *detection.Detector, model string) {
	sa.detector = d
	sa.model = model
}

// LoadImage loads a radiograph from a file path or URL.
func (sa *SpineAnalyzer) LoadImage(source string) (image.Image, error) {
	return sa.processor.LoadImageSmart(source)
}

// GetImageInfo returns basic information about a radiograph.
func (sa *SpineAnalyzer) GetImageInfo(img image.Image) processing.ImageInfo {
	return sa.processor.GetImageInfo(img)
}

// Measure runs the pure measurement engine over already-detected
// landmarks. It never fails: missing inputs shrink the result.
func (sa *SpineAnalyzer) Measure(torso types.TorsoLandmarks, set types.VertebraSet, imageID string, imageWidth, imageHeight int) types.AnnotationResult {
	return sa.engine.Analyze(torso, set, imageID, imageWidth, imageHeight)
}

// DetectLandmarks runs the landmark backend on a radiograph and returns
// the typed landmark model, with coordinates mapped back to the original
// image size.
func (sa *SpineAnalyzer) DetectLandmarks(ctx context.Context, img image.Image, model string) (types.TorsoLandmarks, types.VertebraSet, error) {
	if sa.detector == nil {
		return types.TorsoLandmarks{}, nil, fmt.Errorf("no landmark backend attached")
	}

	imgB64, err := sa.processor.PrepareImageForModel(img, defaultSendFormat, defaultSendMaxDim, defaultSendQuality)
	if err != nil {
		return types.TorsoLandmarks{}, nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	raw, err := sa.detector.DetectRaw(ctx, model, imgB64)
	if err != nil {
		return types.TorsoLandmarks{}, nil, fmt.Errorf("landmark detection failed: %w", err)
	}

	bounds := img.Bounds()
	sentW, sentH := sa.processor.ModelInputSize(bounds.Dx(), bounds.Dy(), defaultSendMaxDim)
	sa.processor.RescaleDetection(raw, sentW, sentH, bounds.Dx(), bounds.Dy())

	torso, set := sa.detector.Build(raw)
	return torso, set, nil
}

// AnalyzeRadiograph runs the full pipeline on one radiograph: landmark
// detection through the attached backend, then measurement.
func (sa *SpineAnalyzer) AnalyzeRadiograph(ctx context.Context, img image.Image, imageID string) (types.AnnotationResult, error) {
	torso, set, err := sa.DetectLandmarks(ctx, img, sa.model)
	if err != nil {
		return types.AnnotationResult{}, err
	}

	bounds := img.Bounds()
	return sa.Measure(torso, set, imageID, bounds.Dx(), bounds.Dy()), nil
}

// CreateOverlay renders the measurements onto a copy of the radiograph.
func (sa *SpineAnalyzer) CreateOverlay(img image.Image, result types.AnnotationResult) image.Image {
	return sa.processor.CreateMeasurementOverlay(img, result)
}

// SaveImage saves an image to a file.
func (sa *SpineAnalyzer) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	return sa.processor.SaveImage(img, path, format, quality, lossless)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
