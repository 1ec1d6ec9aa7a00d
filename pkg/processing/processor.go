package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/spine-analyzer/pkg/types"
)

// Processor handles radiograph loading, model preparation, saving and
// overlay rendering.
type Processor struct{}

// NewProcessor creates a new radiograph processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// ImageInfo contains basic radiograph metadata.
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
}

// GetImageInfo returns basic information about a radiograph.
func (p *Processor) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	return ImageInfo{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
	}
}

// ValidateImage rejects radiographs too small for the landmark model to
// place vertebra corners on.
func (p *Processor) ValidateImage(img image.Image, minSize int) error {
	bounds := img.Bounds()
	if bounds.Dx() < minSize || bounds.Dy() < minSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), minSize)
	}
	return nil
}

// LoadImageFromURL downloads and loads a radiograph from a URL.
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest("GET", imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "Spine-Analyzer/1.0 (+https://github.com/menta2k/spine-analyzer)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %v", err)
	}

	return p.decodeImageFromBytes(imageData)
}

// LoadImage loads a radiograph from a file path with WebP support.
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	low := strings.ToLower(path)
	if strings.HasSuffix(low, ".webp") || strings.Contains(low, ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
		if _, err := f.Seek(0, 0); err == nil {
			if img, _, err := image.Decode(f); err == nil {
				return img, nil
			}
		}
	} else {
		if _, err := f.Seek(0, 0); err == nil {
			if img, _, err := image.Decode(f); err == nil {
				return img, nil
			}
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// LoadImageSmart loads a radiograph from either a file path or URL.
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// decodeImageFromBytes decodes an image from byte data with WebP support.
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	reader := bytes.NewReader(data)
	if img, _, err := image.Decode(reader); err == nil {
		return img, nil
	}

	reader = bytes.NewReader(data)
	if img, err := webp.Decode(reader); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// PrepareImageForModel converts a radiograph to base64 for the landmark
// model, optionally downscaling the long side to maxDim first. Callers
// that downscale must rescale the returned coordinates themselves.
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ModelInputSize returns the dimensions PrepareImageForModel sends for a
// radiograph of the given size.
func (p *Processor) ModelInputSize(width, height, maxDim int) (int, int) {
	if maxDim <= 0 || (width <= maxDim && height <= maxDim) {
		return width, height
	}
	if width >= height {
		return maxDim, height * maxDim / width
	}
	return width * maxDim / height, maxDim
}

// RescaleDetection maps raw detection coordinates from the model-input
// size back to the original radiograph size, in place.
func (p *Processor) RescaleDetection(raw *types.RawDetection, fromW, fromH, toW, toH int) {
	if raw == nil || fromW <= 0 || fromH <= 0 || (fromW == toW && fromH == toH) {
		return
	}
	sx := float64(toW) / float64(fromW)
	sy := float64(toH) / float64(fromH)
	for i := range raw.Landmarks {
		raw.Landmarks[i].X *= sx
		raw.Landmarks[i].Y *= sy
	}
	for i := range raw.Vertebrae {
		for j := range raw.Vertebrae[i].Corners {
			raw.Vertebrae[i].Corners[j][0] *= sx
			raw.Vertebrae[i].Corners[j][1] *= sy
		}
	}
}

// SaveImage saves an image to a file with the specified format and quality.
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// Overlay colors per measurement group.
var (
	cobbColor   = color.NRGBA{0, 255, 0, 255}   // Cobb endplate lines
	tiltColor   = color.NRGBA{255, 204, 0, 255} // paired-landmark tilts, T1 tilt
	offsetColor = color.NRGBA{255, 0, 0, 255}   // AVT/TS offsets
	csvlColor   = color.NRGBA{0, 170, 255, 255} // CSVL reference
)

// CreateMeasurementOverlay renders the measurements onto a copy of the
// radiograph for clinical review: endplate lines for Cobb angles, tilt
// lines for the paired landmarks, offset lines plus the CSVL reference
// for AVT/TS, and a crosshair at every measurement point.
func (p *Processor) CreateMeasurementOverlay(img image.Image, result types.AnnotationResult) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side
	cross := int(math.Max(4, 0.01*float64(minInt(w, h))))   // ~1% of min side

	for _, m := range result.Measurements {
		c := overlayColor(m.Type)
		switch m.Type {
		case "AVT", "TS":
			if len(m.Points) == 2 {
				drawSegment(nrgba, m.Points[0], m.Points[1], c, stroke)
				// Second point lies on the CSVL; mark the reference line.
				drawVLine(nrgba, int(m.Points[1].X+0.5), 0, h, csvlColor)
			}
		default:
			// Cobb measurements carry two endplate edges; tilts carry one.
			for i := 0; i+1 < len(m.Points); i += 2 {
				drawSegment(nrgba, m.Points[i], m.Points[i+1], c, stroke)
			}
		}
		for _, pt := range m.Points {
			drawCross(nrgba, pt, cross, c)
		}
	}

	return nrgba
}

func overlayColor(measurementType string) color.NRGBA {
	switch {
	case strings.HasPrefix(measurementType, "Cobb-"):
		return cobbColor
	case measurementType == "AVT" || measurementType == "TS":
		return offsetColor
	default:
		return tiltColor
	}
}

// Helper functions
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawCross(img *image.NRGBA, pt types.Point, size int, c color.NRGBA) {
	px := int(pt.X + 0.5)
	py := int(pt.Y + 0.5)
	drawHLine(img, py, px-size, px+size, c)
	drawVLine(img, px, py-size, py+size, c)
}

// drawSegment draws an arbitrary line segment by stepping along its
// longer axis, thickened perpendicular to it.
func drawSegment(img *image.NRGBA, a, b types.Point, c color.NRGBA, stroke int) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	steps := int(math.Max(math.Abs(dx), math.Abs(dy))) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(a.X + t*dx + 0.5)
		y := int(a.Y + t*dy + 0.5)
		for s := 0; s < stroke; s++ {
			if math.Abs(dx) >= math.Abs(dy) {
				setPixel(img, x, y+s, c)
			} else {
				setPixel(img, x+s, y, c)
			}
		}
	}
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() || y < 0 || y >= img.Bounds().Dy() {
		return
	}
	i := y*img.Stride + x*4
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
