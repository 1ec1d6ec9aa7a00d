package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/spine-analyzer/internal/config"
	"github.com/menta2k/spine-analyzer/internal/utils"
	"github.com/menta2k/spine-analyzer/pkg/client"
	"github.com/menta2k/spine-analyzer/pkg/detection"
	"github.com/menta2k/spine-analyzer/pkg/llamacpp"
	"github.com/menta2k/spine-analyzer/pkg/measure"
	"github.com/menta2k/spine-analyzer/pkg/ollama"
	"github.com/menta2k/spine-analyzer/pkg/processing"
	"github.com/menta2k/spine-analyzer/pkg/types"
)

func main() {
	var in, outDir, model, url string
	var backend, configPath string
	var sendFmt string
	var sendSize int
	var sendQ int
	var minLandmarkConf, minVertebraConf float64
	var minCobb, endMargin float64
	var debug bool

	// Overlay output format
	var dbgext string
	var dbgquality int
	var dbglossless bool

	flag.StringVar(&in, "in", "", "input radiograph path, URL, or directory (jpg/png/webp)")
	flag.StringVar(&outDir, "out", "out", "output directory")
	flag.StringVar(&model, "model", "openbmb/minicpm-v4.5", "model name")
	flag.StringVar(&backend, "backend", "llamacpp", "backend to use: ollama or llamacpp")
	flag.StringVar(&url, "url", "", "server URL (defaults: ollama=http://localhost:11435/api/chat, llamacpp=http://localhost:8080)")
	flag.StringVar(&configPath, "config", "", "config file (default: "+config.GetConfigPath()+" if present)")

	flag.StringVar(&sendFmt, "sendfmt", "jpg", "format sent to the model: jpg|png")
	flag.IntVar(&sendSize, "sendsize", 1536, "max long side sent to the model (px), 0=original")
	flag.IntVar(&sendQ, "sendq", 85, "JPEG quality for image sent to the model (1-100)")

	flag.Float64Var(&minLandmarkConf, "minlm", 0.3, "minimum torso landmark confidence (0-1)")
	flag.Float64Var(&minVertebraConf, "minvb", 0.3, "minimum vertebra confidence (0-1)")
	flag.Float64Var(&minCobb, "mincobb", 10.0, "minimum reported Cobb angle (degrees)")
	flag.Float64Var(&endMargin, "endmargin", 10.0, "vertical margin around the apex for end-vertebra search (px)")

	flag.BoolVar(&debug, "debug", false, "write measurement overlay image")
	flag.StringVar(&dbgext, "dbgext", "png", "overlay format: png|jpg|webp")
	flag.IntVar(&dbgquality, "dbgquality", 92, "overlay quality (for jpg/webp)")
	flag.BoolVar(&dbglossless, "dbglossless", false, "overlay WebP lossless mode")

	flag.Parse()
	if in == "" {
		log.Fatalf("usage: %s -in spine_ap.png|URL|dir [-backend ollama|llamacpp] [-url server_url] [-out outdir] [-debug]", filepath.Base(os.Args[0]))
	}

	// Config file supplies defaults; explicit flags win.
	if configPath == "" {
		if p := config.GetConfigPath(); utils.FileExists(p) {
			configPath = p
		}
	}
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid config %s: %v", configPath, err)
		}
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if !set["minlm"] {
			minLandmarkConf = cfg.Detection.MinLandmarkConfidence
		}
		if !set["minvb"] {
			minVertebraConf = cfg.Detection.MinVertebraConfidence
		}
		if !set["mincobb"] {
			minCobb = cfg.Measure.MinCobbAngle
		}
		if !set["endmargin"] {
			endMargin = cfg.Measure.EndSearchMargin
		}
		if !set["backend"] {
			backend = cfg.Backend.Backend
		}
		if !set["url"] && cfg.Backend.URL != "" {
			url = cfg.Backend.URL
		}
		if !set["model"] && cfg.Backend.Model != "" {
			model = cfg.Backend.Model
		}
		if !set["out"] && cfg.Output.OutputDir != "" {
			outDir = cfg.Output.OutputDir
		}
		if !set["dbgext"] && cfg.Output.OverlayFormat != "" {
			dbgext = cfg.Output.OverlayFormat
		}
		if !set["dbgquality"] && cfg.Output.OverlayQuality != 0 {
			dbgquality = cfg.Output.OverlayQuality
		}
	}

	if err := utils.EnsureDir(outDir); err != nil {
		log.Fatal(err)
	}

	// Initialize components
	processor := processing.NewProcessor()

	// Create appropriate client based on backend
	var landmarkClient client.LandmarkClient
	var err error

	switch backend {
	case "ollama":
		if url == "" {
			url = "http://localhost:11435/api/chat"
		}
		landmarkClient, err = ollama.NewClient(url)
		if err != nil {
			log.Fatalf("Failed to create Ollama client: %v", err)
		}
	case "llamacpp":
		if url == "" {
			url = "http://localhost:8080"
		}
		landmarkClient, err = llamacpp.NewClient(url)
		if err != nil {
			log.Fatalf("Failed to create llama.cpp client: %v", err)
		}
	default:
		log.Fatalf("Unknown backend: %s (use 'ollama' or 'llamacpp')\n", backend)
	}

	detector := detection.NewDetectorWithConfig(landmarkClient, detection.Config{
		MinLandmarkConfidence: minLandmarkConf,
		MinVertebraConfidence: minVertebraConf,
	})
	engine := measure.NewWithConfig(measure.Config{
		MinCobbAngle:    minCobb,
		EndSearchMargin: endMargin,
	})

	// Collect inputs: a directory expands to every radiograph under it
	inputs := []string{in}
	if info, err := os.Stat(in); err == nil && info.IsDir() {
		inputs, err = utils.ListImageFiles(in)
		if err != nil {
			log.Fatal(err)
		}
		if len(inputs) == 0 {
			log.Fatalf("no radiograph files found under %s", in)
		}
		log.Printf("processing %d radiographs from %s", len(inputs), in)
	}

	opts := overlayOptions{
		enabled:  debug,
		format:   dbgext,
		quality:  dbgquality,
		lossless: dbglossless,
	}
	failures := 0
	for _, input := range inputs {
		if err := analyzeOne(processor, detector, engine, input, model, sendFmt, sendSize, sendQ, outDir, opts); err != nil {
			log.Printf("%s: %v", input, err)
			failures++
		}
	}
	if failures > 0 {
		log.Fatalf("%d of %d radiographs failed", failures, len(inputs))
	}
}

type overlayOptions struct {
	enabled  bool
	format   string
	quality  int
	lossless bool
}

func analyzeOne(processor *processing.Processor, detector *detection.Detector, engine *measure.Engine,
	in, model, sendFmt string, sendSize, sendQ int, outDir string, opts overlayOptions) error {

	// Load input radiograph (from file or URL)
	img, err := processor.LoadImageSmart(in)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	imgW, imgH := bounds.Dx(), bounds.Dy()

	// Prepare image for model
	imgB64, err := processor.PrepareImageForModel(img, sendFmt, sendSize, sendQ)
	if err != nil {
		return err
	}

	// Detect landmarks
	raw, err := detector.DetectRaw(context.Background(), model, imgB64)
	if err != nil {
		return err
	}

	// Map coordinates back to the original image size
	sentW, sentH := processor.ModelInputSize(imgW, imgH, sendSize)
	processor.RescaleDetection(raw, sentW, sentH, imgW, imgH)

	torso, set := detector.Build(raw)
	log.Printf("detected %d vertebrae, torso landmarks: CR=%v CL=%v IR=%v IL=%v SR=%v SL=%v",
		len(set), torso.CR != nil, torso.CL != nil, torso.IR != nil,
		torso.IL != nil, torso.SR != nil, torso.SL != nil)

	// Measure
	imageID := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	result := engine.Analyze(torso, set, imageID, imgW, imgH)

	for _, m := range result.Measurements {
		switch {
		case m.Angle != nil && m.UpperVertebra != "":
			log.Printf("%s: %.1f° (%s-%s, apex %s)", m.Type, *m.Angle,
				m.UpperVertebra, m.LowerVertebra, m.ApexVertebra)
		case m.Angle != nil:
			log.Printf("%s: %.1f°", m.Type, *m.Angle)
		default:
			log.Printf("%s", m.Type)
		}
	}

	// Write measurement overlay (if debug enabled)
	if opts.enabled {
		if err := writeOverlay(processor, img, result, in, outDir, opts); err != nil {
			log.Printf("overlay save failed: %v", err)
		}
	}

	// Save measurement JSON
	js, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("%s_measurements.json", imageID))
	if err := os.WriteFile(outPath, js, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s", outPath)
	return nil
}

func writeOverlay(processor *processing.Processor, img image.Image, result types.AnnotationResult,
	in, outDir string, opts overlayOptions) error {

	overlay := processor.CreateMeasurementOverlay(img, result)
	format := strings.ToLower(opts.format)
	dbgPath := utils.GenerateOutputFilename(in, outDir, "", "_overlay", format)
	if err := processor.SaveImage(overlay, dbgPath, format, opts.quality, opts.lossless); err != nil {
		return err
	}
	log.Printf("wrote %s", dbgPath)
	return nil
}
