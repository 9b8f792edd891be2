// Command segdist runs instance segmentation with monocular distance
// estimation on an image, a directory of frames, or as an HTTP service.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/swdee/go-segdist"
	"github.com/swdee/go-segdist/distance"
	"github.com/swdee/go-segdist/pipeline"
	"github.com/swdee/go-segdist/render"
	"gocv.io/x/gocv"
)

func main() {

	configFile := flag.String("c", "", "YAML configuration file")
	modelFile := flag.String("m", "", "ONNX YOLOv8 segmentation model file")
	labelFile := flag.String("l", "", "Text file containing model labels, COCO labels are used when empty")
	libFile := flag.String("lib", "", "Path to the onnxruntime shared library")
	threads := flag.Int("t", 0, "Number of inference threads, 0 uses all cores")
	imgFile := flag.String("i", "../data/street.jpg", "Image file to run detection on")
	saveFile := flag.String("o", "../data/street-out.jpg", "The output JPG file with detection markers")
	maskFile := flag.String("mask", "", "Optional PNG file to dump the combined segmentation mask to")
	renderFormat := flag.String("r", "outline", "The rendering format used for instance segmentation [outline|mask]")
	pitch := flag.Float64("pitch", 0, "Device pitch in degrees")
	roll := flag.Float64("roll", 0, "Device roll in degrees")
	frameDir := flag.String("d", "", "Directory of frames to stream through a worker")
	fps := flag.Int("fps", 10, "Frame rate frames are streamed at from the directory")
	cores := flag.String("cores", "", "CPU cores to pin the frame worker to, eg: 4,5,6,7")
	serve := flag.Bool("serve", false, "Run the HTTP service")
	listen := flag.String("listen", "", "Address the HTTP service listens on")
	poolSize := flag.Int("s", 0, "Number of detectors in the HTTP service pool")
	logLevel := flag.String("log-level", "", "Log level [debug|info|warn|error]")
	logFormat := flag.String("log-format", "", "Log format [text|json]")

	flag.Parse()

	cfg, err := loadAppConfig(*configFile)

	if err != nil {
		logrus.Fatal(err)
	}

	// explicitly set flags take precedence over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "m":
			cfg.Model = *modelFile
		case "l":
			cfg.Labels = *labelFile
		case "lib":
			cfg.ONNXLibrary = *libFile
		case "t":
			cfg.Threads = *threads
		case "listen":
			cfg.Listen = *listen
		case "s":
			cfg.PoolSize = *poolSize
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})

	log, err := newLogger(cfg.LogLevel, cfg.LogFormat)

	if err != nil {
		logrus.Fatal(err)
	}

	labels, err := segdist.LoadLabelsOrDefault(cfg.Labels)

	if err != nil {
		log.WithError(err).Fatal("Error loading model labels")
	}

	angles := distance.NewAngleFeed()

	if !angles.Update(*pitch, *roll) {
		log.WithFields(logrus.Fields{"pitch": *pitch, "roll": *roll}).
			Warn("Orientation outside the usable range, distances will not be estimated")
	}

	opts := pipeline.Options{
		Labels: labels,
		Config: cfg.Detector,
		Angles: angles,
		Logger: log,
	}

	newEngine := func(int) (segdist.Engine, error) {
		return segdist.NewONNXEngine(cfg.Model, segdist.ONNXOptions{
			LibraryPath: cfg.ONNXLibrary,
			NumThreads:  cfg.Threads,
		})
	}

	switch {
	case *serve:
		err = runServer(cfg, opts, newEngine, log)

	case *frameDir != "":
		var pinned []int
		pinned, err = parseCores(*cores)

		if err == nil {
			err = runStream(*frameDir, *fps, pinned, opts, newEngine, log)
		}

	default:
		err = runImage(*imgFile, *saveFile, *maskFile, *renderFormat, opts, newEngine, log)
	}

	if err != nil {
		log.WithError(err).Fatal("segdist failed")
	}

	log.Info("done")
}

// newLogger returns a logrus logger for the given level and format
func newLogger(level, format string) (*logrus.Logger, error) {

	log := logrus.New()
	log.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)

	if err != nil {
		return nil, err
	}

	log.SetLevel(lvl)

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return log, nil
}

// runImage processes a single image file and saves the rendered result
func runImage(imgFile, saveFile, maskFile, renderFormat string, opts pipeline.Options,
	newEngine pipeline.EngineFactory, log *logrus.Logger) error {

	engine, err := newEngine(0)

	if err != nil {
		return fmt.Errorf("error initializing ONNX engine: %w", err)
	}

	det, err := pipeline.NewDetector(engine, opts)

	if err != nil {
		engine.Close()
		return err
	}

	defer det.Close()

	log.WithField("info", det.Info().String()).Debug("Model loaded")

	// load image
	img := gocv.IMRead(imgFile, gocv.IMReadColor)

	if img.Empty() {
		return fmt.Errorf("error reading image from: %s", imgFile)
	}

	defer img.Close()

	start := time.Now()
	res := det.ProcessMat(img)

	if res.Status == pipeline.StatusError {
		return res.Err
	}

	endDetect := time.Now()

	switch renderFormat {
	case "mask":
		if err := render.SegmentMask(&img, res.Detections, 0.5); err != nil {
			return fmt.Errorf("failed to render segmentation mask: %w", err)
		}

		render.DetectionBoxes(&img, res.Detections, render.DefaultFont(), 2)

	case "outline":
		fallthrough
	default:
		err := render.SegmentOutline(&img, res.Detections, 1000, render.DefaultFont(), 2)

		if err != nil {
			return fmt.Errorf("failed to render segmentation outline: %w", err)
		}
	}

	endRendering := time.Now()

	// output detections to stdout
	for _, d := range res.Detections {
		fmt.Printf("%s @ (%.3f %.3f %.3f %.3f)\n", render.Label(d),
			d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
	}

	log.WithFields(logrus.Fields{
		"preprocess":  res.Timings.Preprocess,
		"inference":   res.Timings.Inference,
		"postprocess": res.Timings.Postprocess,
		"rendering":   endRendering.Sub(endDetect),
		"total":       endRendering.Sub(start),
	}).Info("Model first run speed")

	if ok := gocv.IMWrite(saveFile, img); !ok {
		return fmt.Errorf("failed to save the image to %s", saveFile)
	}

	log.Infof("Saved detection result to %s", saveFile)

	if maskFile != "" {
		mask := render.MaskImage(res.Detections, res.FrameWidth, res.FrameHeight)

		if err := imaging.Save(mask, maskFile); err != nil {
			return fmt.Errorf("failed to dump segmentation mask: %w", err)
		}

		log.Infof("Saved segmentation mask to %s", maskFile)
	}

	return nil
}
