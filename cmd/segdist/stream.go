package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/swdee/go-segdist/pipeline"
	"github.com/swdee/go-segdist/render"
)

// frameExts are the image file extensions read from a frame directory
var frameExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// listFrames returns the image files in dir sorted by name
func listFrames(dir string) ([]string, error) {

	entries, err := os.ReadDir(dir)

	if err != nil {
		return nil, err
	}

	var files []string

	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}

		files = append(files, filepath.Join(dir, e.Name()))
	}

	sort.Strings(files)

	return files, nil
}

// runStream feeds the frames in dir to a worker at the given frame rate, as a
// camera would.  Frames arriving while the worker is busy are dropped.
func runStream(dir string, fps int, cores []int, opts pipeline.Options,
	newEngine pipeline.EngineFactory, log *logrus.Logger) error {

	if fps <= 0 {
		return fmt.Errorf("invalid frame rate %d", fps)
	}

	files, err := listFrames(dir)

	if err != nil {
		return fmt.Errorf("error reading frame directory: %w", err)
	}

	if len(files) == 0 {
		return fmt.Errorf("no frames found in %s", dir)
	}

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

	var processed, empty, failed int

	listener := pipeline.ListenerFuncs{
		Detect: func(dets []pipeline.Detection, timings pipeline.Timings) {
			processed++

			labels := make([]string, len(dets))

			for i, d := range dets {
				labels[i] = render.Label(d)
			}

			log.WithFields(logrus.Fields{
				"objects": strings.Join(labels, ", "),
				"total":   timings.Total,
			}).Info("frame")
		},
		Empty: func() {
			processed++
			empty++
		},
		Error: func(err error) {
			failed++
			log.WithError(err).Warn("frame failed")
		},
	}

	worker := pipeline.NewWorker(det, listener, pipeline.WorkerOptions{
		CPUCores: cores,
		Logger:   log,
	})

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	start := time.Now()

	for _, file := range files {
		img, err := imaging.Open(file, imaging.AutoOrientation(true))

		if err != nil {
			log.WithError(err).WithField("file", file).Warn("skipping frame")
			continue
		}

		<-ticker.C
		worker.Submit(img)
	}

	// Close waits for the frame in progress to finish
	worker.Close()

	log.WithFields(logrus.Fields{
		"frames":    len(files),
		"processed": processed,
		"empty":     empty,
		"failed":    failed,
		"dropped":   worker.Dropped(),
		"elapsed":   time.Since(start),
	}).Info("stream finished")

	return nil
}
