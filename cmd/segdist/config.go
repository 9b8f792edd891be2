package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/swdee/go-segdist/pipeline"
	"gopkg.in/yaml.v3"
)

// appConfig is the YAML configuration file layout.  Command line flags that
// are set explicitly override the values read from file.
type appConfig struct {
	Model       string          `yaml:"model"`
	Labels      string          `yaml:"labels"`
	ONNXLibrary string          `yaml:"onnx_library"`
	Threads     int             `yaml:"threads"`
	PoolSize    int             `yaml:"pool_size"`
	Listen      string          `yaml:"listen"`
	LogLevel    string          `yaml:"log_level"`
	LogFormat   string          `yaml:"log_format"`
	Detector    pipeline.Config `yaml:"detector"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Model:     "../data/models/yolov8s-seg.onnx",
		PoolSize:  2,
		Listen:    ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Detector:  pipeline.DefaultConfig(),
	}
}

// loadAppConfig overlays the YAML file onto the defaults, an empty file name
// returns the defaults
func loadAppConfig(file string) (appConfig, error) {

	cfg := defaultAppConfig()

	if file == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(file)

	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file %s: %w", file, err)
	}

	if err := cfg.Detector.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid detector config in %s: %w", file, err)
	}

	return cfg, nil
}

// parseCores converts a comma separated core list such as "4,5,6,7"
func parseCores(s string) ([]int, error) {

	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var cores []int

	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))

		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid CPU core %q", part)
		}

		cores = append(cores, n)
	}

	return cores, nil
}
