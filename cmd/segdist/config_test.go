package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppConfig(t *testing.T) {

	file := filepath.Join(t.TempDir(), "segdist.yaml")
	data := []byte(`
model: /models/seg.onnx
pool_size: 4
detector:
  camera_height: 2.0
  confidence_threshold: 0.4
`)

	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("failed writing config: %v", err)
	}

	cfg, err := loadAppConfig(file)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Model != "/models/seg.onnx" || cfg.PoolSize != 4 {
		t.Errorf("unexpected app config %+v", cfg)
	}

	// unset fields keep their defaults
	def := defaultAppConfig()

	if cfg.Detector.CameraHeight != 2.0 || cfg.Detector.ConfidenceThreshold != 0.4 ||
		cfg.Detector.VerticalFOV != def.Detector.VerticalFOV || cfg.Listen != def.Listen {
		t.Errorf("unexpected detector config %+v", cfg.Detector)
	}
}

func TestLoadAppConfigInvalid(t *testing.T) {

	file := filepath.Join(t.TempDir(), "segdist.yaml")

	if err := os.WriteFile(file, []byte("detector:\n  vertical_fov: 0\n"), 0o644); err != nil {
		t.Fatalf("failed writing config: %v", err)
	}

	if _, err := loadAppConfig(file); err == nil {
		t.Error("expected validation error")
	}

	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseCores(t *testing.T) {

	tests := []struct {
		input     string
		expected  []int
		expectErr bool
	}{
		{"", nil, false},
		{"4,5, 6,7", []int{4, 5, 6, 7}, false},
		{"1,x", nil, true},
		{"-1", nil, true},
	}

	for _, tc := range tests {
		cores, err := parseCores(tc.input)

		if tc.expectErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.input)
			}
			continue
		}

		if err != nil || len(cores) != len(tc.expected) {
			t.Errorf("%q: expected %v, got %v (err=%v)", tc.input, tc.expected, cores, err)
			continue
		}

		for i := range cores {
			if cores[i] != tc.expected[i] {
				t.Errorf("%q: expected %v, got %v", tc.input, tc.expected, cores)
			}
		}
	}
}

func TestListFrames(t *testing.T) {

	dir := t.TempDir()

	for _, name := range []string{"b.png", "a.JPG", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("failed writing %s: %v", name, err)
		}
	}

	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatalf("failed creating dir: %v", err)
	}

	files, err := listFrames(dir)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(files) != 2 || filepath.Base(files[0]) != "a.JPG" || filepath.Base(files[1]) != "b.png" {
		t.Errorf("unexpected frames %v", files)
	}
}
