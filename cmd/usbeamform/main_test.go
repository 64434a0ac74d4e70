package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"usbeamform/pkg/config"
	"usbeamform/pkg/framebuffer"
)

func smallConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Array.Elements = 4
	cfg.Scan.Angles = []int{-1, 0, 1}
	cfg.Processing.Strategy = "sequential"
	cfg.Output.ImagePath = filepath.Join(dir, "image.tif")
	cfg.Output.Verbose = false
	return cfg
}

func TestLoadConfigEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usbeamform.yaml")
	if err := config.SaveConfig(smallConfig(dir), path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	t.Setenv("USBEAMFORM_STRATEGY", "parallel")
	t.Setenv("USBEAMFORM_WORKERS", "3")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Array.Elements != 4 {
		t.Errorf("Expected file values to be kept, got %d elements", cfg.Array.Elements)
	}
	if cfg.Processing.Strategy != "parallel" {
		t.Errorf("Expected environment strategy, got %q", cfg.Processing.Strategy)
	}
	if cfg.Processing.NumWorkers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Processing.NumWorkers)
	}
}

func TestRun(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end run in short mode")
	}

	dir := t.TempDir()
	cfg := smallConfig(dir)
	capturePath := filepath.Join(dir, "frame.zst")

	if err := run(context.Background(), cfg, 3, "", capturePath, 4); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, p := range []string{cfg.Output.ImagePath, capturePath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("Expected output %s: %v", p, err)
		}
	}

	// Replay the capture through the parallel strategy
	cfg.Processing.Strategy = "parallel"
	cfg.Output.ImagePath = filepath.Join(dir, "replay.jpg")
	if err := run(context.Background(), cfg, 2, capturePath, "", 1); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if _, err := os.Stat(cfg.Output.ImagePath); err != nil {
		t.Errorf("Expected replayed image: %v", err)
	}
}

func TestRunSingleFrame(t *testing.T) {
	dir := t.TempDir()
	cfg := smallConfig(dir)
	cfg.Acquisition.FrameCount = 1
	cfg.Output.ImagePath = ""

	if err := run(context.Background(), cfg, 2, "", "", 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := run(context.Background(), cfg, 1, filepath.Join(dir, "none.zst"), "", 1); err == nil {
		t.Error("Expected replay into a single-frame buffer to fail")
	}
}

func TestRandomSourceRange(t *testing.T) {
	fb, err := framebuffer.New(2, 3, config.DefaultConfig().AcquisitionLayout())
	if err != nil {
		t.Fatalf("Failed to create frame buffer: %v", err)
	}
	src := newRandomSource(7, 10)
	if err := acquire(fb, src); err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	if err := fb.AdvanceFrame(); err != nil {
		t.Fatalf("Failed to advance: %v", err)
	}

	view := fb.Acquire()
	defer view.Release()
	for e := 0; e < view.Elements(); e++ {
		for _, s := range view.Slot(e) {
			if s >= 10 {
				t.Fatalf("Sample %d outside [0, 10)", s)
			}
		}
	}
}
