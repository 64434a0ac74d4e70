package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/viper"

	"usbeamform/internal/logging"
	"usbeamform/pkg/capture"
	"usbeamform/pkg/config"
	"usbeamform/pkg/delay"
	"usbeamform/pkg/framebuffer"
	"usbeamform/pkg/imagestore"
	"usbeamform/pkg/reconstruction"
	"usbeamform/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "Configuration file (default: usbeamform.yaml in /etc/usbeamform or .)")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	frames := flag.Int("frames", 10, "Number of frames to acquire and reconstruct")
	strategy := flag.String("strategy", "", "Execution strategy: sequential, parallel, opencl or auto")
	workers := flag.Int("workers", 0, "Worker goroutines for the parallel strategy (0: from config)")
	captureIn := flag.String("capture-in", "", "Replay this frame capture instead of synthetic samples")
	captureOut := flag.String("capture-out", "", "Save the last reconstructed frame's raw samples to this file")
	output := flag.String("output", "", "Image output path, .tif or .jpg (default: from config)")
	scale := flag.Int("scale", 16, "Pixel magnification of the exported image")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags take precedence over environment and file values
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "strategy":
			cfg.Processing.Strategy = *strategy
		case "workers":
			cfg.Processing.NumWorkers = *workers
		case "output":
			cfg.Output.ImagePath = *output
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *frames < 1 {
		log.Fatalf("Frame count must be at least 1, got %d", *frames)
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	fmt.Println("================================")
	fmt.Println("DELAY-AND-SUM ULTRASOUND BEAMFORMING")
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, *frames, *captureIn, *captureOut, *scale); err != nil {
		log.Fatalf("Beamforming failed: %v", err)
	}
}

// loadConfig finds the configuration file, either the explicit path or
// usbeamform.yaml in the search path, and applies USBEAMFORM_STRATEGY and
// USBEAMFORM_WORKERS from the environment.
func loadConfig(path string) (*config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("usbeamform")
	if err := v.BindEnv("strategy"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("workers"); err != nil {
		return nil, err
	}

	if path == "" {
		v.SetConfigName("usbeamform") // name of config file (without extension)
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/usbeamform") // path to look for the config file in
		v.AddConfigPath(".")               // optionally look for config in the working directory
		err := v.ReadInConfig()
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			logging.Logger().Debug("no configuration file found, using defaults")
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			path = v.ConfigFileUsed()
		}
	}

	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v.IsSet("strategy") {
		cfg.Processing.Strategy = v.GetString("strategy")
	}
	if v.IsSet("workers") {
		cfg.Processing.NumWorkers = v.GetInt("workers")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, frames int, captureIn, captureOut string, scale int) error {
	geometry := cfg.Geometry()
	scan := cfg.ScanConfiguration()
	layout := cfg.AcquisitionLayout()

	// Build the delay table once per configuration
	startTime := time.Now()
	table, err := delay.Build(geometry, scan)
	if err != nil {
		return err
	}
	summary := table.Summary()
	fmt.Printf("Delay table: %d records × %d elements built in %v\n",
		table.Records(), table.Elements(), time.Since(startTime))
	fmt.Printf("- Delay range: %.1f ns to %.1f ns (mean %.1f ns)\n",
		summary.Min*1e9, summary.Max*1e9, summary.Mean*1e9)
	fmt.Printf("- Sample offsets: %d to %d\n", summary.MinOffset, summary.MaxOffset)

	fb, err := framebuffer.New(geometry.Elements, table.Records(), layout)
	if err != nil {
		return err
	}

	kind, err := reconstruction.ParseKind(cfg.Processing.Strategy)
	if err != nil {
		return err
	}
	strategy, err := reconstruction.Select(kind, cfg.Processing.NumWorkers)
	if err != nil {
		return err
	}

	store := imagestore.New()
	bf, err := reconstruction.NewBeamformer(reconstruction.Params{
		Table:      table,
		Frames:     fb,
		Store:      store,
		Strategy:   strategy,
		AngleCount: len(scan.Angles),
		FocalCount: len(scan.Focals),
		FocalIndex: cfg.Processing.FocalIndex,
	})
	if err != nil {
		strategy.Close()
		return err
	}
	defer bf.Strategy().Close()

	imgLayout := bf.Layout()
	fmt.Printf("Image: %d rows × %d steering lines, %d samples per pixel, strategy %s\n",
		imgLayout.Height, imgLayout.Width, imgLayout.ScaleFactor, bf.Strategy().Name())

	var src source
	if captureIn != "" {
		src = captureSource{path: captureIn}
	} else {
		src = newRandomSource(cfg.Simulation.Seed, cfg.Simulation.SampleMax)
	}

	// Prime the first frame
	if fb.FrameCount() < 2 {
		// A single frame has no writable partition; fill it in place
		if captureIn != "" {
			return fmt.Errorf("replaying a capture needs at least 2 frames")
		}
		rs := src.(*randomSource)
		if err := fb.Randomize(rs.rng, rs.max); err != nil {
			return err
		}
	} else {
		if err := acquire(fb, src); err != nil {
			return fmt.Errorf("failed to acquire first frame: %w", err)
		}
		if err := fb.AdvanceFrame(); err != nil {
			return err
		}
	}

	var total time.Duration
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Acquire the next frame while the active one is reconstructed
		acquired := make(chan error, 1)
		if fb.FrameCount() > 1 && i < frames-1 {
			go func() { acquired <- acquire(fb, src) }()
		} else {
			acquired <- nil
		}

		frameStart := time.Now()
		img, err := bf.Reconstruct(ctx)
		elapsed := time.Since(frameStart)
		acqErr := <-acquired
		if err != nil {
			return err
		}
		if acqErr != nil {
			return fmt.Errorf("acquisition failed: %w", acqErr)
		}
		total += elapsed

		stats := img.Stats()
		logging.Logger().Info("frame reconstructed",
			"frame", i,
			"partition", img.Frame,
			"elapsed", elapsed,
			"mean", stats.Mean,
			"max", stats.Max)

		if i < frames-1 && fb.FrameCount() > 1 {
			if err := fb.AdvanceFrame(); err != nil {
				return err
			}
		}
	}

	fmt.Printf("\nReconstructed %d frames in %v (%.2f ms per frame)\n",
		frames, total, total.Seconds()*1e3/float64(frames))

	latest := store.Latest()
	stats := latest.Stats()
	fmt.Printf("Last image %s: mean %.1f, std %.1f, min %.0f, max %.0f\n",
		latest.ID, stats.Mean, stats.StdDev, stats.Min, stats.Max)

	if captureOut != "" {
		if err := saveCapture(fb, captureOut); err != nil {
			return err
		}
		fmt.Printf("Frame capture saved to: %s\n", captureOut)
	}

	if cfg.Output.ImagePath != "" {
		viewer, err := visualization.NewViewer(latest)
		if err != nil {
			return err
		}
		if err := viewer.Save(cfg.Output.ImagePath, scale); err != nil {
			return fmt.Errorf("failed to save image: %w", err)
		}
		logging.Logger().Info("image exported", "path", cfg.Output.ImagePath, "id", latest.ID)
		fmt.Printf("Image saved to: %s\n", cfg.Output.ImagePath)
	}
	return nil
}

// saveCapture writes the active frame, the one last reconstructed, to path
func saveCapture(fb *framebuffer.FrameBuffer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture: %w", err)
	}
	defer f.Close()

	view := fb.Acquire()
	defer view.Release()
	if err := capture.Save(f, view); err != nil {
		return err
	}
	return f.Close()
}
