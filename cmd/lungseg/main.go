package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"lungseg/internal/models"
	"lungseg/pkg/config"
	"lungseg/pkg/loader"
	"lungseg/pkg/pipeline"
	"lungseg/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "DICOM series directory, directory of 2D slices, or NIfTI file")
	outputFile := flag.String("output", "", "Output NIfTI file (default from config: segmented_lung.nii.gz)")
	configPath := flag.String("config", "lungseg.yaml", "Path to the YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	low := flag.Float64("low", 0, "Lower threshold in HU (exclusive)")
	high := flag.Float64("high", 0, "Upper threshold in HU (exclusive)")
	format := flag.String("format", "", "Input format: auto, dicom, images or nifti")
	start := flag.Int("start", -1, "First slice of the comparison range (defaults to -end)")
	end := flag.Int("end", -1, "Last slice of the comparison range, inclusive (defaults to -start)")
	viewDir := flag.String("view-dir", "comparison", "Directory for comparison and projection images")
	extractSlices := flag.Bool("extract-slices", false, "Extract and save scan and mask slices along all axes")
	slicesDir := flag.String("slices-dir", "segmented_slices", "Directory to save extracted slices")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save intermediary results during processing")
	intermediaryDir := flag.String("intermediary-dir", "", "Directory to save intermediary results")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.Output.File = *outputFile
		case "low":
			cfg.Segmentation.LowThreshold = *low
		case "high":
			cfg.Segmentation.HighThreshold = *high
		case "format":
			cfg.Loader.Format = *format
		case "save-intermediary":
			cfg.Output.SaveIntermediaryResults = *saveIntermediary
		case "intermediary-dir":
			cfg.Output.IntermediaryDir = *intermediaryDir
		case "debug":
			cfg.Output.Verbose = *debug
		}
	})

	logger := initLogger(cfg.Output.Verbose)

	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	refiner, err := cfg.Refiner()
	if err != nil {
		logger.WithError(err).Fatal("Invalid refinement settings")
	}

	params := &pipeline.Params{
		InputPath:  *inputPath,
		OutputFile: cfg.Output.File,
		Thresholds: cfg.Thresholds(),
		Refiner:    refiner,
		Loader: loader.Options{
			Format:           loader.Format(cfg.Loader.Format),
			RescaleSlope:     cfg.Loader.RescaleSlope,
			RescaleIntercept: cfg.Loader.RescaleIntercept,
			PixelSpacing:     cfg.Loader.PixelSpacing,
			SliceGap:         cfg.Loader.SliceGap,
		},
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
		Window: visualization.Window{
			Center: cfg.Visualization.WindowCenter,
			Width:  cfg.Visualization.WindowWidth,
		},
		Description: "lungseg lung mask",
		Logger:      logger,
	}

	p := pipeline.New(params)

	logger.WithField("run", p.RunID()).Info("Starting lung segmentation")
	startTime := time.Now()
	if err := p.Process(); err != nil {
		logger.WithError(err).Fatal("Segmentation failed")
	}
	processingTime := time.Since(startTime)

	metrics := p.GetMetrics()
	fmt.Printf("\nSegmentation completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output mask saved to: %s\n\n", cfg.Output.File)

	fmt.Printf("Run Metrics:\n")
	fmt.Printf("============\n")
	fmt.Printf("Volume shape (D,H,W): %s\n", metrics.Shape)
	fmt.Printf("Thresholded voxels: %d\n", metrics.ThresholdVoxels)
	fmt.Printf("Hole-filled voxels: %d\n", metrics.FilledVoxels)
	fmt.Printf("Refined voxels: %d\n", metrics.RefinedVoxels)
	fmt.Printf("Foreground fraction: %.4f\n", metrics.ForegroundFraction)
	fmt.Printf("Lung volume: %.1f mL\n", metrics.LungVolumeML)
	fmt.Printf("Scan intensity: %.1f ± %.1f\n", metrics.IntensityMean, metrics.IntensityStdDev)
	fmt.Printf("Mean intensity inside mask: %.1f\n", metrics.LungMeanIntensity)
	fmt.Printf("Threshold/refined Dice: %.4f\n", metrics.RefinementDice)

	// Render the selected slice range next to the refined mask
	if first, last, ok := sliceBounds(*start, *end); ok {
		r, err := p.SelectSlices(first, last)
		var rangeErr *models.RangeError
		if errors.As(err, &rangeErr) {
			logger.WithFields(logrus.Fields{
				"start": first,
				"end":   last,
				"depth": rangeErr.Depth,
			}).WithError(err).Error("Invalid slice range, nothing rendered")
		} else if err != nil {
			logger.WithError(err).Error("Cannot select slices")
		} else {
			paths, err := p.RenderComparison(r, pipeline.StageRefined, *viewDir)
			if err != nil {
				logger.WithError(err).Warn("Failed to render comparison")
			}
			fmt.Printf("\nSaved %d comparison images to: %s\n", len(paths), *viewDir)

			projection := filepath.Join(*viewDir, "projection_z.png")
			if err := p.RenderProjection(pipeline.StageRefined, "z", projection); err != nil {
				logger.WithError(err).Warn("Failed to render projection")
			} else {
				fmt.Printf("Saved mask projection to: %s\n", projection)
			}
		}
	}

	if *extractSlices {
		fmt.Println("\nExtracting scan and mask slices along all axes...")
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(*slicesDir, axis)
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)

			if err := p.ExtractSlices(pipeline.StageRefined, axis, axisDir); err != nil {
				logger.WithError(err).WithField("axis", axis).Warn("Failed to save slices")
			}
		}
		fmt.Println("Slice extraction completed!")
	}

	if cfg.Output.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", cfg.Output.IntermediaryDir)
		fmt.Println("The following stages were saved:")
		fmt.Println("- 00_original: Input slices in the display window")
		for i, stage := range pipeline.Stages {
			fmt.Printf("- %02d_%s: %s\n", i+1, stage, stageDescription(stage))
		}
	}
}

// sliceBounds resolves the -start and -end flags. A single given bound selects
// one slice; ok is false when neither was given.
func sliceBounds(start, end int) (first, last int, ok bool) {
	switch {
	case start < 0 && end < 0:
		return 0, 0, false
	case start < 0:
		return end, end, true
	case end < 0:
		return start, start, true
	}
	return start, end, true
}

func stageDescription(stage pipeline.Stage) string {
	switch stage {
	case pipeline.StageThreshold:
		return "Mask after thresholding"
	case pipeline.StageFilled:
		return "Mask after hole filling"
	case pipeline.StageRefined:
		return "Mask after closing (exported)"
	}
	return ""
}

// initLogger initializes the logger based on debug mode
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
