// Package pipeline runs lung segmentation end to end: load a scan, threshold
// it, refine the mask, assemble the output volume and export it.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lungseg/internal/models"
	"lungseg/pkg/assembly"
	"lungseg/pkg/export"
	"lungseg/pkg/loader"
	"lungseg/pkg/morphology"
	"lungseg/pkg/segmentation"
	"lungseg/pkg/visualization"
)

// Stage names one of the masks produced during a run
type Stage string

const (
	// StageThreshold is the raw thresholded mask
	StageThreshold Stage = "threshold"
	// StageFilled is the mask after hole filling
	StageFilled Stage = "filled"
	// StageRefined is the mask after closing; it is the exported result
	StageRefined Stage = "refined"
)

// Stages lists the mask stages in the order they are produced
var Stages = []Stage{StageThreshold, StageFilled, StageRefined}

// Params holds the segmentation run parameters.
type Params struct {
	// InputPath is a DICOM directory, an image slice directory or a NIfTI file
	InputPath string

	// OutputFile is where the refined mask is exported. Empty skips export.
	OutputFile string

	// Thresholds is the exclusive intensity range classified as lung
	Thresholds models.ThresholdRange

	// Refiner cleans the thresholded mask; nil uses morphology.NewRefiner()
	Refiner *morphology.Refiner

	// Loader controls how InputPath is read
	Loader loader.Options

	// SaveIntermediaryResults determines whether to save every stage as an
	// image sequence under IntermediaryDir
	SaveIntermediaryResults bool
	IntermediaryDir         string

	// Window is used to render intensity slices
	Window visualization.Window

	// Description is written into the exported file header
	Description string

	Logger logrus.FieldLogger
}

// DefaultParams returns parameters with the default lung thresholds,
// 26-connected refinement and the lung display window
func DefaultParams() *Params {
	return &Params{
		OutputFile:      "segmented_lung.nii.gz",
		Thresholds:      models.DefaultThresholds(),
		Refiner:         morphology.NewRefiner(),
		Loader:          loader.DefaultOptions(),
		IntermediaryDir: "intermediary_results",
		Window:          visualization.LungWindow(),
		Description:     "lungseg lung mask",
	}
}

// Pipeline runs one segmentation. The process consists of these steps:
//  1. Loading the input volume and its spatial metadata
//  2. Thresholding the intensities into a mask
//  3. Filling enclosed holes and closing the mask
//  4. Assembling the output volume
//  5. Exporting the mask with the input's spatial metadata
//  6. Calculating run metrics
type Pipeline struct {
	params *Params
	runID  string
	log    *logrus.Entry

	volume   *models.IntensityVolume
	metadata models.SpatialMetadata

	masks  map[Stage]*models.BinaryMask
	output *models.BinaryMask

	metrics Metrics
}

// New creates a pipeline with the provided parameters
func New(params *Params) *Pipeline {
	if params.Refiner == nil {
		params.Refiner = morphology.NewRefiner()
	}
	var logger logrus.FieldLogger = logrus.StandardLogger()
	if params.Logger != nil {
		logger = params.Logger
	}

	runID := uuid.NewString()
	return &Pipeline{
		params: params,
		runID:  runID,
		log:    logger.WithField("run", runID),
		masks:  make(map[Stage]*models.BinaryMask, len(Stages)),
	}
}

// RunID identifies this run in logs and in the exported file
func (p *Pipeline) RunID() string {
	return p.runID
}

// Process loads InputPath and runs the complete segmentation pipeline
func (p *Pipeline) Process() error {
	p.log.Info("Step 1: Loading input volume...")
	opts := p.params.Loader
	if opts.Logger == nil {
		opts.Logger = p.log
	}
	scan, err := loader.Load(p.params.InputPath, opts)
	if err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}
	return p.Run(scan.Volume, scan.Metadata)
}

// Run segments an already loaded volume. meta must describe the volume's grid.
func (p *Pipeline) Run(vol *models.IntensityVolume, meta models.SpatialMetadata) error {
	if err := vol.Validate(); err != nil {
		return err
	}
	if err := meta.Validate(vol.Shape); err != nil {
		return err
	}
	p.volume = vol
	p.metadata = meta
	p.output = nil
	p.masks = make(map[Stage]*models.BinaryMask, len(Stages))

	if p.params.SaveIntermediaryResults {
		if err := os.MkdirAll(p.params.IntermediaryDir, 0755); err != nil {
			return fmt.Errorf("failed to create intermediary directory: %w", err)
		}
		p.saveIntermediaryResult("00_original", visualization.NewVolumeViewer(vol, p.params.Window))
	}

	// Step 2: Threshold
	p.log.WithFields(logrus.Fields{
		"low":  p.params.Thresholds.Low,
		"high": p.params.Thresholds.High,
	}).Info("Step 2: Thresholding intensities...")
	if p.params.Thresholds.Degenerate() {
		p.log.Warn("Threshold range is empty, the mask will have no foreground")
	}
	p.setMask(StageThreshold, segmentation.Segment(vol, p.params.Thresholds))

	// Step 3: Refine
	p.log.WithFields(logrus.Fields{
		"fillConnectivity":    p.params.Refiner.FillConnectivity,
		"closingConnectivity": p.params.Refiner.ClosingConnectivity,
	}).Info("Step 3: Filling holes and closing mask...")
	stages := p.params.Refiner.RefineStages(p.masks[StageThreshold])
	p.setMask(StageFilled, stages.Filled)
	p.setMask(StageRefined, stages.Refined)

	// Step 4: Assemble
	p.log.Info("Step 4: Assembling output volume...")
	output, err := assembly.Assemble(stages.Refined)
	if err != nil {
		return fmt.Errorf("failed to assemble output volume: %w", err)
	}
	p.output = output

	// Step 5: Export
	if p.params.OutputFile != "" {
		p.log.WithField("file", p.params.OutputFile).Info("Step 5: Exporting mask...")
		if err := export.Export(output, meta, p.params.OutputFile, export.Options{
			Description: p.params.Description,
			Attributes:  p.attributes(),
		}); err != nil {
			return fmt.Errorf("failed to export mask: %w", err)
		}
	} else {
		p.log.Info("Step 5: No output file configured, skipping export")
	}

	// Step 6: Metrics
	p.log.Info("Step 6: Calculating metrics...")
	p.metrics = calculateMetrics(vol, meta, p.masks)
	p.metrics.RunID = p.runID
	p.log.WithFields(logrus.Fields{
		"lungVoxels":   p.metrics.RefinedVoxels,
		"lungVolumeMl": p.metrics.LungVolumeML,
		"dice":         p.metrics.RefinementDice,
	}).Info("Segmentation complete")

	return nil
}

// setMask records a stage result and saves it when intermediary results are enabled
func (p *Pipeline) setMask(stage Stage, mask *models.BinaryMask) {
	p.masks[stage] = mask
	p.log.WithFields(logrus.Fields{
		"stage":  stage,
		"voxels": mask.Count(),
	}).Debug("Stage complete")

	if p.params.SaveIntermediaryResults {
		index := 1
		for i, s := range Stages {
			if s == stage {
				index = i + 1
			}
		}
		p.saveIntermediaryResult(fmt.Sprintf("%02d_%s", index, stage), visualization.NewMaskViewer(mask))
	}
}

// saveIntermediaryResult writes every axial slice of v under the stage
// directory. Failures are logged and do not stop the run.
func (p *Pipeline) saveIntermediaryResult(stage string, v *visualization.Viewer) {
	dir := filepath.Join(p.params.IntermediaryDir, stage)
	if err := v.SaveSliceSequence("z", dir); err != nil {
		p.log.WithError(err).WithField("stage", stage).Warn("Failed to save intermediary result")
	}
}

// attributes are stored in the exported file next to its spatial metadata
func (p *Pipeline) attributes() map[string]string {
	attrs := map[string]string{
		"runId":               p.runID,
		"lowThreshold":        strconv.FormatFloat(p.params.Thresholds.Low, 'g', -1, 64),
		"highThreshold":       strconv.FormatFloat(p.params.Thresholds.High, 'g', -1, 64),
		"fillConnectivity":    strconv.Itoa(int(p.params.Refiner.FillConnectivity)),
		"closingConnectivity": strconv.Itoa(int(p.params.Refiner.ClosingConnectivity)),
	}
	if p.params.InputPath != "" {
		attrs["source"] = p.params.InputPath
	}
	return attrs
}

// Volume returns the loaded intensity volume, or nil before a run
func (p *Pipeline) Volume() *models.IntensityVolume {
	return p.volume
}

// Metadata returns the spatial metadata of the loaded volume
func (p *Pipeline) Metadata() models.SpatialMetadata {
	return p.metadata
}

// Mask returns the mask produced at stage, or nil if the stage has not run
func (p *Pipeline) Mask(stage Stage) *models.BinaryMask {
	return p.masks[stage]
}

// Output returns the assembled output volume
func (p *Pipeline) Output() *models.BinaryMask {
	return p.output
}

// GetMetrics returns the metrics of the last run
func (p *Pipeline) GetMetrics() Metrics {
	return p.metrics
}

// SelectSlices validates an inclusive display range against the loaded
// volume. Computed masks are never affected by the outcome.
func (p *Pipeline) SelectSlices(start, end int) (models.SliceRange, error) {
	if p.volume == nil {
		return models.SliceRange{}, &models.InputError{Reason: "no volume loaded"}
	}
	return models.NewSliceRange(start, end, p.volume.Depth)
}

// RenderComparison writes original and stage slices side by side for every
// slice of r into dir
func (p *Pipeline) RenderComparison(r models.SliceRange, stage Stage, dir string) ([]string, error) {
	mask := p.masks[stage]
	if p.volume == nil || mask == nil {
		return nil, &models.InputError{Reason: fmt.Sprintf("stage %s has not been computed", stage)}
	}
	cmp, err := visualization.NewComparison(p.volume, mask, p.params.Window)
	if err != nil {
		return nil, err
	}
	return cmp.Render(r, dir)
}

// RenderProjection saves the maximum intensity projection of a stage mask
// along axis
func (p *Pipeline) RenderProjection(stage Stage, axis, path string) error {
	mask := p.masks[stage]
	if mask == nil {
		return &models.InputError{Reason: fmt.Sprintf("stage %s has not been computed", stage)}
	}
	title := fmt.Sprintf("Lung mask (%s), projection along %s", stage, axis)
	return visualization.RenderProjection(visualization.NewMaskViewer(mask), axis, title, path)
}

// ExtractSlices saves every slice of the input volume and of a stage mask
// along axis as JPEG sequences under dir/original and dir/<stage>
func (p *Pipeline) ExtractSlices(stage Stage, axis, dir string) error {
	mask := p.masks[stage]
	if p.volume == nil || mask == nil {
		return &models.InputError{Reason: fmt.Sprintf("stage %s has not been computed", stage)}
	}
	if err := visualization.NewVolumeViewer(p.volume, p.params.Window).SaveSliceSequence(axis, filepath.Join(dir, "original")); err != nil {
		return err
	}
	return visualization.NewMaskViewer(mask).SaveSliceSequence(axis, filepath.Join(dir, string(stage)))
}
