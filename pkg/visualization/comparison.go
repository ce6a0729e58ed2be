package visualization

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"lungseg/internal/models"
)

// Comparison renders axial slices of a scan next to the same slices of its
// lung mask
type Comparison struct {
	scan *Viewer
	mask *Viewer

	// PanelSize is the width and height of each of the two panels
	PanelSize vg.Length
}

// NewComparison pairs a scan with its mask. Both must have the same shape.
func NewComparison(vol *models.IntensityVolume, mask *models.BinaryMask, w Window) (*Comparison, error) {
	if vol.Shape != mask.Shape {
		return nil, &models.InputError{Reason: fmt.Sprintf(
			"mask shape %s does not match scan shape %s", mask.Shape, vol.Shape)}
	}
	return &Comparison{
		scan:      NewVolumeViewer(vol, w),
		mask:      NewMaskViewer(mask),
		PanelSize: 4 * vg.Inch,
	}, nil
}

// RenderSlice writes a PNG with "Original Slice z" on the left and
// "Segmented Slice z" on the right
func (c *Comparison) RenderSlice(z int, w io.Writer) error {
	original, err := c.scan.ExtractSlice("z", z)
	if err != nil {
		return err
	}
	segmented, err := c.mask.ExtractSlice("z", z)
	if err != nil {
		return err
	}

	plots := [][]*plot.Plot{{
		imagePlot(original, fmt.Sprintf("Original Slice %d", z)),
		imagePlot(segmented, fmt.Sprintf("Segmented Slice %d", z)),
	}}

	img := vgimg.New(2*c.PanelSize, c.PanelSize)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: 2,
		PadX: vg.Millimeter * 4,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i, p := range plots[0] {
		p.Draw(canvases[0][i])
	}

	_, err = vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	return err
}

// Render writes one comparison_<nnn>.png per slice of r into dir and
// returns the written paths in slice order
func (c *Comparison) Render(r models.SliceRange, dir string) ([]string, error) {
	if r.End() >= c.scan.Shape().Depth {
		return nil, &models.RangeError{Start: r.Start(), End: r.End(), Depth: c.scan.Shape().Depth}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, r.Len())
	for _, z := range r.Indices() {
		path := filepath.Join(dir, fmt.Sprintf("comparison_%03d.png", z))
		if err := writeFile(path, func(w io.Writer) error { return c.RenderSlice(z, w) }); err != nil {
			return paths, fmt.Errorf("failed to render slice %d: %w", z, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// RenderProjection saves the maximum intensity projection of v along axis
// as a titled PNG
func RenderProjection(v *Viewer, axis, title, path string) error {
	img, err := v.Projection(axis)
	if err != nil {
		return err
	}

	p := imagePlot(img, title)
	bounds := img.Bounds()
	width := 4 * vg.Inch
	height := width * vg.Length(bounds.Dy()) / vg.Length(bounds.Dx())
	return p.Save(width, height+vg.Inch/2, path)
}

// imagePlot wraps img in a plot with hidden axes
func imagePlot(img image.Image, title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()

	bounds := img.Bounds()
	p.Add(plotter.NewImage(img, 0, 0, float64(bounds.Dx()), float64(bounds.Dy())))
	return p
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
