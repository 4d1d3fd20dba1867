package mesh

import (
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer renders a global frame's XY projection as vector graphics.
// Units are coordinate units; the PNG output is rasterized at Resolution.
type VectorRenderer struct {
	Frame        *GlobalFrame
	Colors       FrameColors
	Padding      float64 // Padding in coordinate units
	LandmarkSize float64 // Landmark dot radius in coordinate units
	ScannerSize  float64 // Scanner marker side in coordinate units
	GridSpacing  float64 // Grid line spacing; 0 disables the grid
	Resolution   canvas.Resolution
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(frame *GlobalFrame) *VectorRenderer {
	return &VectorRenderer{
		Frame:        frame,
		Colors:       DefaultFrameColors(),
		Padding:      DefaultRenderPadding,
		LandmarkSize: 8,
		ScannerSize:  40,
		GridSpacing:  500,
		Resolution:   canvas.DPI(DefaultVectorDPI),
	}
}

// ApplyConfig overrides the padding and resolution with the positive values in cfg.
func (r *VectorRenderer) ApplyConfig(cfg RenderConfig) {
	if cfg.Padding > 0 {
		r.Padding = cfg.Padding
	}
	if cfg.Resolution > 0 {
		r.Resolution = canvas.DPI(cfg.Resolution)
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the frame as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	minX, minY, width, height := r.canvasBounds()

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, minX, minY, width, height)

	return svgRenderer.Close()
}

// RenderToPNG writes the frame as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	minX, minY, width, height := r.canvasBounds()

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, minX, minY, width, height)

	// Rasterizer implements draw.Image
	return png.Encode(w, rast)
}

// canvasBounds returns the lower-left world corner and the canvas size,
// padding included. An empty frame gets a padding-only canvas.
func (r *VectorRenderer) canvasBounds() (minX, minY, width, height float64) {
	lo, hi, ok := r.Frame.Bounds()
	if !ok {
		return 0, 0, 2 * r.Padding, 2 * r.Padding
	}
	minX, minY = float64(lo.X), float64(lo.Y)
	width = float64(hi.X-lo.X) + 2*r.Padding
	height = float64(hi.Y-lo.Y) + 2*r.Padding
	return minX, minY, width, height
}

// renderToCanvas draws the frame (shared logic for SVG and PNG)
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, minX, minY, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: r.Colors.Background}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p Point3) (float64, float64) {
		return float64(p.X) - minX + r.Padding, float64(p.Y) - minY + r.Padding
	}

	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 1.0
		gridStyle.Dashes = []float64{10.0, 10.0}

		maxX := minX + width - 2*r.Padding
		maxY := minY + height - 2*r.Padding
		for x := math.Ceil(minX/r.GridSpacing) * r.GridSpacing; x <= maxX; x += r.GridSpacing {
			gridPath := &canvas.Path{}
			gridPath.MoveTo(x-minX+r.Padding, 0)
			gridPath.LineTo(x-minX+r.Padding, height)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
		for y := math.Ceil(minY/r.GridSpacing) * r.GridSpacing; y <= maxY; y += r.GridSpacing {
			gridPath := &canvas.Path{}
			gridPath.MoveTo(0, y-minY+r.Padding)
			gridPath.LineTo(width, y-minY+r.Padding)
			renderer.RenderPath(gridPath, gridStyle, canvas.Identity)
		}
	}

	// Scanner-to-parent links
	linkStyle := canvas.DefaultStyle
	linkStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	linkStyle.Stroke = canvas.Paint{Color: r.Colors.Link}
	linkStyle.StrokeWidth = 4.0
	for _, pos := range r.Frame.Positions {
		parent, ok := r.Frame.Position(pos.Parent)
		if pos.Parent < 0 || !ok {
			continue
		}
		x0, y0 := toCanvas(pos.Position)
		x1, y1 := toCanvas(parent.Position)
		link := &canvas.Path{}
		link.MoveTo(x0, y0)
		link.LineTo(x1, y1)
		renderer.RenderPath(link, linkStyle, canvas.Identity)
	}

	landmarkStyle := canvas.DefaultStyle
	landmarkStyle.Fill = canvas.Paint{Color: r.Colors.Landmark}
	landmarkStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, p := range r.Frame.Landmarks {
		cx, cy := toCanvas(p)
		renderer.RenderPath(canvas.Circle(r.LandmarkSize).Translate(cx, cy), landmarkStyle, canvas.Identity)
	}

	for _, pos := range r.Frame.Positions {
		c := r.Colors.Scanner
		if pos.ScannerID == r.Frame.Reference {
			c = r.Colors.Reference
		}
		scannerStyle := canvas.DefaultStyle
		scannerStyle.Fill = canvas.Paint{Color: c}
		scannerStyle.Stroke = canvas.Paint{Color: canvas.Black}
		scannerStyle.StrokeWidth = 2.0

		cx, cy := toCanvas(pos.Position)
		half := r.ScannerSize / 2
		marker := canvas.Rectangle(r.ScannerSize, r.ScannerSize).Translate(cx-half, cy-half)
		renderer.RenderPath(marker, scannerStyle, canvas.Identity)
	}
}
