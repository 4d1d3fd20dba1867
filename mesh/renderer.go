package mesh

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FrameColors are the colors used to draw a global frame
type FrameColors struct {
	Background color.RGBA
	Landmark   color.RGBA
	Reference  color.RGBA
	Scanner    color.RGBA
	Link       color.RGBA
	Text       color.RGBA
}

// DefaultFrameColors returns the default palette
func DefaultFrameColors() FrameColors {
	return FrameColors{
		Background: color.RGBA{255, 255, 255, 255},
		Landmark:   color.RGBA{100, 149, 237, 255}, // Cornflower blue
		Reference:  color.RGBA{0, 0, 139, 255},     // Dark blue
		Scanner:    color.RGBA{139, 0, 0, 255},     // Dark red
		Link:       color.RGBA{200, 200, 200, 255}, // Light grey
		Text:       color.RGBA{0, 0, 0, 255},
	}
}

// FrameRenderer draws a top-down (XY) view of a global frame: landmarks as
// dots, scanners as labelled squares and each alignment as a line from a
// scanner to its parent.
type FrameRenderer struct {
	Frame   *GlobalFrame
	Colors  FrameColors
	Scale   float64 // Pixels per coordinate unit
	Padding float64 // Padding around the bounds in coordinate units
}

// MaxRasterDimension bounds the width and height of a rendered image.
const MaxRasterDimension = 8192

// NewFrameRenderer creates a renderer with default settings
func NewFrameRenderer(frame *GlobalFrame) *FrameRenderer {
	return &FrameRenderer{
		Frame:   frame,
		Colors:  DefaultFrameColors(),
		Scale:   DefaultRenderScale,
		Padding: DefaultRenderPadding,
	}
}

// ApplyConfig overrides the scale and padding with the positive values in cfg.
func (r *FrameRenderer) ApplyConfig(cfg RenderConfig) {
	if cfg.Scale > 0 {
		r.Scale = cfg.Scale
	}
	if cfg.Padding > 0 {
		r.Padding = cfg.Padding
	}
}

// layout returns the pixel scale, the padding in pixels and the image
// size for bounds lo..hi. The scale drops below r.Scale when the image
// would not fit in MaxRasterDimension.
func (r *FrameRenderer) layout(lo, hi Point3) (scale float64, pad, width, height int) {
	scale = r.Scale
	if scale <= 0 {
		scale = DefaultRenderScale
	}
	padding := max(r.Padding, 0)
	span := float64(max(hi.X-lo.X, hi.Y-lo.Y)) + 2*padding
	if span*scale+1 > MaxRasterDimension {
		scale = (MaxRasterDimension - 1) / span
	}
	pad = int(padding * scale)
	width = int(float64(hi.X-lo.X)*scale) + 2*pad + 1
	height = int(float64(hi.Y-lo.Y)*scale) + 2*pad + 1
	return scale, pad, width, height
}

// Render creates the image
func (r *FrameRenderer) Render() *image.RGBA {
	lo, hi, ok := r.Frame.Bounds()
	if !ok {
		_, _, width, height := r.layout(Point3{}, Point3{})
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(img, img.Bounds(), &image.Uniform{r.Colors.Background}, image.Point{}, draw.Src)
		return img
	}

	scale, pad, width, height := r.layout(lo, hi)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{r.Colors.Background}, image.Point{}, draw.Src)

	// Y grows downward in image space, so flip it to keep +Y up
	toPixel := func(p Point3) (int, int) {
		x := int(float64(p.X-lo.X)*scale) + pad
		y := height - 1 - (int(float64(p.Y-lo.Y)*scale) + pad)
		return x, y
	}

	// Links first so markers sit on top
	for _, pos := range r.Frame.Positions {
		if pos.Parent < 0 {
			continue
		}
		parent, ok := r.Frame.Position(pos.Parent)
		if !ok {
			continue
		}
		x0, y0 := toPixel(pos.Position)
		x1, y1 := toPixel(parent.Position)
		drawLine(img, x0, y0, x1, y1, r.Colors.Link)
	}

	for _, p := range r.Frame.Landmarks {
		x, y := toPixel(p)
		drawCircle(img, x, y, 2, r.Colors.Landmark)
	}

	for _, pos := range r.Frame.Positions {
		x, y := toPixel(pos.Position)
		c := r.Colors.Scanner
		if pos.ScannerID == r.Frame.Reference {
			c = r.Colors.Reference
		}
		drawSquare(img, x, y, 9, c)
		drawText(img, x+8, y-6, strconv.Itoa(pos.ScannerID), r.Colors.Text)
	}

	r.drawLegend(img)
	return img
}

// drawLegend writes the two headline numbers in the top-left corner
func (r *FrameRenderer) drawLegend(img *image.RGBA) {
	drawText(img, 10, 15, fmt.Sprintf("landmarks: %d", r.Frame.LandmarkCount()), r.Colors.Text)
	drawText(img, 10, 30, fmt.Sprintf("max scanner distance: %d", r.Frame.MaxScannerDistance()), r.Colors.Text)
}

// WritePNG renders and encodes the image to w
func (r *FrameRenderer) WritePNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG saves the image to a file
func (r *FrameRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return r.WritePNG(f)
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
					img.Set(x, y, c)
				}
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			x, y := cx+dx, cy+dy
			if x >= 0 && x < img.Bounds().Max.X && y >= 0 && y < img.Bounds().Max.Y {
				img.Set(x, y, c)
			}
		}
	}
}

// drawLine draws a one-pixel line using Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := x1 - x0
	if dx < 0 {
		dx = -dx
	}
	dy := y1 - y0
	if dy > 0 {
		dy = -dy
	}
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if image.Pt(x0, y0).In(img.Bounds()) {
			img.Set(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
