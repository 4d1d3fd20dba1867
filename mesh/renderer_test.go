package mesh

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestFrameRenderer_Render(t *testing.T) {
	frame, _ := solveExample(t)
	r := NewFrameRenderer(frame)

	img := r.Render()
	lo, hi, _ := frame.Bounds()
	pad := int(r.Padding * r.Scale)
	wantW := int(float64(hi.X-lo.X)*r.Scale) + 2*pad + 1
	wantH := int(float64(hi.Y-lo.Y)*r.Scale) + 2*pad + 1
	if img.Bounds().Dx() != wantW || img.Bounds().Dy() != wantH {
		t.Errorf("image size = %dx%d, want %dx%d", img.Bounds().Dx(), img.Bounds().Dy(), wantW, wantH)
	}

	// The reference scanner sits at the origin.
	x := int(float64(-lo.X)*r.Scale) + pad
	y := wantH - 1 - (int(float64(-lo.Y)*r.Scale) + pad)
	if got := img.RGBAAt(x, y); got != r.Colors.Reference {
		t.Errorf("pixel at reference scanner = %v, want %v", got, r.Colors.Reference)
	}
}

func TestFrameRenderer_Empty(t *testing.T) {
	r := NewFrameRenderer(&GlobalFrame{})
	img := r.Render()
	want := 2*int(r.Padding*r.Scale) + 1
	if img.Bounds().Dx() != want || img.Bounds().Dy() != want {
		t.Errorf("empty image size = %dx%d, want %dx%d", img.Bounds().Dx(), img.Bounds().Dy(), want, want)
	}
}

func TestFrameRenderer_Padding(t *testing.T) {
	frame, _ := solveExample(t)

	tests := []struct {
		name    string
		padding float64
	}{
		{"none", 0},
		{"default", DefaultRenderPadding},
		{"wide", 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewFrameRenderer(frame)
			r.Padding = tt.padding
			narrow := NewFrameRenderer(frame)
			narrow.Padding = 0

			got := r.Render().Bounds().Dx() - narrow.Render().Bounds().Dx()
			if want := 2 * int(tt.padding*r.Scale); got != want {
				t.Errorf("padding added %d pixels, want %d", got, want)
			}
		})
	}
}

func TestFrameRenderer_LargeSpanIsCapped(t *testing.T) {
	frame := &GlobalFrame{
		Landmarks: []Point3{{X: -1_000_000_000, Y: -400_000_000}, {X: 1_000_000_000, Y: 600_000_000}},
		Positions: []ScannerPosition{
			{ScannerID: 0, Parent: -1},
			{ScannerID: 1, Parent: 0, Position: Point3{X: 900_000_000, Y: 500_000_000}},
		},
	}
	r := NewFrameRenderer(frame)

	img := r.Render()
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w > MaxRasterDimension || h > MaxRasterDimension {
		t.Fatalf("image size = %dx%d, exceeds %d", w, h, MaxRasterDimension)
	}
	// The wider axis still uses most of the allowed size.
	if w < MaxRasterDimension/2 {
		t.Errorf("image width = %d, want at least %d", w, MaxRasterDimension/2)
	}
	if h >= w {
		t.Errorf("image height = %d, want less than width %d", h, w)
	}

	lo, hi, _ := frame.Bounds()
	scale, _, _, _ := r.layout(lo, hi)
	if scale >= r.Scale {
		t.Errorf("scale = %v, want below %v", scale, r.Scale)
	}
	x := int(1_000_000_000 * scale)
	y := h - 1 - int(400_000_000*scale)
	if got := img.RGBAAt(x+int(r.Padding*scale), y-int(r.Padding*scale)); got != r.Colors.Reference {
		t.Errorf("pixel at reference scanner = %v, want %v", got, r.Colors.Reference)
	}
}

func TestFrameRenderer_WritePNG(t *testing.T) {
	frame, _ := solveExample(t)

	var buf bytes.Buffer
	if err := NewFrameRenderer(frame).WritePNG(&buf); err != nil {
		t.Fatalf("WritePNG() error: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("output is not a PNG: %v", err)
	}

	path := filepath.Join(t.TempDir(), "frame.png")
	if err := NewFrameRenderer(frame).SavePNG(path); err != nil {
		t.Fatalf("SavePNG() error: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("SavePNG() wrote nothing: %v", err)
	}
}

func TestFrameRenderer_ApplyConfig(t *testing.T) {
	r := NewFrameRenderer(&GlobalFrame{})
	r.ApplyConfig(RenderConfig{})
	if r.Scale != DefaultRenderScale || r.Padding != DefaultRenderPadding {
		t.Errorf("zero config changed defaults: scale %v padding %v", r.Scale, r.Padding)
	}

	r.ApplyConfig(RenderConfig{Scale: 0.5, Padding: 12, Resolution: 300})
	if r.Scale != 0.5 || r.Padding != 12 {
		t.Errorf("scale %v padding %v, want 0.5 and 12", r.Scale, r.Padding)
	}
}
