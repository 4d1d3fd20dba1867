package mesh

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/tdewolff/canvas"
)

func TestVectorRenderer_RenderToSVG(t *testing.T) {
	frame, _ := solveExample(t)
	r := NewVectorRenderer(frame)

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		t.Fatalf("Failed to render to SVG: %v", err)
	}

	if !bytes.Contains(buf.Bytes(), []byte("<svg")) {
		t.Errorf("Output does not contain <svg tag")
	}
	if !bytes.Contains(buf.Bytes(), []byte("path")) {
		t.Errorf("Output does not contain path elements")
	}
}

func TestVectorRenderer_RenderToPNG(t *testing.T) {
	frame, _ := solveExample(t)
	r := NewVectorRenderer(frame)
	r.Resolution = canvas.DPMM(0.5)

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("Failed to render to PNG: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		t.Errorf("PNG has empty bounds %v", img.Bounds())
	}
}

func TestVectorRenderer_CanvasBounds(t *testing.T) {
	frame := &GlobalFrame{
		Landmarks: []Point3{{-100, 50, 0}, {300, 250, 7}},
		Positions: []ScannerPosition{{ScannerID: 0, Parent: -1}},
	}
	r := NewVectorRenderer(frame)
	r.Padding = 10

	minX, minY, width, height := r.canvasBounds()
	if minX != -100 || minY != 0 || width != 420 || height != 270 {
		t.Errorf("canvasBounds() = (%v, %v, %v, %v), want (-100, 0, 420, 270)", minX, minY, width, height)
	}

	empty := NewVectorRenderer(&GlobalFrame{})
	empty.Padding = 10
	if _, _, w, h := empty.canvasBounds(); w != 20 || h != 20 {
		t.Errorf("empty canvasBounds() size = %vx%v, want 20x20", w, h)
	}

	var buf bytes.Buffer
	if err := empty.RenderToSVG(&buf); err != nil {
		t.Errorf("RenderToSVG() on an empty frame error: %v", err)
	}
}

func TestVectorRenderer_ApplyConfig(t *testing.T) {
	r := NewVectorRenderer(&GlobalFrame{})
	r.ApplyConfig(RenderConfig{})
	if r.Padding != DefaultRenderPadding || r.Resolution != canvas.DPI(DefaultVectorDPI) {
		t.Errorf("zero config changed defaults: padding %v resolution %v", r.Padding, r.Resolution)
	}

	r.ApplyConfig(RenderConfig{Scale: 3, Padding: 10, Resolution: 20})
	if r.Padding != 10 || r.Resolution != canvas.DPI(20) {
		t.Errorf("padding %v resolution %v, want 10 and %v", r.Padding, r.Resolution, canvas.DPI(20))
	}
}
