package territory

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
)

func renderFixture() (orb.Polygon, []Territory) {
	boundary := squareBoundary(100)
	territories := []Territory{
		{
			OwnerID:    "S1",
			OwnerLabel: "SUB ONE",
			Geometry:   orb.Polygon{{{0, 0}, {50, 0}, {50, 100}, {0, 100}, {0, 0}}},
			AreaM2:     5000,
		},
		{
			OwnerID:    "S2",
			OwnerLabel: "SUB TWO",
			Geometry:   orb.Polygon{{{50, 0}, {100, 0}, {100, 100}, {50, 100}, {50, 0}}},
			Fragments: []Fragment{{
				Geometry: orb.Polygon{{{10, 10}, {15, 10}, {15, 15}, {10, 10}}},
				AreaM2:   12.5,
			}},
			AreaM2:       5000,
			IsFragmented: true,
		},
	}
	return boundary, territories
}

func TestMapRenderer_RenderToPNG(t *testing.T) {
	boundary, territories := renderFixture()
	r := NewMapRenderer(boundary, territories)

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("RenderToPNG: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		t.Errorf("empty image %v", bounds)
	}
	// Square boundary, square output (within raster rounding).
	if d := bounds.Dx() - bounds.Dy(); d < -2 || d > 2 {
		t.Errorf("aspect ratio lost: %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestMapRenderer_RenderToSVG(t *testing.T) {
	boundary, territories := renderFixture()
	r := NewMapRenderer(boundary, territories)

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}

	if !bytes.Contains(buf.Bytes(), []byte("<svg")) {
		t.Error("output does not contain an <svg tag")
	}
	if !bytes.Contains(buf.Bytes(), []byte("path")) {
		t.Error("output does not contain path elements")
	}
	// Owner fills carry the stable export colors.
	if !bytes.Contains(buf.Bytes(), []byte(OwnerColor("S1"))) {
		t.Error("owner S1 fill color missing from SVG output")
	}
}

func TestMapRenderer_RejectsDegenerateBoundary(t *testing.T) {
	r := NewMapRenderer(nil, nil)
	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err == nil {
		t.Error("nil boundary rendered")
	}

	r = NewMapRenderer(orb.Polygon{}, nil)
	if err := r.RenderToPNG(&buf); err == nil {
		t.Error("empty boundary rendered")
	}
}

func TestWriteMap(t *testing.T) {
	boundary, territories := renderFixture()
	path := filepath.Join(t.TempDir(), "map.png")

	if err := WriteMap(path, boundary, territories); err != nil {
		t.Fatalf("WriteMap: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening map file: %v", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("map file is not a PNG: %v", err)
	}
}
