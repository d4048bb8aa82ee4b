package territory

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MapRenderer draws the finished partition as a shaded map for visual
// inspection: each owner filled with the same color the GeoJSON export
// carries, minor fragments outlined dashed, the boundary stroked on top.
// Coordinates are rendered in the working CRS; north is up.
type MapRenderer struct {
	Boundary    orb.Geometry
	Territories []Territory

	// TargetWidth is the output width in canvas millimeters; the height
	// follows the boundary's aspect ratio.
	TargetWidth float64
	Padding     float64
	Resolution  canvas.Resolution
}

// NewMapRenderer creates a renderer with default settings.
func NewMapRenderer(boundary orb.Geometry, territories []Territory) *MapRenderer {
	return &MapRenderer{
		Boundary:    boundary,
		Territories: territories,
		TargetWidth: 250,
		Padding:     10,
		Resolution:  canvas.DPMM(4),
	}
}

// canvasRenderer is the surface both the svg and rasterizer backends
// implement.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the territory map as an SVG to the provided writer.
func (r *MapRenderer) RenderToSVG(w io.Writer) error {
	width, height, scale, err := r.size()
	if err != nil {
		return err
	}

	svgRenderer := svg.New(w, width, height, nil)
	r.renderTo(svgRenderer, width, height, scale)
	return svgRenderer.Close()
}

// RenderToPNG writes the territory map as a PNG to the provided writer,
// with an owner legend in the top-left corner.
func (r *MapRenderer) RenderToPNG(w io.Writer) error {
	width, height, scale, err := r.size()
	if err != nil {
		return err
	}

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderTo(rast, width, height, scale)
	r.drawLegend(rast)
	return png.Encode(w, rast)
}

func (r *MapRenderer) size() (width, height, scale float64, err error) {
	if r.Boundary == nil {
		return 0, 0, 0, fmt.Errorf("%w: nothing to render", ErrInvalidBoundary)
	}
	b := r.Boundary.Bound()
	spanX := b.Max[0] - b.Min[0]
	spanY := b.Max[1] - b.Min[1]
	if spanX <= 0 || spanY <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: degenerate extent %f x %f", ErrInvalidBoundary, spanX, spanY)
	}
	scale = (r.TargetWidth - 2*r.Padding) / spanX
	return r.TargetWidth, spanY*scale + 2*r.Padding, scale, nil
}

func (r *MapRenderer) renderTo(renderer canvasRenderer, width, height, scale float64) {
	b := r.Boundary.Bound()
	toCanvas := func(pt orb.Point) (float64, float64) {
		return (pt[0]-b.Min[0])*scale + r.Padding, (pt[1]-b.Min[1])*scale + r.Padding
	}

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	for _, t := range r.Territories {
		fill := canvas.DefaultStyle
		fill.FillRule = canvas.EvenOdd
		fill.Fill = canvas.Paint{Color: ownerFillColor(t.OwnerID)}
		fill.Stroke = canvas.Paint{Color: canvas.Transparent}
		for _, poly := range explode(t.Geometry) {
			renderer.RenderPath(polygonPath(poly, toCanvas), fill, canvas.Identity)
		}

		// Fragments keep the owner's fill but get a dashed outline so the
		// islands read as exceptions.
		fragStyle := fill
		fragStyle.Stroke = canvas.Paint{Color: canvas.Black}
		fragStyle.StrokeWidth = 0.4
		fragStyle.Dashes = []float64{1.5, 1.5}
		for _, f := range t.Fragments {
			renderer.RenderPath(polygonPath(f.Geometry, toCanvas), fragStyle, canvas.Identity)
		}
	}

	outline := canvas.DefaultStyle
	outline.Fill = canvas.Paint{Color: canvas.Transparent}
	outline.Stroke = canvas.Paint{Color: canvas.Black}
	outline.StrokeWidth = 0.8
	for _, poly := range explode(r.Boundary) {
		renderer.RenderPath(polygonPath(poly, toCanvas), outline, canvas.Identity)
	}
}

// drawLegend stamps an owner color key onto the rasterized image.
func (r *MapRenderer) drawLegend(img draw.Image) {
	y := 15
	for _, t := range r.Territories {
		c := ownerFillColor(t.OwnerID)
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-6, c)
			}
		}

		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.RGBA{0, 0, 0, 255}),
			Face: basicfont.Face7x13,
			Dot:  fixed.Point26_6{X: fixed.I(28), Y: fixed.I(y + 4)},
		}
		d.DrawString(t.OwnerLabel)

		y += 18
	}
}

// polygonPath converts a polygon, holes included, into a canvas path.
func polygonPath(poly orb.Polygon, toCanvas func(orb.Point) (float64, float64)) *canvas.Path {
	p := &canvas.Path{}
	for _, ring := range poly {
		for i, pt := range ring {
			x, y := toCanvas(pt)
			if i == 0 {
				p.MoveTo(x, y)
			} else {
				p.LineTo(x, y)
			}
		}
		p.Close()
	}
	return p
}

// ownerFillColor turns the owner's export color into an RGBA fill.
func ownerFillColor(ownerID string) color.RGBA {
	var r, g, b uint8
	if _, err := fmt.Sscanf(OwnerColor(ownerID), "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{200, 200, 200, 255}
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// WriteMap renders the territory map to a file; a .svg extension selects
// SVG output, anything else gets PNG.
func WriteMap(path string, boundary orb.Geometry, territories []Territory) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating map file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := NewMapRenderer(boundary, territories)
	if strings.HasSuffix(strings.ToLower(path), ".svg") {
		if err := r.RenderToSVG(f); err != nil {
			return fmt.Errorf("rendering territory map: %w", err)
		}
		return nil
	}
	if err := r.RenderToPNG(f); err != nil {
		return fmt.Errorf("rendering territory map: %w", err)
	}
	return nil
}
