package territory

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geos"
)

// The heavy geometry operations (Voronoi diagram, boolean clip, unary
// union, validity repair) run on GEOS. Everything at the package boundary
// stays in orb types; these helpers bridge the two worlds through GeoJSON,
// which both sides speak natively.

// geosFromOrb converts an orb geometry into a GEOS geometry owned by ctx.
func geosFromOrb(ctx *geos.Context, g orb.Geometry) (*geos.Geom, error) {
	data, err := json.Marshal(geojson.NewGeometry(g))
	if err != nil {
		return nil, fmt.Errorf("encoding geometry: %w", err)
	}
	geom, err := ctx.NewGeomFromGeoJSON(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing geometry into GEOS: %w", err)
	}
	return geom, nil
}

// orbFromGeos converts a GEOS geometry back into an orb geometry.
func orbFromGeos(g *geos.Geom) (orb.Geometry, error) {
	gj, err := geojson.UnmarshalGeometry([]byte(g.ToGeoJSON(0)))
	if err != nil {
		return nil, fmt.Errorf("decoding GEOS geometry: %w", err)
	}
	return gj.Geometry(), nil
}

// boxPolygon builds the rectangle (minX,minY)-(maxX,maxY) in ctx.
func boxPolygon(ctx *geos.Context, minX, minY, maxX, maxY float64) *geos.Geom {
	return ctx.NewPolygon([][][]float64{{
		{minX, minY},
		{maxX, minY},
		{maxX, maxY},
		{minX, maxY},
		{minX, minY},
	}})
}

// polygonalComponents flattens g into its polygonal components. Collections
// are walked recursively; points and lines produced by degenerate clips are
// dropped.
func polygonalComponents(g *geos.Geom) []*geos.Geom {
	if g == nil || g.IsEmpty() {
		return nil
	}
	switch g.TypeID() {
	case geos.TypeIDPolygon:
		return []*geos.Geom{g}
	case geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		var out []*geos.Geom
		for i := 0; i < g.NumGeometries(); i++ {
			out = append(out, polygonalComponents(g.Geometry(i))...)
		}
		return out
	default:
		return nil
	}
}

// recoverGeosError converts a GEOS panic into an error. go-geos reports
// exceptions from the underlying C library by panicking, so every entry
// point that touches GEOS funnels through this in a deferred call.
func recoverGeosError(errp *error) {
	if r := recover(); r != nil {
		if err, ok := r.(error); ok {
			*errp = fmt.Errorf("geometry operation failed: %w", err)
			return
		}
		*errp = fmt.Errorf("geometry operation failed: %v", r)
	}
}
