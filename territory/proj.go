package territory

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-proj/v10"
)

// Projection converts between the metric UTM working CRS the engine
// computes in and geographic lon/lat for export. The transform runs on
// PROJ, the companion binding to the GEOS library doing the geometry work.
// The working ellipsoid is GRS80 (SIRGAS 2000); zone 24 south is
// EPSG:31984, the production default.
type Projection struct {
	pj *proj.PJ
}

// NewUTMProjection returns a projection for the given UTM zone.
func NewUTMProjection(zone int, southern bool) (*Projection, error) {
	if zone < 1 || zone > 60 {
		return nil, fmt.Errorf("utm zone %d out of range 1-60", zone)
	}
	south := ""
	if southern {
		south = " +south"
	}
	source := fmt.Sprintf("+proj=utm +zone=%d%s +ellps=GRS80 +units=m +no_defs +type=crs", zone, south)
	// A longlat proj-string target keeps lon/lat axis order; EPSG:4326
	// would come back latitude-first.
	target := "+proj=longlat +ellps=GRS80 +no_defs +type=crs"
	pj, err := proj.NewCRSToCRS(source, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building utm zone %d transform: %w", zone, err)
	}
	return &Projection{pj: pj}, nil
}

// Inverse converts UTM easting/northing (meters) to lon/lat (degrees).
func (p *Projection) Inverse(easting, northing float64) (lon, lat float64, err error) {
	c, err := p.pj.Forward(proj.Coord{easting, northing, 0, 0})
	if err != nil {
		return 0, 0, fmt.Errorf("projecting (%.3f, %.3f) to lon/lat: %w", easting, northing, err)
	}
	return c[0], c[1], nil
}

// Forward converts lon/lat (degrees) to UTM easting/northing (meters).
func (p *Projection) Forward(lon, lat float64) (easting, northing float64, err error) {
	c, err := p.pj.Inverse(proj.Coord{lon, lat, 0, 0})
	if err != nil {
		return 0, 0, fmt.Errorf("projecting (%.6f, %.6f) to utm: %w", lon, lat, err)
	}
	return c[0], c[1], nil
}

// ToGeographic re-projects every coordinate of g from UTM to lon/lat.
func (p *Projection) ToGeographic(g orb.Geometry) (orb.Geometry, error) {
	switch geom := g.(type) {
	case orb.Point:
		lon, lat, err := p.Inverse(geom[0], geom[1])
		if err != nil {
			return nil, err
		}
		return orb.Point{lon, lat}, nil
	case orb.Ring:
		out, err := p.ring(geom)
		if err != nil {
			return nil, err
		}
		return out, nil
	case orb.Polygon:
		out := make(orb.Polygon, len(geom))
		for i, ring := range geom {
			r, err := p.ring(ring)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(geom))
		for i, poly := range geom {
			pg, err := p.ToGeographic(poly)
			if err != nil {
				return nil, err
			}
			out[i] = pg.(orb.Polygon)
		}
		return out, nil
	case orb.Collection:
		out := make(orb.Collection, len(geom))
		for i, sub := range geom {
			sg, err := p.ToGeographic(sub)
			if err != nil {
				return nil, err
			}
			out[i] = sg
		}
		return out, nil
	default:
		return g, nil
	}
}

// ring transforms a whole ring in one PROJ call.
func (p *Projection) ring(r orb.Ring) (orb.Ring, error) {
	coords := make([]proj.Coord, len(r))
	for i, pt := range r {
		coords[i] = proj.Coord{pt[0], pt[1], 0, 0}
	}
	if err := p.pj.ForwardArray(coords); err != nil {
		return nil, fmt.Errorf("projecting ring to lon/lat: %w", err)
	}
	out := make(orb.Ring, len(r))
	for i, c := range coords {
		out[i] = orb.Point{c[0], c[1]}
	}
	return out, nil
}
