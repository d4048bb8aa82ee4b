package territory

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// LoadBoundary reads the region-of-interest polygon from a GeoJSON file.
// The file may hold a bare geometry, a Feature, or a FeatureCollection;
// multiple polygonal features are combined into one MultiPolygon.
// Coordinates must already be in the projected working CRS.
func LoadBoundary(path string) (orb.Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading boundary file: %w", err)
	}
	return ParseBoundary(data)
}

// ParseBoundary extracts the boundary geometry from raw GeoJSON.
func ParseBoundary(data []byte) (orb.Geometry, error) {
	var polys orb.MultiPolygon
	collect := func(g orb.Geometry) {
		switch geom := g.(type) {
		case orb.Polygon:
			polys = append(polys, geom)
		case orb.MultiPolygon:
			polys = append(polys, geom...)
		}
	}

	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		for _, f := range fc.Features {
			collect(f.Geometry)
		}
	} else if f, err := geojson.UnmarshalFeature(data); err == nil {
		collect(f.Geometry)
	} else if g, err := geojson.UnmarshalGeometry(data); err == nil {
		collect(g.Geometry())
	} else {
		return nil, fmt.Errorf("boundary is not valid GeoJSON: %w", err)
	}

	switch len(polys) {
	case 0:
		return nil, fmt.Errorf("%w: no polygonal geometry in boundary input", ErrInvalidBoundary)
	case 1:
		return polys[0], nil
	default:
		return polys, nil
	}
}

// LoadAssets reads asset points from a GeoJSON FeatureCollection. Features
// must be Points carrying "ownerId" (required) and optionally "ownerLabel"
// and "id" properties; the upstream ingestion step is responsible for
// mapping source columns onto these names.
func LoadAssets(path string) ([]AssetPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading assets file: %w", err)
	}
	return ParseAssets(data)
}

// ParseAssets extracts asset points from raw GeoJSON.
func ParseAssets(data []byte) ([]AssetPoint, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("assets are not a GeoJSON FeatureCollection: %w", err)
	}

	assets := make([]AssetPoint, 0, len(fc.Features))
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("asset feature %d: geometry must be a Point, got %s", i, f.Geometry.GeoJSONType())
		}
		ownerID, _ := f.Properties["ownerId"].(string)
		if ownerID == "" {
			return nil, fmt.Errorf("asset feature %d: missing ownerId property", i)
		}
		id, _ := f.Properties["id"].(string)
		if id == "" {
			id = fmt.Sprintf("asset-%d", i)
		}
		label, _ := f.Properties["ownerLabel"].(string)

		assets = append(assets, AssetPoint{
			ID:         id,
			OwnerID:    ownerID,
			OwnerLabel: label,
			X:          pt[0],
			Y:          pt[1],
		})
	}
	return assets, nil
}

// EncodeTerritories renders the territory set as a GeoJSON
// FeatureCollection for persistence and downstream presentation. When proj
// is non-nil every coordinate is re-projected from the working CRS to
// lon/lat. Minor fragments are emitted as their own features tagged
// "fragment": true so no reported exception is lost in export.
func EncodeTerritories(territories []Territory, proj *Projection) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, t := range territories {
		geom, err := reproject(t.Geometry, proj)
		if err != nil {
			return nil, fmt.Errorf("owner %s: %w", t.OwnerID, err)
		}
		f := geojson.NewFeature(geom)
		f.Properties = geojson.Properties{
			"ownerId":      t.OwnerID,
			"ownerLabel":   t.OwnerLabel,
			"assetCount":   t.AssetCount,
			"areaM2":       t.AreaM2,
			"isExternal":   t.IsExternal,
			"isFragmented": t.IsFragmented,
			"fill":         OwnerColor(t.OwnerID),
		}
		fc.Append(f)

		for i, frag := range t.Fragments {
			fgeom, err := reproject(frag.Geometry, proj)
			if err != nil {
				return nil, fmt.Errorf("owner %s fragment %d: %w", t.OwnerID, i+1, err)
			}
			ff := geojson.NewFeature(fgeom)
			ff.Properties = geojson.Properties{
				"ownerId":  t.OwnerID,
				"fragment": true,
				"rank":     i + 1,
				"areaM2":   frag.AreaM2,
				"fill":     OwnerColor(t.OwnerID),
			}
			fc.Append(ff)
		}
	}
	return fc, nil
}

// WriteTerritories writes the encoded FeatureCollection to a file.
func WriteTerritories(path string, territories []Territory, proj *Projection) error {
	fc, err := EncodeTerritories(territories, proj)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling territories: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing territories file: %w", err)
	}
	return nil
}

// WriteReport writes the validation report as JSON.
func WriteReport(path string, report *ValidationReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

// OwnerColor derives a stable display color from the owner id, so
// territories keep their color across runs and views.
func OwnerColor(ownerID string) string {
	sum := md5.Sum([]byte(ownerID))
	return fmt.Sprintf("#%02x%02x%02x", sum[0], sum[1], sum[2])
}

// reproject maps a geometry through proj when set.
func reproject(g orb.Geometry, proj *Projection) (orb.Geometry, error) {
	if proj == nil || g == nil {
		return g, nil
	}
	return proj.ToGeographic(g)
}

// territoryJSON is the wire form of Territory used by the result cache.
type territoryJSON struct {
	OwnerID      string            `json:"ownerId"`
	OwnerLabel   string            `json:"ownerLabel"`
	Geometry     *geojson.Geometry `json:"geometry"`
	Fragments    []Fragment        `json:"fragments,omitempty"`
	AssetCount   int               `json:"assetCount"`
	AreaM2       float64           `json:"areaM2"`
	IsExternal   bool              `json:"isExternal"`
	IsFragmented bool              `json:"isFragmented"`
}

// MarshalJSON encodes the geometry as GeoJSON alongside the flat fields.
func (t Territory) MarshalJSON() ([]byte, error) {
	out := territoryJSON{
		OwnerID:      t.OwnerID,
		OwnerLabel:   t.OwnerLabel,
		Fragments:    t.Fragments,
		AssetCount:   t.AssetCount,
		AreaM2:       t.AreaM2,
		IsExternal:   t.IsExternal,
		IsFragmented: t.IsFragmented,
	}
	if t.Geometry != nil {
		out.Geometry = geojson.NewGeometry(t.Geometry)
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (t *Territory) UnmarshalJSON(data []byte) error {
	var in territoryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = Territory{
		OwnerID:      in.OwnerID,
		OwnerLabel:   in.OwnerLabel,
		Fragments:    in.Fragments,
		AssetCount:   in.AssetCount,
		AreaM2:       in.AreaM2,
		IsExternal:   in.IsExternal,
		IsFragmented: in.IsFragmented,
	}
	if in.Geometry != nil {
		t.Geometry = in.Geometry.Geometry()
	}
	return nil
}

type fragmentJSON struct {
	Geometry *geojson.Geometry `json:"geometry"`
	AreaM2   float64           `json:"areaM2"`
}

func (f Fragment) MarshalJSON() ([]byte, error) {
	return json.Marshal(fragmentJSON{
		Geometry: geojson.NewGeometry(f.Geometry),
		AreaM2:   f.AreaM2,
	})
}

func (f *Fragment) UnmarshalJSON(data []byte) error {
	var in fragmentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	f.AreaM2 = in.AreaM2
	if in.Geometry != nil {
		if poly, ok := in.Geometry.Geometry().(orb.Polygon); ok {
			f.Geometry = poly
		}
	}
	return nil
}
