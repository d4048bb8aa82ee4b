package territory

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ResolveFragments explodes each owner's geometry into connected
// components, keeps the largest as the canonical Territory geometry, and
// records the remainder as minor fragments. Real registries interleave
// rival owners' assets, so a dissolved geometry frequently splits into
// islands after clipping; this is a data-quality signal, not a geometry
// bug.
//
// The returned index is totalComponents / totalOwners: 1.0 means every
// owner is contiguous, 2.0 means two islands per owner on average.
func ResolveFragments(p *Partition, policy FragmentPolicy) ([]Territory, float64, error) {
	if len(p.Owners) == 0 {
		return nil, 0, stageErr(StageFragments, 0, len(p.Retained), fmt.Errorf("no owner geometries to resolve"))
	}

	territories := make([]Territory, 0, len(p.Owners))
	totalComponents := 0
	for _, og := range p.Owners {
		components := explode(og.Geometry)
		if len(components) == 0 {
			return nil, 0, stageErr(StageFragments, len(p.Owners), len(p.Retained),
				fmt.Errorf("owner %s: geometry has no polygonal components", og.OwnerID))
		}
		totalComponents += len(components)

		// Largest component wins; ties broken by ring vertex order for
		// run-to-run stability.
		sort.SliceStable(components, func(i, j int) bool {
			return polygonArea(components[i]) > polygonArea(components[j])
		})

		t := Territory{
			OwnerID:      og.OwnerID,
			OwnerLabel:   og.OwnerLabel,
			Geometry:     components[0],
			AssetCount:   og.AssetCount,
			AreaM2:       polygonArea(components[0]),
			IsFragmented: len(components) > 1,
		}
		if policy == FragmentReport {
			for _, c := range components[1:] {
				t.Fragments = append(t.Fragments, Fragment{Geometry: c, AreaM2: polygonArea(c)})
			}
		}
		territories = append(territories, t)
	}

	index := float64(totalComponents) / float64(len(p.Owners))
	return territories, index, nil
}

// polygonArea is planar.Area made orientation-proof; GEOS does not promise
// a ring winding for its output.
func polygonArea(p orb.Polygon) float64 {
	return math.Abs(planar.Area(p))
}

// explode splits a geometry into its polygonal components.
func explode(g orb.Geometry) []orb.Polygon {
	switch geom := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{geom}
	case orb.MultiPolygon:
		out := make([]orb.Polygon, len(geom))
		copy(out, geom)
		return out
	case orb.Collection:
		var out []orb.Polygon
		for _, sub := range geom {
			out = append(out, explode(sub)...)
		}
		return out
	default:
		return nil
	}
}
