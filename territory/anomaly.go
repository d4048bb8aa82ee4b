package territory

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DetectExternalOwners flags territories whose owner's representative
// location falls outside the official boundary. The representative location
// is the centroid of the owner's raw, pre-tessellation asset points, the
// same aggregate the registry audit uses.
//
// The flag never removes or alters geometry: dissolve+clip already produced
// whatever portion of the owner's cells intersects the boundary. It exists
// to surface a likely data-entry inconsistency for human review. Findings
// are returned alongside the mutated slice.
func DetectExternalOwners(territories []Territory, retained []AssetPoint, boundary orb.Geometry) []Finding {
	sumX := make(map[string]float64)
	sumY := make(map[string]float64)
	n := make(map[string]int)
	for _, a := range retained {
		sumX[a.OwnerID] += a.X
		sumY[a.OwnerID] += a.Y
		n[a.OwnerID]++
	}

	var findings []Finding
	for i := range territories {
		t := &territories[i]
		if n[t.OwnerID] == 0 {
			continue
		}
		centroid := orb.Point{sumX[t.OwnerID] / float64(n[t.OwnerID]), sumY[t.OwnerID] / float64(n[t.OwnerID])}
		if boundaryContains(boundary, centroid) {
			continue
		}
		t.IsExternal = true
		t.OwnerLabel = t.OwnerLabel + " (external)"
		findings = append(findings, Finding{
			OwnerID:  t.OwnerID,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("asset centroid (%.1f, %.1f) lies outside the boundary; likely owner/asset linkage error",
				centroid[0], centroid[1]),
		})
	}
	return findings
}

// boundaryContains reports whether the point is inside the boundary, with
// points on the boundary ring treated as contained.
func boundaryContains(boundary orb.Geometry, p orb.Point) bool {
	switch b := boundary.(type) {
	case orb.Polygon:
		return planar.PolygonContains(b, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(b, p)
	case orb.Collection:
		for _, sub := range b {
			if boundaryContains(sub, p) {
				return true
			}
		}
	}
	return false
}
