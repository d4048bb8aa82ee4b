package territory

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"github.com/twpayne/go-geos"
	"golang.org/x/sync/errgroup"
)

// OwnerGeometry is the dissolved and clipped service area of one owner
// before fragmentation resolution. Geometry is a Polygon or MultiPolygon.
type OwnerGeometry struct {
	OwnerID    string
	OwnerLabel string
	Geometry   orb.Geometry
	AssetCount int
	AreaM2     float64
}

// Partition is the output of the tessellation engine: one geometry per
// surviving owner, pairwise interior-disjoint, whose union equals the
// boundary.
type Partition struct {
	Owners []OwnerGeometry

	// Retained holds the post-filter asset points, sorted by owner then id.
	// Points of owners that were later dropped for degenerate geometry are
	// still present; callers that score containment must restrict to owners
	// present in Owners.
	Retained []AssetPoint

	// Warnings collects non-fatal anomalies observed while partitioning,
	// such as owners dropped for empty clipped geometry.
	Warnings []Finding
}

// site is one deduplicated tessellation input point.
type site struct {
	ownerID string
	pt      orb.Point
}

// Point implements orb.Pointer so sites can live in a quadtree.
func (s *site) Point() orb.Point { return s.pt }

// Tessellate partitions the boundary among the asset owners. It is a pure,
// deterministic function of its inputs: identical inputs and parameters
// produce geometry-equal output regardless of map iteration order.
//
// The Voronoi diagram is built over a finite frame: the boundary bounding
// box inflated by params.CanvasMargin. Every raw cell is therefore a finite
// polygon whose portion inside the boundary is identical to the true
// unbounded cell intersected with the boundary, provided the margin exceeds
// the largest true-cell extent inside the boundary.
func Tessellate(boundary orb.Geometry, assets []AssetPoint, params Params) (p *Partition, err error) {
	defer recoverGeosError(&err)

	ctx := geos.NewContext()

	bGeom, err := prepareBoundary(ctx, boundary, len(assets))
	if err != nil {
		return nil, err
	}

	// Filter: owners below the asset threshold take no further part.
	retained, labels := filterOwners(assets, params.MinAssetsPerOwner)

	// Dedup: collapse near-coincident points so the diagram stays well
	// conditioned. Lossy on purpose.
	sites := dedupeSites(retained, params.DedupEpsilon)

	counts := make(map[string]int)
	for _, a := range retained {
		counts[a.OwnerID]++
	}
	siteOwners := make(map[string]int)
	for i := range sites {
		siteOwners[sites[i].ownerID]++
	}

	// Owners whose every point collapsed into a rival's site have nothing
	// to tessellate. Surface and drop them.
	var warnings []Finding
	ownerIDs := sortedKeys(counts)
	for _, id := range ownerIDs {
		if siteOwners[id] == 0 {
			warnings = append(warnings, Finding{
				OwnerID:  id,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("all %d assets collapsed into other owners' sites during deduplication; owner dropped", counts[id]),
			})
		}
	}

	switch len(siteOwners) {
	case 0:
		return nil, stageErr(StageFilter, len(counts), len(retained), ErrInsufficientOwners)
	case 1:
		// Degenerate but well-defined: a single owner serves the whole
		// boundary. The Voronoi builder is undefined below 2 sites, so
		// this path never reaches it.
		return singleOwnerPartition(bGeom, sites[0].ownerID, labels, counts, retained, warnings)
	}
	if len(sites) < 2 {
		return nil, stageErr(StageTessellate, len(siteOwners), len(retained), ErrInsufficientOwners)
	}

	// Tessellate on the inflated finite frame.
	bounds := bGeom.Bounds()
	frame := boxPolygon(ctx,
		bounds.MinX-params.CanvasMargin, bounds.MinY-params.CanvasMargin,
		bounds.MaxX+params.CanvasMargin, bounds.MaxY+params.CanvasMargin)

	ptGeoms := make([]*geos.Geom, len(sites))
	for i, s := range sites {
		ptGeoms[i] = ctx.NewPoint([]float64{s.pt[0], s.pt[1]})
	}
	diagram := ctx.NewCollection(geos.TypeIDMultiPoint, ptGeoms).VoronoiDiagram(frame, 0, 0)
	cells := polygonalComponents(diagram)
	if len(cells) != len(sites) {
		return nil, stageErr(StageTessellate, len(siteOwners), len(retained),
			fmt.Errorf("diagram produced %d cells for %d sites", len(cells), len(sites)))
	}

	// Attribute: every raw cell contains exactly one site by construction,
	// and the nearest site to any interior point of a cell is that cell's
	// own site, so a nearest-neighbor lookup on the cell centroid resolves
	// ownership without a quadratic scan.
	cellsByOwner, err := attributeCells(ctx, cells, sites, frame, len(siteOwners), len(retained))
	if err != nil {
		return nil, err
	}

	// Dissolve + clip, fanned out per owner. Each task gets a private GEOS
	// context and its cells as WKB; nothing mutable is shared.
	owners, dropWarnings, err := dissolveAndClip(bGeom, cellsByOwner, labels, counts)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, dropWarnings...)

	return &Partition{Owners: owners, Retained: retained, Warnings: warnings}, nil
}

// prepareBoundary parses and, if necessary, repairs the boundary geometry.
func prepareBoundary(ctx *geos.Context, boundary orb.Geometry, points int) (*geos.Geom, error) {
	if boundary == nil {
		return nil, stageErr(StageTessellate, 0, points, ErrInvalidBoundary)
	}
	switch boundary.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return nil, stageErr(StageTessellate, 0, points,
			fmt.Errorf("%w: geometry type %s", ErrInvalidBoundary, boundary.GeoJSONType()))
	}
	bGeom, err := geosFromOrb(ctx, boundary)
	if err != nil {
		return nil, stageErr(StageTessellate, 0, points, fmt.Errorf("%w: %v", ErrInvalidBoundary, err))
	}
	if !bGeom.IsValid() {
		bGeom = bGeom.MakeValid()
	}
	if bGeom == nil || bGeom.IsEmpty() || !bGeom.IsValid() || bGeom.Area() == 0 {
		return nil, stageErr(StageTessellate, 0, points, ErrInvalidBoundary)
	}
	return bGeom, nil
}

// filterOwners drops owners with fewer than minAssets assets and returns
// the survivors sorted by (ownerID, id) together with the owner labels.
func filterOwners(assets []AssetPoint, minAssets int) ([]AssetPoint, map[string]string) {
	counts := make(map[string]int)
	for _, a := range assets {
		counts[a.OwnerID]++
	}

	labels := make(map[string]string)
	retained := make([]AssetPoint, 0, len(assets))
	for _, a := range assets {
		if counts[a.OwnerID] < minAssets {
			continue
		}
		retained = append(retained, a)
		if labels[a.OwnerID] == "" {
			labels[a.OwnerID] = a.OwnerLabel
		}
	}
	for id, label := range labels {
		if label == "" {
			labels[id] = "SUB-" + id
		}
	}

	sort.Slice(retained, func(i, j int) bool {
		if retained[i].OwnerID != retained[j].OwnerID {
			return retained[i].OwnerID < retained[j].OwnerID
		}
		return retained[i].ID < retained[j].ID
	})
	return retained, labels
}

// dedupeSites collapses points within epsilon of each other onto a single
// representative via grid snapping. Input must already be sorted, so the
// surviving representative of each grid cell is deterministic.
func dedupeSites(retained []AssetPoint, epsilon float64) []*site {
	type gridKey struct{ ix, iy int64 }
	seen := make(map[gridKey]bool)
	sites := make([]*site, 0, len(retained))
	for _, a := range retained {
		if epsilon > 0 {
			key := gridKey{
				ix: int64(math.Round(a.X / epsilon)),
				iy: int64(math.Round(a.Y / epsilon)),
			}
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		sites = append(sites, &site{ownerID: a.OwnerID, pt: a.Point()})
	}
	return sites
}

// attributeCells assigns each raw Voronoi cell to the owner of the site it
// contains.
func attributeCells(ctx *geos.Context, cells []*geos.Geom, sites []*site, frame *geos.Geom, owners, points int) (map[string][]*geos.Geom, error) {
	// Sites outside the frame (owners whose assets sit far from the
	// boundary) still get cells: GEOS grows the clip envelope to cover all
	// input sites, so the index bound has to grow the same way.
	fb := frame.Bounds()
	bound := orb.Bound{
		Min: orb.Point{fb.MinX, fb.MinY},
		Max: orb.Point{fb.MaxX, fb.MaxY},
	}
	for _, s := range sites {
		bound = bound.Extend(s.pt)
	}
	qt := quadtree.New(bound)
	for i := range sites {
		if err := qt.Add(sites[i]); err != nil {
			return nil, stageErr(StageAttribute, owners, points, fmt.Errorf("indexing sites: %w", err))
		}
	}

	cellsByOwner := make(map[string][]*geos.Geom)
	for _, cell := range cells {
		c := cell.Centroid()
		nearest, ok := qt.Find(orb.Point{c.X(), c.Y()}).(*site)
		if !ok {
			return nil, stageErr(StageAttribute, owners, points, fmt.Errorf("no site found for cell"))
		}
		if !cell.Covers(ctx.NewPoint([]float64{nearest.pt[0], nearest.pt[1]})) {
			return nil, stageErr(StageAttribute, owners, points,
				fmt.Errorf("cell does not cover its attributed site at (%.3f, %.3f)", nearest.pt[0], nearest.pt[1]))
		}
		cellsByOwner[nearest.ownerID] = append(cellsByOwner[nearest.ownerID], cell)
	}
	return cellsByOwner, nil
}

// dissolveAndClip unions each owner's cells and intersects the result with
// the boundary. Owners are processed in sorted order and the work fans out
// across a bounded worker pool; each task runs on its own GEOS context.
func dissolveAndClip(bGeom *geos.Geom, cellsByOwner map[string][]*geos.Geom, labels map[string]string, counts map[string]int) ([]OwnerGeometry, []Finding, error) {
	ownerIDs := sortedKeys(cellsByOwner)

	boundaryWKB := bGeom.ToWKB()
	cellWKBs := make([][][]byte, len(ownerIDs))
	for i, id := range ownerIDs {
		for _, cell := range cellsByOwner[id] {
			cellWKBs[i] = append(cellWKBs[i], cell.ToWKB())
		}
	}

	results := make([]OwnerGeometry, len(ownerIDs))
	empty := make([]bool, len(ownerIDs))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ownerIDs {
		g.Go(func() (err error) {
			defer recoverGeosError(&err)

			wctx := geos.NewContext()
			b, err := wctx.NewGeomFromWKB(boundaryWKB)
			if err != nil {
				return stageErr(StageDissolve, len(ownerIDs), counts[id], fmt.Errorf("owner %s: %w", id, err))
			}
			cells := make([]*geos.Geom, len(cellWKBs[i]))
			for j, wkb := range cellWKBs[i] {
				if cells[j], err = wctx.NewGeomFromWKB(wkb); err != nil {
					return stageErr(StageDissolve, len(ownerIDs), counts[id], fmt.Errorf("owner %s: %w", id, err))
				}
			}

			dissolved := wctx.NewCollection(geos.TypeIDGeometryCollection, cells).UnaryUnion()
			clipped := dissolved.Intersection(b)
			if clipped == nil || clipped.IsEmpty() || clipped.Area() == 0 {
				empty[i] = true
				return nil
			}

			geom, err := orbFromGeos(clipped)
			if err != nil {
				return stageErr(StageClip, len(ownerIDs), counts[id], fmt.Errorf("owner %s: %w", id, err))
			}
			results[i] = OwnerGeometry{
				OwnerID:    id,
				OwnerLabel: labels[id],
				Geometry:   geom,
				AssetCount: counts[id],
				AreaM2:     clipped.Area(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var owners []OwnerGeometry
	var warnings []Finding
	for i, id := range ownerIDs {
		if empty[i] {
			// All of this owner's cells fall outside the boundary. Not
			// fatal: drop the owner and surface it for review.
			warnings = append(warnings, Finding{
				OwnerID:  id,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("clipped geometry is empty; all %d assets lie outside the boundary", counts[id]),
			})
			continue
		}
		owners = append(owners, results[i])
	}
	return owners, warnings, nil
}

// singleOwnerPartition short-circuits the one-owner case: its territory is
// the entirety of the boundary.
func singleOwnerPartition(bGeom *geos.Geom, ownerID string, labels map[string]string, counts map[string]int, retained []AssetPoint, warnings []Finding) (*Partition, error) {
	geom, err := orbFromGeos(bGeom)
	if err != nil {
		return nil, stageErr(StageClip, 1, len(retained), err)
	}
	return &Partition{
		Owners: []OwnerGeometry{{
			OwnerID:    ownerID,
			OwnerLabel: labels[ownerID],
			Geometry:   geom,
			AssetCount: counts[ownerID],
			AreaM2:     bGeom.Area(),
		}},
		Retained: retained,
		Warnings: warnings,
	}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
