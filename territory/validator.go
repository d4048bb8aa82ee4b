package territory

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/twpayne/go-geos"
	"gonum.org/v1/gonum/stat"
)

// Thresholds from the validation protocol: a partition with containment
// above 98% is geometrically consistent, and a fragmentation index below
// 1.5 indicates a well-organized registry.
const (
	containmentConsistentPct = 98.0
	fragmentationAlertIndex  = 1.5
)

// silhouetteSampleThreshold is the point count below which the separation
// score uses every point instead of sampling.
const silhouetteSampleThreshold = 100

// silhouetteSeed fixes the sampling PRNG so the report is reproducible.
const silhouetteSeed = 42

// silhouetteCalibrationCeiling maps the raw silhouette coefficient onto the
// 0-100% boundary-definition confidence scale: 0.0 -> 0%, 0.6 and above ->
// 100%, linear in between. Interleaved distribution networks score 0.4-0.6
// on clean data, so 0.6 is treated as the practical ceiling.
const silhouetteCalibrationCeiling = 0.6

// Validate checks containment, fragmentation, and spatial separation
// quality of a finished partition and emits a single report. It is a pure
// function of (territories, points, params) apart from the run id and
// timestamp stamped on the report.
//
// fragmentationIndex comes from ResolveFragments; extra carries findings
// accumulated by earlier stages (degenerate owners, external owners) so the
// report is the one place an operator has to look.
func Validate(territories []Territory, retained []AssetPoint, fragmentationIndex float64, params Params, extra []Finding) (r *ValidationReport, err error) {
	defer recoverGeosError(&err)

	if len(territories) == 0 {
		return nil, stageErr(StageValidate, 0, len(retained), fmt.Errorf("no territories to validate"))
	}

	report := &ValidationReport{
		RunID:              uuid.NewString(),
		GeneratedAt:        time.Now().UTC(),
		FragmentationIndex: fragmentationIndex,
	}
	report.Findings = append(report.Findings, extra...)

	// Restrict scoring to points whose owner made it into the output;
	// points of filtered or degenerate owners would distort the statistic.
	byOwner := make(map[string]*Territory, len(territories))
	for i := range territories {
		byOwner[territories[i].OwnerID] = &territories[i]
	}
	points := make([]AssetPoint, 0, len(retained))
	for _, a := range retained {
		if byOwner[a.OwnerID] != nil {
			points = append(points, a)
		}
	}
	if len(points) == 0 {
		return nil, stageErr(StageValidate, len(territories), len(retained), fmt.Errorf("no retained points for scoring"))
	}

	if err := scoreContainment(report, byOwner, points, params.ContainmentEpsilon); err != nil {
		return nil, err
	}
	scoreFragmentation(report, territories)
	scoreSeparation(report, points, params.SampleFraction)

	report.Verdict = verdict(report)
	return report, nil
}

// scoreContainment tests every retained point against its owner's canonical
// geometry. A point within epsilon of the geometry counts as contained,
// covering seam points on shared Voronoi edges. Points that instead land in
// one of the owner's minor fragments are counted as exceptions and reported,
// not as containment failures of the partition.
func scoreContainment(report *ValidationReport, byOwner map[string]*Territory, points []AssetPoint, epsilon float64) error {
	ctx := geos.NewContext()

	canonical := make(map[string]*geos.Geom, len(byOwner))
	fragments := make(map[string][]*geos.Geom, len(byOwner))
	for id, t := range byOwner {
		g, err := geosFromOrb(ctx, t.Geometry)
		if err != nil {
			return stageErr(StageValidate, len(byOwner), len(points), fmt.Errorf("owner %s: %w", id, err))
		}
		canonical[id] = g
		for _, f := range t.Fragments {
			fg, err := geosFromOrb(ctx, f.Geometry)
			if err != nil {
				return stageErr(StageValidate, len(byOwner), len(points), fmt.Errorf("owner %s fragment: %w", id, err))
			}
			fragments[id] = append(fragments[id], fg)
		}
	}

	matched := 0
	inFragment := make(map[string]int)
	for _, a := range points {
		pt := ctx.NewPoint([]float64{a.X, a.Y})
		g := canonical[a.OwnerID]
		if g.Covers(pt) || g.Distance(pt) <= epsilon {
			matched++
			continue
		}
		for _, fg := range fragments[a.OwnerID] {
			if fg.Covers(pt) || fg.Distance(pt) <= epsilon {
				inFragment[a.OwnerID]++
				break
			}
		}
	}
	report.ContainmentRatePercent = float64(matched) / float64(len(points)) * 100

	for _, id := range sortedKeys(inFragment) {
		report.Findings = append(report.Findings, Finding{
			OwnerID:  id,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%d assets sit in minor fragments outside the canonical territory", inFragment[id]),
		})
	}
	if report.ContainmentRatePercent < containmentConsistentPct {
		report.Findings = append(report.Findings, Finding{
			Severity: SeverityCritical,
			Message: fmt.Sprintf("containment rate %.2f%% below %.0f%%; partition is geometrically inconsistent (check CRS alignment)",
				report.ContainmentRatePercent, containmentConsistentPct),
		})
	}
	return nil
}

// scoreFragmentation rates the fragmentation index and flags each
// fragmented owner.
func scoreFragmentation(report *ValidationReport, territories []Territory) {
	for _, t := range territories {
		if !t.IsFragmented {
			continue
		}
		minorArea := 0.0
		for _, f := range t.Fragments {
			minorArea += f.AreaM2
		}
		report.Findings = append(report.Findings, Finding{
			OwnerID:  t.OwnerID,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("territory split into %d islands (%.0f m² outside the canonical component)", len(t.Fragments)+1, minorArea),
		})
	}
	if report.FragmentationIndex >= fragmentationAlertIndex {
		report.Findings = append(report.Findings, Finding{
			Severity: SeverityCritical,
			Message: fmt.Sprintf("fragmentation index %.2f at or above %.1f; registry likely interleaves rival owners' assets",
				report.FragmentationIndex, fragmentationAlertIndex),
		})
	}
}

// scoreSeparation computes a silhouette-style clustering coefficient over a
// deterministic sample of asset points, using ownerId as the cluster label
// and Euclidean distance, then calibrates it onto a 0-100% confidence
// scale.
func scoreSeparation(report *ValidationReport, points []AssetPoint, sampleFraction float64) {
	sample := samplePoints(points, sampleFraction)

	byOwner := make(map[string][]coord)
	for _, a := range sample {
		byOwner[a.OwnerID] = append(byOwner[a.OwnerID], coord{a.X, a.Y})
	}
	if len(byOwner) < 2 {
		// Silhouette is undefined for a single cluster.
		report.SilhouetteScore = 0
		report.SeparationScorePercent = 0
		return
	}

	ownerIDs := sortedKeys(byOwner)
	scores := make([]float64, 0, len(sample))
	for _, id := range ownerIDs {
		cluster := byOwner[id]
		for i, p := range cluster {
			// Singleton clusters contribute 0, following the usual
			// convention.
			if len(cluster) == 1 {
				scores = append(scores, 0)
				continue
			}

			intra := 0.0
			for j, q := range cluster {
				if i == j {
					continue
				}
				intra += dist(p, q)
			}
			a := intra / float64(len(cluster)-1)

			b := math.Inf(1)
			for _, otherID := range ownerIDs {
				if otherID == id {
					continue
				}
				other := byOwner[otherID]
				sum := 0.0
				for _, q := range other {
					sum += dist(p, q)
				}
				if mean := sum / float64(len(other)); mean < b {
					b = mean
				}
			}

			if m := math.Max(a, b); m > 0 {
				scores = append(scores, (b-a)/m)
			} else {
				scores = append(scores, 0)
			}
		}
	}

	report.SilhouetteScore = stat.Mean(scores, nil)
	confidence := math.Max(0, report.SilhouetteScore) / silhouetteCalibrationCeiling * 100
	report.SeparationScorePercent = math.Min(100, confidence)
}

// samplePoints draws a deterministic fraction of the points once the total
// crosses the sampling threshold; at or below it every point is used.
// Points must arrive sorted so the shuffle is reproducible.
func samplePoints(points []AssetPoint, fraction float64) []AssetPoint {
	if len(points) <= silhouetteSampleThreshold || fraction <= 0 || fraction >= 1 {
		return points
	}
	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(silhouetteSeed))
	rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	n := int(float64(len(points)) * fraction)
	if n < 1 {
		n = 1
	}
	keep := idx[:n]
	sort.Ints(keep)
	sample := make([]AssetPoint, n)
	for i, k := range keep {
		sample[i] = points[k]
	}
	return sample
}

// verdict renders the report's bottom line.
func verdict(report *ValidationReport) string {
	if report.ContainmentRatePercent >= containmentConsistentPct &&
		report.FragmentationIndex < fragmentationAlertIndex {
		return "partition is geometrically consistent and the network is well organized"
	}
	if report.ContainmentRatePercent < containmentConsistentPct {
		return "partition has geometric inconsistencies; review CRS and owner/asset linkage"
	}
	return "partition is consistent but the registry interleaves owners; review asset linkage"
}

type coord [2]float64

func dist(p, q coord) float64 {
	return math.Hypot(p[0]-q[0], p[1]-q[1])
}
