package territory

import (
	"time"

	"github.com/paulmach/orb"
)

// AssetPoint is one piece of owned distribution equipment in a metric
// projected CRS. Coordinates are meters. The ingestion layer is responsible
// for mapping whatever columns the source carries onto this schema before
// the engine runs; the engine never guesses column names.
type AssetPoint struct {
	ID         string  `json:"id"`
	OwnerID    string  `json:"ownerId"`
	OwnerLabel string  `json:"ownerLabel"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// Point returns the asset location as an orb.Point.
func (a AssetPoint) Point() orb.Point {
	return orb.Point{a.X, a.Y}
}

// Fragment is a disconnected minor component of an owner's clipped
// geometry. Fragments are retained as reported exceptions; they are never
// merged into the canonical geometry and never reassigned to another owner.
type Fragment struct {
	Geometry orb.Polygon `json:"-"`
	AreaM2   float64     `json:"areaM2"`
}

// Territory is the exclusive service area computed for one owner. Produced
// once per run and never mutated afterwards.
type Territory struct {
	OwnerID    string `json:"ownerId"`
	OwnerLabel string `json:"ownerLabel"`

	// Geometry is the canonical (largest connected) component of the
	// owner's dissolved and clipped cells.
	Geometry orb.Geometry `json:"-"`

	// Fragments holds the remaining minor components, largest first.
	Fragments []Fragment `json:"fragments,omitempty"`

	AssetCount   int     `json:"assetCount"`
	AreaM2       float64 `json:"areaM2"`
	IsExternal   bool    `json:"isExternal"`
	IsFragmented bool    `json:"isFragmented"`
}

// Severity classifies a validation finding.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Finding is one per-owner or run-level observation from validation.
// OwnerID is empty for run-level findings.
type Finding struct {
	OwnerID  string   `json:"ownerId,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidationReport summarizes the geometric quality of a partition. It is
// derived strictly after the Territory set exists and is advisory: consumers
// of Territory data do not depend on it.
type ValidationReport struct {
	RunID       string    `json:"runId"`
	GeneratedAt time.Time `json:"generatedAt"`

	FragmentationIndex     float64 `json:"fragmentationIndex"`
	ContainmentRatePercent float64 `json:"containmentRatePercent"`
	SeparationScorePercent float64 `json:"separationScorePercent"`

	// SilhouetteScore is the raw clustering coefficient before calibration
	// onto the 0-100% separation scale.
	SilhouetteScore float64 `json:"silhouetteScore"`

	Findings []Finding `json:"findings"`
	Verdict  string    `json:"verdict"`
}

// FragmentPolicy controls what happens to minor disconnected components of
// an owner's territory.
type FragmentPolicy string

const (
	// FragmentReport keeps minor fragments attached to the owner as
	// reported exceptions.
	FragmentReport FragmentPolicy = "report"

	// FragmentDiscard drops minor fragments from the output entirely,
	// keeping only each owner's largest component.
	FragmentDiscard FragmentPolicy = "discard"
)

// Params are the tunable inputs of a partition run. Zero values are not
// usable; start from DefaultParams.
type Params struct {
	// MinAssetsPerOwner drops owners with fewer assets before tessellation.
	MinAssetsPerOwner int `json:"minAssetsPerOwner"`

	// CanvasMargin inflates the boundary bounding box to form the finite
	// tessellation frame, in meters. Invariant: it must exceed the largest
	// true Voronoi cell extent that can occur inside the boundary,
	// otherwise edge cells close too early and the clipped partition
	// develops gaps along the boundary.
	CanvasMargin float64 `json:"canvasMargin"`

	// DedupEpsilon collapses near-coincident points to a single site, in
	// meters. Deliberately lossy: it trades exactness for well-conditioned
	// cells.
	DedupEpsilon float64 `json:"dedupEpsilon"`

	// ContainmentEpsilon is the seam tolerance of the containment check,
	// in meters. A point within this distance of its owner's geometry
	// counts as contained.
	ContainmentEpsilon float64 `json:"containmentEpsilon"`

	// SampleFraction of retained points used for the separation score when
	// more than silhouetteSampleThreshold points are retained.
	SampleFraction float64 `json:"sampleFraction"`

	FragmentPolicy FragmentPolicy `json:"fragmentPolicy"`
}

// DefaultParams returns the parameter set used by the production pipeline.
func DefaultParams() Params {
	return Params{
		MinAssetsPerOwner:  5,
		CanvasMargin:       2000,
		DedupEpsilon:       0.5,
		ContainmentEpsilon: 0.01,
		SampleFraction:     0.2,
		FragmentPolicy:     FragmentReport,
	}
}

// Result bundles the two outputs of a run.
type Result struct {
	Territories []Territory       `json:"territories"`
	Report      *ValidationReport `json:"report"`
}
