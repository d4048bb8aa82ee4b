package territory

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runPipeline(t *testing.T, boundary orb.Geometry, assets []AssetPoint, params Params) *Result {
	t.Helper()
	result, err := Run(boundary, assets, params)
	require.NoError(t, err)
	return result
}

func TestValidate_ConcreteScenario(t *testing.T) {
	// 10x10 square split at x=5: containment 100%, fragmentation 1.0.
	boundary := squareBoundary(10)
	assets := []AssetPoint{
		asset("a1", "owner1", 2, 5),
		asset("a2", "owner2", 8, 5),
	}

	result := runPipeline(t, boundary, assets, testParams())
	require.Len(t, result.Territories, 2)

	report := result.Report
	assert.Equal(t, 100.0, report.ContainmentRatePercent)
	assert.Equal(t, 1.0, report.FragmentationIndex)
	assert.NotEmpty(t, report.RunID)
	assert.Contains(t, report.Verdict, "consistent")
}

func TestScoreContainment_SeamTolerance(t *testing.T) {
	// Hand-built half-square territories sharing the x=5 seam.
	left := Territory{OwnerID: "owner1", Geometry: orb.Polygon{{
		{0, 0}, {5, 0}, {5, 10}, {0, 10}, {0, 0},
	}}}
	right := Territory{OwnerID: "owner2", Geometry: orb.Polygon{{
		{5, 0}, {10, 0}, {10, 10}, {5, 10}, {5, 0},
	}}}
	byOwner := map[string]*Territory{"owner1": &left, "owner2": &right}

	points := []AssetPoint{
		asset("a1", "owner1", 2, 5),
		asset("a2", "owner1", 5, 5),        // exactly on the seam
		asset("a3", "owner1", 5.000001, 5), // a hair across it, within epsilon
		asset("b1", "owner2", 8, 5),
	}

	report := &ValidationReport{}
	err := scoreContainment(report, byOwner, points, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 100.0, report.ContainmentRatePercent)
}

func TestScoreContainment_MisplacedPointFailsWithoutTolerance(t *testing.T) {
	left := Territory{OwnerID: "owner1", Geometry: orb.Polygon{{
		{0, 0}, {5, 0}, {5, 10}, {0, 10}, {0, 0},
	}}}
	byOwner := map[string]*Territory{"owner1": &left}

	// Deep inside the other half: no tolerance saves this one.
	points := []AssetPoint{
		asset("a1", "owner1", 2, 5),
		asset("a2", "owner1", 8, 5),
	}

	report := &ValidationReport{}
	err := scoreContainment(report, byOwner, points, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 50.0, report.ContainmentRatePercent)

	var critical *Finding
	for i := range report.Findings {
		if report.Findings[i].Severity == SeverityCritical {
			critical = &report.Findings[i]
		}
	}
	require.NotNil(t, critical, "sub-98%% containment must raise a critical finding")
}

func TestValidate_FragmentExceptionsReported(t *testing.T) {
	boundary := rectBoundary(30, 10)

	result := runPipeline(t, boundary, interleavedAssets(), testParams())
	report := result.Report

	assert.Greater(t, report.FragmentationIndex, 1.0)

	// Owner A's minor-island assets are exceptions, not containment
	// failures: they show up as a WARNING finding instead of dragging the
	// rate down.
	var fragmentFinding *Finding
	for i := range report.Findings {
		f := &report.Findings[i]
		if f.OwnerID == "A" && strings.Contains(f.Message, "minor fragments") {
			fragmentFinding = f
		}
	}
	require.NotNil(t, fragmentFinding, "expected a minor-fragment exception finding for owner A")
	assert.Equal(t, SeverityWarning, fragmentFinding.Severity)
}

func TestValidate_FragmentationAlert(t *testing.T) {
	boundary := rectBoundary(30, 10)

	// Index here is (2+1)/2 = 1.5, exactly at the alert threshold.
	result := runPipeline(t, boundary, interleavedAssets(), testParams())

	var critical *Finding
	for i := range result.Report.Findings {
		f := &result.Report.Findings[i]
		if f.Severity == SeverityCritical && f.OwnerID == "" && strings.Contains(f.Message, "fragmentation index") {
			critical = f
		}
	}
	require.NotNil(t, critical, "expected a run-level fragmentation alert")
}

func TestValidate_SeparationCalibration(t *testing.T) {
	// Two tight, well-separated clusters give a silhouette near 1.0,
	// which must clamp to 100% confidence.
	boundary := squareBoundary(100)
	assets := []AssetPoint{
		asset("a1", "A", 10, 10),
		asset("a2", "A", 11, 10),
		asset("a3", "A", 10, 11),
		asset("b1", "B", 90, 90),
		asset("b2", "B", 91, 90),
		asset("b3", "B", 90, 91),
	}

	result := runPipeline(t, boundary, assets, testParams())
	report := result.Report

	assert.Greater(t, report.SilhouetteScore, 0.9)
	assert.Equal(t, 100.0, report.SeparationScorePercent)
}

func TestValidate_ReportDeterminism(t *testing.T) {
	boundary := squareBoundary(100)
	var assets []AssetPoint
	// Enough points to trip the sampling path.
	for i := 0; i < 120; i++ {
		x := float64(i%11) * 2
		y := float64(i/11) * 2
		if i%2 == 0 {
			assets = append(assets, asset(assetID("a", i), "A", 10+x, 10+y))
		} else {
			assets = append(assets, asset(assetID("b", i), "B", 70+x, 70+y))
		}
	}

	r1 := runPipeline(t, boundary, assets, testParams())
	r2 := runPipeline(t, boundary, assets, testParams())

	// Everything except the run id and timestamp must be identical.
	opts := []cmp.Option{
		cmp.FilterPath(func(p cmp.Path) bool {
			last := p.Last().String()
			return last == ".RunID" || last == ".GeneratedAt"
		}, cmp.Ignore()),
	}
	if diff := cmp.Diff(r1.Report, r2.Report, opts...); diff != "" {
		t.Errorf("reports differ between identical runs (-first +second):\n%s", diff)
	}
}

func TestSamplePoints(t *testing.T) {
	var points []AssetPoint
	for i := 0; i < 500; i++ {
		points = append(points, asset(assetID("p", i), "A", float64(i), 0))
	}

	s1 := samplePoints(points, 0.2)
	s2 := samplePoints(points, 0.2)

	if len(s1) != 100 {
		t.Errorf("sample size = %d, want 100", len(s1))
	}
	if diff := cmp.Diff(s1, s2); diff != "" {
		t.Errorf("sampling not deterministic:\n%s", diff)
	}

	// Just past the threshold the fraction applies as-is, with no floor
	// pulling the sample back up.
	if got := samplePoints(points[:120], 0.2); len(got) != 24 {
		t.Errorf("sample of 120 = %d points, want 24", len(got))
	}

	// At or below the threshold the full set is used untouched.
	small := points[:50]
	if got := samplePoints(small, 0.2); len(got) != 50 {
		t.Errorf("small input sampled to %d, want all 50", len(got))
	}
}

func TestSilhouette_SingleClusterUndefined(t *testing.T) {
	report := &ValidationReport{}
	points := []AssetPoint{
		asset("a1", "A", 0, 0),
		asset("a2", "A", 1, 1),
	}
	scoreSeparation(report, points, 1)
	if report.SeparationScorePercent != 0 {
		t.Errorf("single-cluster separation = %f, want 0", report.SeparationScorePercent)
	}
}

func assetID(prefix string, i int) string {
	return fmt.Sprintf("%s-%03d", prefix, i)
}
