package territory

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

// interleavedAssets builds the classic fragmentation scenario: owner A has
// two clusters at both ends of a corridor with owner B's cluster in the
// middle, so A's dissolved territory splits into two islands.
func interleavedAssets() []AssetPoint {
	return []AssetPoint{
		asset("a1", "A", 2, 5),
		asset("a2", "A", 3, 5),
		asset("a3", "A", 27, 5),
		asset("a4", "A", 28, 5),
		asset("b1", "B", 12, 5),
		asset("b2", "B", 13, 5),
		asset("b3", "B", 14, 5),
	}
}

func TestResolveFragments_InterleavedOwnersDetected(t *testing.T) {
	boundary := rectBoundary(30, 10)

	p, err := Tessellate(boundary, interleavedAssets(), testParams())
	if err != nil {
		t.Fatalf("Tessellate: %v", err)
	}

	territories, index, err := ResolveFragments(p, FragmentReport)
	if err != nil {
		t.Fatalf("ResolveFragments: %v", err)
	}

	if index <= 1 {
		t.Errorf("fragmentation index = %f, want > 1 for interleaved owners", index)
	}

	var a, b *Territory
	for i := range territories {
		switch territories[i].OwnerID {
		case "A":
			a = &territories[i]
		case "B":
			b = &territories[i]
		}
	}
	if a == nil || b == nil {
		t.Fatal("missing owner in output")
	}

	if !a.IsFragmented {
		t.Error("owner A not flagged as fragmented")
	}
	if len(a.Fragments) != 1 {
		t.Fatalf("owner A fragments = %d, want 1 minor island", len(a.Fragments))
	}
	if b.IsFragmented {
		t.Error("owner B wrongly flagged as fragmented")
	}

	// Canonical component must be the largest one.
	if a.AreaM2 < a.Fragments[0].AreaM2 {
		t.Errorf("canonical area %f smaller than fragment area %f", a.AreaM2, a.Fragments[0].AreaM2)
	}

	// Fragments are reported, not discarded: canonical + fragments + B
	// still cover the boundary.
	total := a.AreaM2 + a.Fragments[0].AreaM2 + b.AreaM2
	if math.Abs(total-300) > 1e-4 {
		t.Errorf("total area = %f, want 300", total)
	}
}

func TestResolveFragments_DiscardPolicyDropsMinorIslands(t *testing.T) {
	boundary := rectBoundary(30, 10)

	p, err := Tessellate(boundary, interleavedAssets(), testParams())
	if err != nil {
		t.Fatalf("Tessellate: %v", err)
	}

	territories, index, err := ResolveFragments(p, FragmentDiscard)
	if err != nil {
		t.Fatalf("ResolveFragments: %v", err)
	}

	for _, tr := range territories {
		if len(tr.Fragments) != 0 {
			t.Errorf("owner %s kept %d fragments under discard policy", tr.OwnerID, len(tr.Fragments))
		}
	}
	// The index still reports the truth even when fragments are dropped.
	if index <= 1 {
		t.Errorf("fragmentation index = %f, want > 1", index)
	}
	for _, tr := range territories {
		if tr.OwnerID == "A" && !tr.IsFragmented {
			t.Error("discard policy must not clear the fragmented flag")
		}
	}
}

func TestResolveFragments_ContiguousOwnersScoreOne(t *testing.T) {
	boundary := squareBoundary(10)
	assets := []AssetPoint{
		asset("a1", "owner1", 2, 5),
		asset("a2", "owner2", 8, 5),
	}

	p, err := Tessellate(boundary, assets, testParams())
	if err != nil {
		t.Fatalf("Tessellate: %v", err)
	}
	territories, index, err := ResolveFragments(p, FragmentReport)
	if err != nil {
		t.Fatalf("ResolveFragments: %v", err)
	}

	if index != 1.0 {
		t.Errorf("fragmentation index = %f, want 1.0", index)
	}
	for _, tr := range territories {
		if tr.IsFragmented {
			t.Errorf("owner %s flagged fragmented on a clean split", tr.OwnerID)
		}
	}
}

func TestExplode(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	multi := orb.MultiPolygon{poly, {{{2, 2}, {3, 2}, {3, 3}, {2, 2}}}}

	if got := explode(poly); len(got) != 1 {
		t.Errorf("explode(Polygon) = %d components, want 1", len(got))
	}
	if got := explode(multi); len(got) != 2 {
		t.Errorf("explode(MultiPolygon) = %d components, want 2", len(got))
	}
	if got := explode(orb.Collection{poly, multi}); len(got) != 3 {
		t.Errorf("explode(Collection) = %d components, want 3", len(got))
	}
	if got := explode(orb.Point{0, 0}); got != nil {
		t.Errorf("explode(Point) = %v, want nil", got)
	}
}
