package territory

import (
	"log"

	"github.com/paulmach/orb"
)

// Run executes the whole partition pipeline as a strict linear DAG:
//
//	Filter -> Dedup -> Tessellate -> Attribute -> Dissolve -> Clip ->
//	FragmentResolve -> AnomalyDetect -> Validate
//
// Any stage failure aborts the run; no partial territory data is returned.
// The engine performs no I/O and holds no state across runs: identical
// inputs and parameters produce geometry-equal output.
func Run(boundary orb.Geometry, assets []AssetPoint, params Params) (*Result, error) {
	partition, err := Tessellate(boundary, assets, params)
	if err != nil {
		return nil, err
	}
	log.Printf("partitioned %d owners from %d retained assets", len(partition.Owners), len(partition.Retained))

	territories, fragIndex, err := ResolveFragments(partition, params.FragmentPolicy)
	if err != nil {
		return nil, err
	}

	findings := append([]Finding(nil), partition.Warnings...)
	findings = append(findings, DetectExternalOwners(territories, partition.Retained, boundary)...)

	report, err := Validate(territories, partition.Retained, fragIndex, params, findings)
	if err != nil {
		return nil, err
	}
	log.Printf("validated run %s: containment %.2f%%, fragmentation %.2f, separation %.2f%%",
		report.RunID, report.ContainmentRatePercent, report.FragmentationIndex, report.SeparationScorePercent)

	return &Result{Territories: territories, Report: report}, nil
}

// RunCached is Run behind a memoization layer keyed by a content hash of
// (boundary, points, params). Cache errors are logged and ignored: a broken
// store never fails a run, it only costs recomputation.
func RunCached(store ResultStore, boundary orb.Geometry, assets []AssetPoint, params Params) (*Result, error) {
	key, err := Fingerprint(boundary, assets, params)
	if err != nil {
		return nil, err
	}

	if store != nil {
		if cached, ok, err := store.Load(key); err != nil {
			log.Printf("cache load for %s failed: %v", key, err)
		} else if ok {
			log.Printf("cache hit for %s", key)
			return cached, nil
		}
	}

	result, err := Run(boundary, assets, params)
	if err != nil {
		return nil, err
	}
	if store != nil {
		if err := store.Save(key, result); err != nil {
			log.Printf("cache save for %s failed: %v", key, err)
		}
	}
	return result, nil
}
