package territory

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfig_Full(t *testing.T) {
	path := writeConfig(t, `
crs:
  utmZone: 24
  southern: true
  exportGeographic: true
inputs:
  boundary: boundary.geojson
  assets: assets.geojson
outputs:
  territories: territories.geojson
  report: validation.json
params:
  minAssetsPerOwner: 8
  canvasMarginMeters: 5000
  dedupEpsilonMeters: 1.0
  sampleFraction: 0.3
  fragmentPolicy: discard
cache:
  enabled: true
  dir: .territory-cache
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	params, err := config.EngineParams()
	if err != nil {
		t.Fatalf("EngineParams: %v", err)
	}
	if params.MinAssetsPerOwner != 8 {
		t.Errorf("minAssetsPerOwner = %d, want 8", params.MinAssetsPerOwner)
	}
	if params.CanvasMargin != 5000 {
		t.Errorf("canvasMargin = %f, want 5000", params.CanvasMargin)
	}
	if params.FragmentPolicy != FragmentDiscard {
		t.Errorf("fragmentPolicy = %q, want discard", params.FragmentPolicy)
	}
	// Unset fields inherit defaults.
	if params.ContainmentEpsilon != DefaultParams().ContainmentEpsilon {
		t.Errorf("containmentEpsilon = %f, want default", params.ContainmentEpsilon)
	}
	if !config.CRS.ExportGeographic || config.CRS.UTMZone != 24 || !config.CRS.Southern {
		t.Errorf("crs config mangled: %+v", config.CRS)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing config loaded without error")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"no boundary": `
inputs:
  assets: assets.geojson
`,
		"no assets": `
inputs:
  boundary: boundary.geojson
`,
		"bad zone": `
crs:
  utmZone: 99
  exportGeographic: true
inputs:
  boundary: b.geojson
  assets: a.geojson
`,
		"bad fragment policy": `
inputs:
  boundary: b.geojson
  assets: a.geojson
params:
  fragmentPolicy: reassign
`,
		"zero margin": `
inputs:
  boundary: b.geojson
  assets: a.geojson
params:
  canvasMarginMeters: 0
`,
		"bad sample fraction": `
inputs:
  boundary: b.geojson
  assets: a.geojson
params:
  sampleFraction: 1.5
`,
		"cache without dir": `
inputs:
  boundary: b.geojson
  assets: a.geojson
cache:
  enabled: true
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, content)); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
