package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/Irandisilvaa/gridScope-core/territory"
)

// App encapsulates the batch run: configuration, resolved inputs, and the
// output sinks. All geometry work happens inside the territory package; the
// app only moves bytes.
type App struct {
	Config *territory.Config

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	BoundaryFile string
	AssetsFile   string
	OutputFile   string
	ReportFile   string
	RenderFile   string
	NoCache      bool
	PrintReport  bool
}

// AppOptions carries parsed CLI flags into the App.
type AppOptions struct {
	ConfigFile   string
	BoundaryFile string
	AssetsFile   string
	OutputFile   string
	ReportFile   string
	RenderFile   string
	NoCache      bool
	PrintReport  bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.BoundaryFile = opts.BoundaryFile
	a.AssetsFile = opts.AssetsFile
	a.OutputFile = opts.OutputFile
	a.ReportFile = opts.ReportFile
	a.RenderFile = opts.RenderFile
	a.NoCache = opts.NoCache
	a.PrintReport = opts.PrintReport
}

// Run loads the inputs, executes the partition pipeline once, and writes
// the territory collection and validation report.
func (a *App) Run() error {
	config, err := territory.LoadConfig(a.ConfigFile)
	if err != nil {
		return err
	}
	a.Config = config
	a.applyOverrides()

	params, err := config.EngineParams()
	if err != nil {
		return err
	}

	boundary, err := territory.LoadBoundary(config.Inputs.Boundary)
	if err != nil {
		return err
	}
	assets, err := territory.LoadAssets(config.Inputs.Assets)
	if err != nil {
		return err
	}
	log.Printf("loaded boundary from %s and %d assets from %s",
		config.Inputs.Boundary, len(assets), config.Inputs.Assets)

	var store territory.ResultStore
	if config.Cache.Enabled && !a.NoCache {
		dirStore, err := territory.NewDirStore(config.Cache.Dir)
		if err != nil {
			return err
		}
		store = dirStore
	}

	result, err := territory.RunCached(store, boundary, assets, params)
	if err != nil {
		return err
	}

	var proj *territory.Projection
	if config.CRS.ExportGeographic {
		if proj, err = territory.NewUTMProjection(config.CRS.UTMZone, config.CRS.Southern); err != nil {
			return err
		}
	}

	if config.Outputs.Territories != "" {
		if err := territory.WriteTerritories(config.Outputs.Territories, result.Territories, proj); err != nil {
			return err
		}
		log.Printf("wrote %d territories to %s", len(result.Territories), config.Outputs.Territories)
	}
	if config.Outputs.Report != "" {
		if err := territory.WriteReport(config.Outputs.Report, result.Report); err != nil {
			return err
		}
		log.Printf("wrote validation report to %s", config.Outputs.Report)
	}
	if config.Outputs.Map != "" {
		if err := territory.WriteMap(config.Outputs.Map, boundary, result.Territories); err != nil {
			return err
		}
		log.Printf("rendered territory map to %s", config.Outputs.Map)
	}

	a.printSummary(result)
	return nil
}

// applyOverrides lets CLI flags win over config file values.
func (a *App) applyOverrides() {
	if a.BoundaryFile != "" {
		a.Config.Inputs.Boundary = a.BoundaryFile
	}
	if a.AssetsFile != "" {
		a.Config.Inputs.Assets = a.AssetsFile
	}
	if a.OutputFile != "" {
		a.Config.Outputs.Territories = a.OutputFile
	}
	if a.ReportFile != "" {
		a.Config.Outputs.Report = a.ReportFile
	}
	if a.RenderFile != "" {
		a.Config.Outputs.Map = a.RenderFile
	}
}

func (a *App) printSummary(result *territory.Result) {
	report := result.Report
	fmt.Printf("\nTerritories: %d\n", len(result.Territories))
	fmt.Printf("Containment rate:  %.2f%%\n", report.ContainmentRatePercent)
	fmt.Printf("Fragmentation:     %.2f (ideal 1.0)\n", report.FragmentationIndex)
	fmt.Printf("Separation score:  %.2f%%\n", report.SeparationScorePercent)
	fmt.Printf("Verdict: %s\n", report.Verdict)

	if a.PrintReport {
		data, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			fmt.Println(string(data))
		}
	}
}
