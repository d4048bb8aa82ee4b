package main

import (
	"flag"
	"fmt"
	"log"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile   = flag.String("config", "config.yaml", "Path to configuration file")
	boundaryFile = flag.String("boundary", "", "Boundary GeoJSON (overrides inputs.boundary)")
	assetsFile   = flag.String("assets", "", "Assets GeoJSON (overrides inputs.assets)")
	outputFile   = flag.String("out", "", "Territories GeoJSON output (overrides outputs.territories)")
	reportFile   = flag.String("report", "", "Validation report JSON output (overrides outputs.report)")
	renderFile   = flag.String("render", "", "Territory map PNG/SVG output (overrides outputs.map)")
	noCache      = flag.Bool("no-cache", false, "Skip the result cache even when configured")
	printReport  = flag.Bool("print-report", false, "Print the validation report to stdout")
)

func main() {
	flag.Parse()
	fmt.Printf("gridscope-territory version: %s\n", Version)

	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:   *configFile,
		BoundaryFile: *boundaryFile,
		AssetsFile:   *assetsFile,
		OutputFile:   *outputFile,
		ReportFile:   *reportFile,
		RenderFile:   *renderFile,
		NoCache:      *noCache,
		PrintReport:  *printReport,
	})

	if err := app.Run(); err != nil {
		log.Fatalf("Run failed: %v", err)
	}
}
