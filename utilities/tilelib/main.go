package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/lawnchairsociety/levelforge/internal/config"
	"github.com/lawnchairsociety/levelforge/internal/wfc"
)

func main() {
	input := flag.String("input", "", "Tile library to check (empty for the built-in library)")
	configPath := flag.String("config", "data/levelforge.yaml", "Generator config supplying biome exclusions")
	outFile := flag.String("out", "", "Write the library YAML to this file (empty to skip)")
	showMatrix := flag.Bool("matrix", true, "Print which tiles can connect")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	lib := wfc.DefaultLibrary()
	name := "built-in"
	if *input != "" {
		fmt.Printf("Loading %s... ", *input)
		if lib, err = wfc.LoadLibrary(*input); err != nil {
			fmt.Printf("FAILED\n")
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("OK")
		name = *input
	}

	eval := wfc.NewEvaluator(lib, cfg.Constraints.Exclusions, cfg.Constraints.BiomeMismatchPenalty)

	var output strings.Builder
	fmt.Fprintf(&output, "Tile library: %s (%d tiles)\n", name, lib.Len())
	output.WriteString(strings.Repeat("=", 60) + "\n")
	renderTiles(&output, lib)
	if *showMatrix {
		renderMatrix(&output, eval)
	}
	for _, w := range lint(eval) {
		output.WriteString("WARNING: " + w + "\n")
	}
	fmt.Print(output.String())

	if *outFile != "" {
		fmt.Printf("\nWriting %s... ", *outFile)
		if err := writeLibrary(*outFile, lib, name); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("OK")
	}
}
