package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/lawnchairsociety/levelforge/internal/archive"
)

func main() {
	inputFile := flag.String("input", "out/level-12345.yaml", "Path to an exported level (.yaml or .lfs.zst snapshot)")
	outputFile := flag.String("output", "", "Output file (empty for stdout)")
	scale := flag.Int("scale", 1, "World units per map cell")
	showDetails := flag.Bool("details", true, "List every node below the map")
	showLegend := flag.Bool("legend", true, "Show legend")
	flag.Parse()

	if *scale < 1 {
		fmt.Fprintf(os.Stderr, "Error: scale must be at least 1\n")
		os.Exit(1)
	}

	doc, err := readLevel(*inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading level: %v\n", err)
		os.Exit(1)
	}

	var output strings.Builder
	renderLevel(&output, &doc, *scale, *showDetails)
	if *showLegend {
		output.WriteString(getLegend())
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, []byte(output.String()), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Map written to %s\n", *outputFile)
	} else {
		fmt.Print(output.String())
	}
}

// readLevel loads a YAML export or a compressed snapshot.
func readLevel(path string) (archive.Document, error) {
	if strings.HasSuffix(path, ".zst") {
		_, doc, err := archive.ReadSnapshot(path)
		return doc, err
	}
	return archive.ReadYAML(path)
}
