//go:build ignore

// Package main generates a synthetic NOC taxonomy for benchmarking the
// HNSW backend at realistic sizes.
// Usage: go run scripts/generate-taxonomy.go -entries 2000 -output testdata/bench/noc.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numEntries = flag.Int("entries", 2000, "Number of occupations to generate")
	outputPath = flag.String("output", "testdata/bench/noc.jsonl", "Output JSONL file")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var (
	qualifiers = []string{"senior", "junior", "lead", "assistant", "chief", "field", "clinical", "industrial", "municipal", "technical"}
	subjects   = []string{"software", "nursing", "truck", "carpentry", "accounting", "welding", "pharmacy", "electrical", "marketing", "logistics", "dental", "forestry"}
	roles      = []string{"engineer", "technician", "manager", "operator", "analyst", "supervisor", "inspector", "specialist", "coordinator", "worker"}
	verbs      = []string{"plan", "operate", "inspect", "maintain", "design", "coordinate", "supervise", "repair", "analyze", "install"}
	objects    = []string{"equipment", "systems", "schedules", "budgets", "patients", "vehicles", "structures", "records", "materials", "networks"}
)

// record mirrors the field names of the published NOC dataset.
type record struct {
	NOC           string   `json:"noc"`
	Title         string   `json:"title"`
	TEER          int      `json:"teer"`
	RelatedTitles []string `json:"related_titles"`
	Keywords      []string `json:"keywords"`
	Duties        []string `json:"duties"`
}

func pick(rng *rand.Rand, words []string) string {
	return words[rng.Intn(len(words))]
}

func generate(rng *rand.Rand, i int) record {
	subject := pick(rng, subjects)
	role := pick(rng, roles)
	title := fmt.Sprintf("%s %s %s", pick(rng, qualifiers), subject, role)

	duties := make([]string, 2+rng.Intn(4))
	for j := range duties {
		duties[j] = fmt.Sprintf("%s %s %s", pick(rng, verbs), subject, pick(rng, objects))
	}

	return record{
		NOC:           fmt.Sprintf("%05d", 10000+i),
		Title:         strings.ToUpper(title[:1]) + title[1:],
		TEER:          rng.Intn(6),
		RelatedTitles: []string{fmt.Sprintf("%s %s", subject, role), fmt.Sprintf("%s %s %d", subject, role, i)},
		Keywords:      []string{subject, role},
		Duties:        duties,
	}
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}
	f, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := 0; i < *numEntries; i++ {
		if err := enc.Encode(generate(rng, i)); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing entry %d: %v\n", i, err)
			os.Exit(1)
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d occupations in %s\n", *numEntries, *outputPath)
}
