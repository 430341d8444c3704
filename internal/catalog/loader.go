// Package catalog loads the benchmark catalog: configuration versions of the
// conversational service and the test cases to run against them.
package catalog

import (
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed all:testdata
var embeddedCatalogs embed.FS

// Load loads a catalog by name, searching first in the external directory
// (if provided), then in the embedded catalogs.
func Load(name string, externalDir string) (*Catalog, error) {
	// Try external directory first.
	if externalDir != "" {
		path := filepath.Join(externalDir, name)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return loadFromFS(os.DirFS(path), name)
		}
	}

	// Fall back to embedded catalogs.
	// Use path.Join (not filepath.Join) because embed.FS always uses forward slashes.
	subFS, err := fs.Sub(embeddedCatalogs, path.Join("testdata", name))
	if err != nil {
		return nil, fmt.Errorf("catalog %q not found: %w", name, err)
	}
	return loadFromFS(subFS, name)
}

// List returns the names of all available catalogs.
func List(externalDir string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	entries, err := fs.ReadDir(embeddedCatalogs, "testdata")
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = true
				names = append(names, e.Name())
			}
		}
	}

	if externalDir != "" {
		entries, err := os.ReadDir(externalDir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() && !seen[e.Name()] {
					names = append(names, e.Name())
				}
			}
		}
	}

	return names, nil
}

// VersionByID returns the configuration version with the given id.
func (c *Catalog) VersionByID(id string) (*ConfigVersion, bool) {
	v, ok := c.versionsByID[id]
	return v, ok
}

// CaseByID returns the test case with the given id.
func (c *Catalog) CaseByID(id string) (*TestCase, bool) {
	tc, ok := c.casesByID[id]
	return tc, ok
}

// ActiveCases returns all cases with the active flag set, in catalog order.
func (c *Catalog) ActiveCases() []TestCase {
	var active []TestCase
	for _, tc := range c.Cases {
		if tc.Active {
			active = append(active, tc)
		}
	}
	return active
}

func loadFromFS(fsys fs.FS, name string) (*Catalog, error) {
	configData, err := fs.ReadFile(fsys, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read config.yaml for catalog %q: %w", name, err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(configData, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse config.yaml for catalog %q: %w", name, err)
	}

	if cat.CasesFile == "" {
		cat.CasesFile = "cases.csv"
	}

	cases, err := loadCasesFromFS(fsys, cat.CasesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load cases for catalog %q: %w", name, err)
	}
	cat.Cases = cases

	if err := cat.index(); err != nil {
		return nil, err
	}

	return &cat, nil
}

func loadCasesFromFS(fsys fs.FS, filename string) ([]TestCase, error) {
	f, err := fsys.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Allow variable field counts.

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}

	for _, required := range []string{"ID", "Question", "ExpectedAnswer", "Keywords", "Active"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required CSV column: %s", required)
		}
	}

	minCols := 0
	for _, idx := range colIndex {
		if idx >= minCols {
			minCols = idx + 1
		}
	}

	var cases []TestCase
	for lineNum := 2; ; lineNum++ { // lineNum starts at 2 (1-indexed, after header).
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", lineNum, err)
		}
		if len(record) < minCols {
			return nil, fmt.Errorf("CSV row %d has %d columns, expected at least %d", lineNum, len(record), minCols)
		}

		cases = append(cases, TestCase{
			ID:             record[colIndex["ID"]],
			Question:       record[colIndex["Question"]],
			ExpectedAnswer: record[colIndex["ExpectedAnswer"]],
			Keywords:       splitKeywords(record[colIndex["Keywords"]]),
			Active:         parseActive(record[colIndex["Active"]]),
		})
	}

	return cases, nil
}

// splitKeywords parses the semicolon-separated keyword column, preserving
// the order in which keywords appear.
func splitKeywords(raw string) []string {
	var keywords []string
	for _, kw := range strings.Split(raw, ";") {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

func parseActive(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1":
		return true
	}
	return false
}
