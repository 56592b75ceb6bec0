// Package category provides static, deterministic product classification
// from an embedded YAML keyword table.
package category

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var embeddedTable []byte

// Fallback is assigned when no keyword matches.
const Fallback = "other"

// Entry is one row of the classification table.
type Entry struct {
	Name     string   `yaml:"name"`
	Priority int      `yaml:"priority"`
	Keywords []string `yaml:"keywords"`
}

type tableFile struct {
	Categories []Entry `yaml:"categories"`
}

// Table matches product and supplier names against keyword entries.
// Classification is pure: identical inputs always yield the same category.
type Table struct {
	entries []Entry // sorted by priority (highest first), file order preserved on ties
}

// New builds a table from YAML data.
func New(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse category table YAML: %w", err)
	}

	for i, e := range file.Categories {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("category %d: name cannot be empty", i)
		}
		if e.Priority < 0 || e.Priority > 999 {
			return nil, fmt.Errorf("category %d (%s): priority must be in [0,999], got %d", i, e.Name, e.Priority)
		}
		if len(e.Keywords) == 0 {
			return nil, fmt.Errorf("category %d (%s): at least one keyword required", i, e.Name)
		}
		for _, kw := range e.Keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("category %d (%s): keyword cannot be empty", i, e.Name)
			}
		}
	}

	sorted := make([]Entry, len(file.Categories))
	copy(sorted, file.Categories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Table{entries: sorted}, nil
}

// LoadEmbedded loads the embedded categories.yaml table.
func LoadEmbedded() (*Table, error) {
	table, err := New(embeddedTable)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded category table: %w", err)
	}
	return table, nil
}

// Classify returns the category for a product. Keywords match against the
// product name and the supplier name; entries are evaluated in priority
// order, file order on ties. Returns Fallback when nothing matches.
func (t *Table) Classify(productName, supplierName string) string {
	name := foldText(productName)
	supplier := foldText(supplierName)

	for _, e := range t.entries {
		for _, kw := range e.Keywords {
			folded := foldText(kw)
			if strings.Contains(name, folded) || strings.Contains(supplier, folded) {
				return e.Name
			}
		}
	}
	return Fallback
}

// Categories returns the category names in table order, Fallback last.
func (t *Table) Categories() []string {
	names := make([]string, 0, len(t.entries)+1)
	seen := make(map[string]bool)
	for _, e := range t.entries {
		if !seen[e.Name] {
			names = append(names, e.Name)
			seen[e.Name] = true
		}
	}
	names = append(names, Fallback)
	return names
}

// foldText lowercases, trims and strips accents for matching.
func foldText(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
