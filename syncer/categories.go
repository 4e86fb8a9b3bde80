package syncer

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unknown is the sentinel for any category value the taxonomy does not know.
const Unknown = "Unknown"

// CategoryEntry rolls a specific category up into its broad group,
// e.g. "crustaceans and products thereof" -> (Crustaceans, Seafood).
type CategoryEntry struct {
	Specific string `yaml:"specific"`
	Group    string `yaml:"group"`
}

// CategoryTable maps raw lower-cased category text to its taxonomy entry.
// The table is append-only configuration data: new raw spellings get added
// as the upstream vocabulary drifts.
type CategoryTable map[string]CategoryEntry

// MapCategory is total: it lower-cases and trims the input and returns
// (Unknown, Unknown) for empty or unrecognized values.
func (t CategoryTable) MapCategory(raw string) (specific string, group string) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return Unknown, Unknown
	}
	e, ok := t[key]
	if !ok {
		return Unknown, Unknown
	}
	return e.Specific, e.Group
}

// Taxonomy bundles the two independent category tables.
type Taxonomy struct {
	Product CategoryTable `yaml:"product"`
	Hazard  CategoryTable `yaml:"hazard"`
}

//go:embed categories.yaml
var defaultTaxonomy []byte

// LoadTaxonomy reads the taxonomy from path, or the embedded default when
// path is empty. Keys are normalized to lower-case on load so the file may
// use the upstream spelling verbatim.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	raw := defaultTaxonomy
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var tax Taxonomy
	if err := yaml.Unmarshal(raw, &tax); err != nil {
		return nil, err
	}
	if len(tax.Product) == 0 || len(tax.Hazard) == 0 {
		return nil, fmt.Errorf("taxonomy must define product and hazard tables")
	}
	tax.Product = normalizeKeys(tax.Product)
	tax.Hazard = normalizeKeys(tax.Hazard)
	return &tax, nil
}

func normalizeKeys(t CategoryTable) CategoryTable {
	out := make(CategoryTable, len(t))
	for k, v := range t {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
