package inventory

import (
	"slices"
	"strings"
)

// Size labels in display order.
var (
	ChildSizes = []string{"6", "8", "10", "12", "14", "16"}
	AdultSizes = []string{"S", "M", "L", "XL", "2XL", "3XL"}
	AllSizes   = slices.Concat(ChildSizes, AdultSizes)
)

// Categories are the demographic tags a record can carry. Kids is the
// synthetic category holding base-color stock.
var Categories = []string{"Mujer", "Niña", "Niño", "Kids"}

// CollarStyles lists the collar variants.
var CollarStyles = []string{"V", "Redondo"}

// DefaultCollarStyle is applied when a record arrives without one.
const DefaultCollarStyle = "Redondo"

// Colors lists the garment colors offered when creating records.
var Colors = []string{
	"negro",
	"blanco",
	"gris",
	"marron chocolate",
	"rosado",
	"violeta",
	"rayado",
	"crema rayado",
}

// CanonicalLabel returns the entry of labels equal to s ignoring case, or s
// trimmed when none matches.
func CanonicalLabel(labels []string, s string) string {
	s = strings.TrimSpace(s)
	for _, label := range labels {
		if strings.EqualFold(label, s) {
			return label
		}
	}
	return s
}

// IsKnownSize reports whether size is one of the fixed size labels.
func IsKnownSize(size string) bool {
	return slices.Contains(AllSizes, size)
}

// Catalog is the enumeration payload served to clients.
type Catalog struct {
	ChildSizes   []string            `json:"childSizes"`
	AdultSizes   []string            `json:"adultSizes"`
	PackSizes    []string            `json:"packSizes"`
	Colors       []string            `json:"colors"`
	Categories   []string            `json:"categories"`
	CollarStyles []string            `json:"collarStyles"`
	AccentColors map[string][]string `json:"accentColors"`
	BaseColor    string              `json:"baseColor"`
	BaseCategory string              `json:"baseCategory"`
	ColorAliases map[string]string   `json:"colorAliases"`
}

// NewCatalog assembles the catalog for the given rules.
func NewCatalog(rules Rules) Catalog {
	return Catalog{
		ChildSizes:   slices.Clone(ChildSizes),
		AdultSizes:   slices.Clone(AdultSizes),
		PackSizes:    slices.Clone(rules.PackSizes),
		Colors:       slices.Clone(Colors),
		Categories:   slices.Clone(Categories),
		CollarStyles: slices.Clone(CollarStyles),
		AccentColors: rules.AccentColors,
		BaseColor:    rules.BaseColor,
		BaseCategory: rules.BaseCategory,
		ColorAliases: rules.ColorAliases,
	}
}
