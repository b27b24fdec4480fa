package inventory

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Rules holds the business aliases used when matching records: which color
// and category carry the shared base stock, color spellings that mean the same
// garment, and which accent colors each category offers.
type Rules struct {
	BaseColor    string              `yaml:"base_color"`
	BaseCategory string              `yaml:"base_category"`
	ColorAliases map[string]string   `yaml:"color_aliases"`
	PackSizes    []string            `yaml:"pack_sizes"`
	AccentColors map[string][]string `yaml:"accent_colors"`
}

// DefaultRules returns the rules the shop runs with.
func DefaultRules() Rules {
	return Rules{
		BaseColor:    "blanco",
		BaseCategory: "Kids",
		ColorAliases: map[string]string{
			"lila": "violeta",
		},
		PackSizes: slices.Clone(ChildSizes),
		AccentColors: map[string][]string{
			"Niña": {"rosado", "violeta"},
			"Niño": {"negro"},
		},
	}
}

// Validate rejects rules that cannot drive the calculator.
func (r Rules) Validate() error {
	if strings.TrimSpace(r.BaseColor) == "" {
		return fmt.Errorf("base color cannot be empty")
	}
	if strings.TrimSpace(r.BaseCategory) == "" {
		return fmt.Errorf("base category cannot be empty")
	}
	if len(r.PackSizes) == 0 {
		return fmt.Errorf("pack sizes cannot be empty")
	}
	for _, size := range r.PackSizes {
		if !IsKnownSize(size) {
			return fmt.Errorf("pack size %q is not a known size label", size)
		}
	}
	for from, to := range r.ColorAliases {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return fmt.Errorf("color alias %q -> %q must not be blank", from, to)
		}
	}
	return nil
}

// Merge overlays the non-empty fields of other onto r.
func (r Rules) Merge(other Rules) Rules {
	out := r
	if other.BaseColor != "" {
		out.BaseColor = other.BaseColor
	}
	if other.BaseCategory != "" {
		out.BaseCategory = other.BaseCategory
	}
	if len(other.ColorAliases) > 0 {
		out.ColorAliases = maps.Clone(other.ColorAliases)
	}
	if len(other.PackSizes) > 0 {
		out.PackSizes = slices.Clone(other.PackSizes)
	}
	if len(other.AccentColors) > 0 {
		out.AccentColors = maps.Clone(other.AccentColors)
	}
	return out
}

// NormalizeColor lower-cases and trims a color and resolves aliases.
func (r Rules) NormalizeColor(color string) string {
	c := strings.ToLower(strings.TrimSpace(color))
	if alias, ok := r.ColorAliases[c]; ok {
		return strings.ToLower(alias)
	}
	return c
}

// SameColor compares two colors after normalization.
func (r Rules) SameColor(a, b string) bool {
	return r.NormalizeColor(a) == r.NormalizeColor(b)
}

// IsBaseColor reports whether color is the base color shared by every pack.
func (r Rules) IsBaseColor(color string) bool {
	return r.SameColor(color, r.BaseColor)
}

// IsBaseCategory reports whether category is the one tracking base stock.
// The comparison is case-insensitive.
func (r Rules) IsBaseCategory(category string) bool {
	return strings.EqualFold(strings.TrimSpace(category), r.BaseCategory)
}

// IsBaseRecord reports whether rec holds base stock for its size.
func (r Rules) IsBaseRecord(rec Record) bool {
	return r.IsBaseColor(rec.Color) && r.IsBaseCategory(rec.Category)
}

// Normalize prepares a record for storage: the color is normalized and a
// missing collar style gets the default.
func (r Rules) Normalize(rec Record) Record {
	rec.ID = strings.TrimSpace(rec.ID)
	rec.Size = strings.ToUpper(strings.TrimSpace(rec.Size))
	rec.Color = r.NormalizeColor(rec.Color)
	rec.Category = CanonicalLabel(Categories, rec.Category)
	rec.CollarStyle = CanonicalLabel(CollarStyles, rec.CollarStyle)
	if rec.CollarStyle == "" {
		rec.CollarStyle = DefaultCollarStyle
	}
	return rec
}
