package inventory

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrInvalidRecord is returned when a record fails validation.
	ErrInvalidRecord = errors.New("invalid inventory record")
)

// Record is a single stock line: one garment variant and its quantity.
type Record struct {
	ID          string `json:"id" yaml:"id"`
	Size        string `json:"size" yaml:"size"`
	Color       string `json:"color" yaml:"color"`
	Quantity    int    `json:"quantity" yaml:"quantity"`
	Category    string `json:"category" yaml:"category"`
	CollarStyle string `json:"collarStyle" yaml:"collar_style"`
}

// QuantityUpdate asks the store to set a record's quantity.
type QuantityUpdate struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Validate checks the record against the catalog.
func (r Record) Validate() error {
	if !IsKnownSize(r.Size) {
		return fmt.Errorf("%w: unknown size %q", ErrInvalidRecord, r.Size)
	}
	if strings.TrimSpace(r.Color) == "" {
		return fmt.Errorf("%w: color is required", ErrInvalidRecord)
	}
	if r.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be >= 0, got %d", ErrInvalidRecord, r.Quantity)
	}
	if !slices.Contains(Categories, r.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRecord, r.Category)
	}
	if !slices.Contains(CollarStyles, r.CollarStyle) {
		return fmt.Errorf("%w: unknown collar style %q", ErrInvalidRecord, r.CollarStyle)
	}
	return nil
}

// Clone returns a copy of the records slice.
func Clone(records []Record) []Record {
	if records == nil {
		return []Record{}
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

// Sort orders records by category, color, collar style and size label, using
// catalog order where known and falling back to lexical order.
func Sort(records []Record) {
	slices.SortStableFunc(records, compareRecords)
}

func compareRecords(a, b Record) int {
	if c := compareRanked(Categories, a.Category, b.Category); c != 0 {
		return c
	}
	if c := compareRanked(Colors, strings.ToLower(a.Color), strings.ToLower(b.Color)); c != 0 {
		return c
	}
	if c := compareRanked(CollarStyles, a.CollarStyle, b.CollarStyle); c != 0 {
		return c
	}
	if c := compareRanked(AllSizes, a.Size, b.Size); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func compareRanked(order []string, a, b string) int {
	ia, ib := slices.Index(order, a), slices.Index(order, b)
	switch {
	case ia >= 0 && ib >= 0:
		return ia - ib
	case ia >= 0:
		return -1
	case ib >= 0:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
