package inventory

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func TestRulesNormalizeColor(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	tests := []struct {
		in   string
		want string
	}{
		{"Blanco", "blanco"},
		{"  ROSADO ", "rosado"},
		{"lila", "violeta"},
		{"Lila", "violeta"},
		{"violeta", "violeta"},
		{"marron chocolate", "marron chocolate"},
	}
	for _, tc := range tests {
		if got := rules.NormalizeColor(tc.in); got != tc.want {
			t.Fatalf("NormalizeColor(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRulesBaseMatching(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	if !rules.IsBaseCategory("kids") || !rules.IsBaseCategory("KIDS") {
		t.Fatalf("expected Kids to match case-insensitively")
	}
	if rules.IsBaseCategory("Niña") {
		t.Fatalf("Niña is not the base category")
	}
	if !rules.IsBaseRecord(Record{Color: "BLANCO", Category: "Kids"}) {
		t.Fatalf("expected white Kids record to be base stock")
	}
	if rules.IsBaseRecord(Record{Color: "blanco", Category: "Mujer"}) {
		t.Fatalf("white Mujer record is not base stock")
	}
}

func TestRulesValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("default rules should validate: %v", err)
	}

	bad := DefaultRules()
	bad.PackSizes = []string{"7"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected unknown pack size to be rejected")
	}

	bad = DefaultRules()
	bad.BaseColor = " "
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected blank base color to be rejected")
	}
}

func TestRulesMerge(t *testing.T) {
	t.Parallel()

	merged := DefaultRules().Merge(Rules{BaseColor: "crudo", PackSizes: []string{"S", "M"}})
	if merged.BaseColor != "crudo" {
		t.Fatalf("expected base color override, got %q", merged.BaseColor)
	}
	if merged.BaseCategory != "Kids" {
		t.Fatalf("expected base category to be kept, got %q", merged.BaseCategory)
	}
	if !slices.Equal(merged.PackSizes, []string{"S", "M"}) {
		t.Fatalf("unexpected pack sizes %v", merged.PackSizes)
	}
}

func TestRulesNormalizeRecord(t *testing.T) {
	t.Parallel()

	got := DefaultRules().Normalize(Record{Size: " xl ", Color: "Lila", Category: " Mujer "})
	want := Record{Size: "XL", Color: "violeta", Category: "Mujer", CollarStyle: DefaultCollarStyle}
	if got != want {
		t.Fatalf("Normalize = %+v, want %+v", got, want)
	}

	got = DefaultRules().Normalize(Record{Size: "6", Color: "blanco", Category: "kids", CollarStyle: " v "})
	if got.Category != "Kids" || got.CollarStyle != "V" {
		t.Fatalf("expected canonical category and collar, got %+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("expected normalized record to validate, got %v", err)
	}

	got = DefaultRules().Normalize(Record{Category: "Adultos"})
	if got.Category != "Adultos" {
		t.Fatalf("expected unknown category to pass through, got %q", got.Category)
	}
}

func TestRecordValidate(t *testing.T) {
	t.Parallel()

	valid := Record{Size: "6", Color: "rosado", Quantity: 3, Category: "Niña", CollarStyle: "Redondo"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}

	cases := map[string]Record{
		"unknown size":     {Size: "7", Color: "rosado", Category: "Niña", CollarStyle: "V"},
		"empty color":      {Size: "6", Color: " ", Category: "Niña", CollarStyle: "V"},
		"negative":         {Size: "6", Color: "rosado", Quantity: -1, Category: "Niña", CollarStyle: "V"},
		"unknown category": {Size: "6", Color: "rosado", Category: "Hombre", CollarStyle: "V"},
		"unknown collar":   {Size: "6", Color: "rosado", Category: "Niña", CollarStyle: "Polo"},
	}
	for name, rec := range cases {
		if err := rec.Validate(); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("%s: expected ErrInvalidRecord, got %v", name, err)
		}
	}
}

func TestLevelOf(t *testing.T) {
	t.Parallel()

	tests := map[int]Level{
		0:  LevelOut,
		1:  LevelLow,
		2:  LevelLow,
		3:  LevelMedium,
		5:  LevelMedium,
		6:  LevelHealthy,
		40: LevelHealthy,
	}
	for qty, want := range tests {
		if got := LevelOf(qty); got != want {
			t.Fatalf("LevelOf(%d) = %s, want %s", qty, got, want)
		}
	}
}

func TestAlertFor(t *testing.T) {
	t.Parallel()

	if got := AlertFor(Record{Size: "8", Quantity: 0}); got.Level != "out" {
		t.Fatalf("expected out alert, got %+v", got)
	}
	if got := AlertFor(Record{Size: "8", Quantity: 2}); got.Level != "low" {
		t.Fatalf("expected low alert, got %+v", got)
	}
	if got := AlertFor(Record{Size: "8", Quantity: 3}); got.Level != "ok" {
		t.Fatalf("expected ok alert, got %+v", got)
	}
}

func TestClampQuantity(t *testing.T) {
	t.Parallel()

	if got := ClampQuantity(1, -3); got != 0 {
		t.Fatalf("expected clamp at 0, got %d", got)
	}
	if got := ClampQuantity(1, 2); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := ClampQuantity(5, math.MaxInt); got != math.MaxInt {
		t.Fatalf("expected increment to saturate, got %d", got)
	}
	if got := ClampQuantity(-5, math.MinInt); got != 0 {
		t.Fatalf("expected decrement to clamp at 0, got %d", got)
	}
}

func TestSortUsesCatalogOrder(t *testing.T) {
	t.Parallel()

	records := []Record{
		{ID: "a", Category: "Niño", Color: "negro", CollarStyle: "Redondo", Size: "10"},
		{ID: "b", Category: "Mujer", Color: "negro", CollarStyle: "V", Size: "XL"},
		{ID: "c", Category: "Niño", Color: "negro", CollarStyle: "Redondo", Size: "6"},
		{ID: "d", Category: "Mujer", Color: "negro", CollarStyle: "V", Size: "S"},
		{ID: "e", Category: "Kids", Color: "blanco", CollarStyle: "Redondo", Size: "16"},
	}
	Sort(records)

	var ids []string
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	if want := []string{"d", "b", "c", "a", "e"}; !slices.Equal(ids, want) {
		t.Fatalf("expected order %v, got %v", want, ids)
	}
}

func TestGroupRecords(t *testing.T) {
	t.Parallel()

	records := []Record{
		{ID: "1", Category: "Niña", Color: "rosado", CollarStyle: "Redondo", Size: "8", Quantity: 2},
		{ID: "2", Category: "Niña", Color: "Rosado", CollarStyle: "Redondo", Size: "6", Quantity: 9},
		{ID: "3", Category: "Niña", Color: "rosado", CollarStyle: "V", Size: "6", Quantity: 0},
	}

	groups := GroupRecords(records)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups[1].Items) != 2 {
		t.Fatalf("expected redondo group to hold 2 items, got %d", len(groups[1].Items))
	}
	if groups[1].Items[0].Size != "6" || groups[1].Items[0].Level != LevelHealthy {
		t.Fatalf("unexpected first item %+v", groups[1].Items[0])
	}
	if groups[0].Items[0].Level != LevelOut {
		t.Fatalf("expected V group item to be out of stock, got %s", groups[0].Items[0].Level)
	}

	if got := GroupRecords(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil groups, got %v", got)
	}
}
