package calculator

import (
	"fmt"
	"strings"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

type packCalculator struct {
	rules inventory.Rules
}

// New creates a Calculator that matches records using the given rules.
func New(rules inventory.Rules) Calculator {
	return &packCalculator{rules: rules}
}

// Classify maps a shortfall onto its display status: 0 is ok, 1-4 low and
// 5 or more critical.
func Classify(shortfall int) Status {
	switch {
	case shortfall <= 0:
		return StatusOK
	case shortfall <= 4:
		return StatusLow
	default:
		return StatusCritical
	}
}

func (c *packCalculator) ComputeNeed(snapshot []inventory.Record, req NeedRequest) ([]PackResult, error) {
	if req.PackCount < 1 {
		return nil, ErrInvalidPackCount
	}
	if req.PackCount > MaxPackCount {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrInvalidPackCount, req.PackCount, MaxPackCount)
	}
	color := c.rules.NormalizeColor(req.AccentColor)
	if color == "" {
		return nil, ErrMissingColor
	}

	sizes := []string{req.Size}
	if req.AllSizes {
		sizes = c.rules.PackSizes
	} else if !inventory.IsKnownSize(req.Size) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSize, req.Size)
	}

	required := req.PackCount * UnitsPerPack
	results := make([]PackResult, 0, len(sizes))
	for _, size := range sizes {
		base, _ := c.findBase(snapshot, size)
		accent, _ := c.findAccent(snapshot, color, size, req.Category)

		baseStock := max(0, base.Quantity)
		accentStock := max(0, accent.Quantity)
		baseShortfall := max(0, required-baseStock)
		accentShortfall := max(0, required-accentStock)

		results = append(results, PackResult{
			Size:            size,
			AccentColor:     color,
			BaseStock:       baseStock,
			AccentStock:     accentStock,
			BaseRequired:    required,
			AccentRequired:  required,
			BaseShortfall:   baseShortfall,
			AccentShortfall: accentShortfall,
			BaseStatus:      Classify(baseShortfall),
			AccentStatus:    Classify(accentShortfall),
			Status:          Classify(max(baseShortfall, accentShortfall)),
		})
	}
	return results, nil
}

func (c *packCalculator) PlanDeduction(snapshot []inventory.Record, req DeductionRequest) (DeductionPlan, error) {
	for _, sel := range req.Selections {
		if !inventory.IsKnownSize(sel.Size) {
			return DeductionPlan{}, fmt.Errorf("%w: %q", ErrUnknownSize, sel.Size)
		}
		if strings.TrimSpace(sel.AccentColor) == "" {
			return DeductionPlan{}, ErrMissingColor
		}
	}

	plan := DeductionPlan{
		Instructions: []Instruction{},
		Diagnostics:  []Diagnostic{},
	}
	for _, group := range groupBySize(req.Selections) {
		c.planGroup(snapshot, req.Category, group, &plan)
	}
	return plan, nil
}

type sizeGroup struct {
	size   string
	colors []string
}

// groupBySize keeps size groups in order of first appearance and colors in
// the order they were requested.
func groupBySize(selections []Selection) []sizeGroup {
	var groups []sizeGroup
	index := make(map[string]int)
	for _, sel := range selections {
		i, ok := index[sel.Size]
		if !ok {
			i = len(groups)
			index[sel.Size] = i
			groups = append(groups, sizeGroup{size: sel.Size})
		}
		groups[i].colors = append(groups[i].colors, sel.AccentColor)
	}
	return groups
}

func (c *packCalculator) planGroup(snapshot []inventory.Record, category string, group sizeGroup, plan *DeductionPlan) {
	base, ok := c.findBase(snapshot, group.size)
	if !ok {
		plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
			Kind:    DiagnosticMissingBase,
			Size:    group.size,
			Message: fmt.Sprintf("no base stock registered for size %s", group.size),
		})
		return
	}

	baseRemaining := max(0, base.Quantity)
	working := make(map[string]int)
	emitted := make(map[string]int)
	packs := 0

	for _, requested := range group.colors {
		color := c.rules.NormalizeColor(requested)

		if baseRemaining < UnitsPerPack {
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Kind:    DiagnosticBaseInsufficient,
				Size:    group.size,
				Color:   color,
				Message: fmt.Sprintf("insufficient base stock for size %s, remaining packs skipped", group.size),
			})
			break
		}

		if c.rules.IsBaseColor(color) {
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Kind:    DiagnosticInvalidSelection,
				Size:    group.size,
				Color:   color,
				Message: fmt.Sprintf("%s is the base color and cannot be used as accent", color),
			})
			continue
		}

		accent, ok := c.findAccent(snapshot, color, group.size, category)
		if !ok {
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Kind:    DiagnosticMissingAccent,
				Size:    group.size,
				Color:   color,
				Message: fmt.Sprintf("no accent stock registered for %s %s", color, group.size),
			})
			continue
		}

		qty, seen := working[accent.ID]
		if !seen {
			qty = max(0, accent.Quantity)
		}
		if qty < UnitsPerPack {
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Kind:    DiagnosticAccentInsufficient,
				Size:    group.size,
				Color:   color,
				Message: fmt.Sprintf("insufficient accent stock for %s %s", color, group.size),
			})
			continue
		}

		newQty := max(0, qty-UnitsPerPack)
		baseRemaining = max(0, baseRemaining-UnitsPerPack)
		working[accent.ID] = newQty
		packs++

		if i, ok := emitted[accent.ID]; ok {
			plan.Instructions[i].NewQuantity = newQty
		} else {
			emitted[accent.ID] = len(plan.Instructions)
			plan.Instructions = append(plan.Instructions, Instruction{
				RecordID:         accent.ID,
				NewQuantity:      newQty,
				PreviousQuantity: max(0, accent.Quantity),
				Size:             group.size,
				Color:            color,
				Category:         accent.Category,
			})
		}

		if newQty == 0 {
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Kind:    DiagnosticStockExhausted,
				Size:    group.size,
				Color:   color,
				Message: fmt.Sprintf("%s %s stock exhausted", color, group.size),
			})
		}
		if baseRemaining == 0 {
			plan.Diagnostics = append(plan.Diagnostics, Diagnostic{
				Kind:    DiagnosticStockExhausted,
				Size:    group.size,
				Color:   c.rules.NormalizeColor(c.rules.BaseColor),
				Message: fmt.Sprintf("base stock for size %s exhausted", group.size),
			})
		}
	}

	if packs == 0 {
		return
	}
	plan.PacksPlanned += packs
	plan.Instructions = append(plan.Instructions, Instruction{
		RecordID:         base.ID,
		NewQuantity:      baseRemaining,
		PreviousQuantity: max(0, base.Quantity),
		Size:             group.size,
		Color:            c.rules.NormalizeColor(base.Color),
		Category:         base.Category,
		Base:             true,
	})
}

// findBase returns the first base-stock record for size.
func (c *packCalculator) findBase(snapshot []inventory.Record, size string) (inventory.Record, bool) {
	for _, rec := range snapshot {
		if rec.Size == size && c.rules.IsBaseRecord(rec) {
			return rec, true
		}
	}
	return inventory.Record{}, false
}

// findAccent returns the first record of color and size in category. The
// category must match exactly.
func (c *packCalculator) findAccent(snapshot []inventory.Record, color, size, category string) (inventory.Record, bool) {
	for _, rec := range snapshot {
		if rec.Size == size && rec.Category == category && c.rules.SameColor(rec.Color, color) {
			return rec, true
		}
	}
	return inventory.Record{}, false
}
