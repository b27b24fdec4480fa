package calculator

import (
	"math"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

// UnitsPerPack is how many garments of each color one pack consumes.
const UnitsPerPack = 2

// MaxPackCount is the largest pack count whose unit requirement fits in an int.
const MaxPackCount = math.MaxInt / UnitsPerPack

// Status classifies a shortfall for display.
type Status string

const (
	StatusOK       Status = "ok"
	StatusLow      Status = "low"
	StatusCritical Status = "critical"
)

// NeedRequest describes a pack-need query. When AllSizes is set Size is
// ignored and every pack size is evaluated.
type NeedRequest struct {
	Category    string
	AccentColor string
	Size        string
	AllSizes    bool
	PackCount   int
}

// PackResult is the stock/need/shortfall breakdown for one size.
type PackResult struct {
	Size            string `json:"size"`
	AccentColor     string `json:"accentColor"`
	BaseStock       int    `json:"baseStock"`
	AccentStock     int    `json:"accentStock"`
	BaseRequired    int    `json:"baseRequired"`
	AccentRequired  int    `json:"accentRequired"`
	BaseShortfall   int    `json:"baseShortfall"`
	AccentShortfall int    `json:"accentShortfall"`
	BaseStatus      Status `json:"baseStatus"`
	AccentStatus    Status `json:"accentStatus"`
	Status          Status `json:"status"`
}

// Selection is one requested pack: an accent color for a size.
type Selection struct {
	AccentColor string `json:"color"`
	Size        string `json:"size"`
}

// DeductionRequest lists the packs to deduct, in priority order.
type DeductionRequest struct {
	Category   string
	Selections []Selection
}

// Instruction asks the store to set a record to a new quantity.
type Instruction struct {
	RecordID         string `json:"recordId"`
	NewQuantity      int    `json:"newQuantity"`
	PreviousQuantity int    `json:"previousQuantity"`
	Size             string `json:"size"`
	Color            string `json:"color"`
	Category         string `json:"category"`
	Base             bool   `json:"base"`
}

// DiagnosticKind tags a diagnostic so clients can react without parsing text.
type DiagnosticKind string

const (
	DiagnosticMissingBase        DiagnosticKind = "missing_base"
	DiagnosticBaseInsufficient   DiagnosticKind = "base_insufficient"
	DiagnosticMissingAccent      DiagnosticKind = "missing_accent"
	DiagnosticAccentInsufficient DiagnosticKind = "accent_insufficient"
	DiagnosticStockExhausted     DiagnosticKind = "stock_exhausted"
	DiagnosticInvalidSelection   DiagnosticKind = "invalid_selection"
)

// Diagnostic is a human-readable note produced while planning.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Size    string         `json:"size"`
	Color   string         `json:"color,omitempty"`
	Message string         `json:"message"`
}

// DeductionPlan is the ordered list of writes plus the diagnostics gathered.
// Instructions of one size group are contiguous and share the Size field.
type DeductionPlan struct {
	Instructions []Instruction `json:"instructions"`
	Diagnostics  []Diagnostic  `json:"diagnostics"`
	PacksPlanned int           `json:"packsPlanned"`
}

// Calculator describes the pack-fulfillment operations. Implementations never
// mutate the snapshot they are given.
type Calculator interface {
	ComputeNeed(snapshot []inventory.Record, req NeedRequest) ([]PackResult, error)
	PlanDeduction(snapshot []inventory.Record, req DeductionRequest) (DeductionPlan, error)
}
