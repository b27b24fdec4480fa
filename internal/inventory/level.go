package inventory

import (
	"fmt"
	"math"
)

// Level classifies a single record's quantity for the dashboard.
type Level string

const (
	LevelOut     Level = "out"
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHealthy Level = "healthy"
)

// LevelOf maps a quantity onto its stock level: 0 is out, 1-2 low, 3-5
// medium, anything above healthy.
func LevelOf(quantity int) Level {
	switch {
	case quantity <= 0:
		return LevelOut
	case quantity <= 2:
		return LevelLow
	case quantity <= 5:
		return LevelMedium
	default:
		return LevelHealthy
	}
}

// Alert is the notice shown after a quantity change.
type Alert struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// AlertFor builds the notice for a record after its quantity changed.
func AlertFor(rec Record) Alert {
	switch LevelOf(rec.Quantity) {
	case LevelOut:
		return Alert{Level: "out", Message: fmt.Sprintf("size %s reached 0, restock urgently", rec.Size)}
	case LevelLow:
		return Alert{Level: "low", Message: fmt.Sprintf("size %s has very little stock", rec.Size)}
	default:
		return Alert{Level: "ok", Message: "quantity updated"}
	}
}

// MaxAdjustDelta bounds a single increment or decrement. It keeps
// quantity+delta inside a 32-bit SQL INTEGER column.
const MaxAdjustDelta = math.MaxInt32

// ClampQuantity applies delta to quantity without going below zero. Sums that
// would overflow saturate at math.MaxInt.
func ClampQuantity(quantity, delta int) int {
	if delta > 0 && quantity > math.MaxInt-delta {
		return math.MaxInt
	}
	if delta < 0 && quantity < math.MinInt-delta {
		return 0
	}
	return max(0, quantity+delta)
}
