// Package fulfillment applies deduction plans to the inventory store.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/stock-packs/internal/calculator"
	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

// Mode selects how a plan reaches the store.
type Mode string

const (
	// ModeBestEffort writes instructions one at a time and stops at the first
	// failure. Writes already made stay applied.
	ModeBestEffort Mode = "best_effort"
	// ModeAtomic writes each size group as one all-or-nothing batch.
	ModeAtomic Mode = "atomic"
)

var (
	// ErrWriteFailed wraps the store error of the instruction that could not be applied.
	ErrWriteFailed = errors.New("inventory write failed")
	// ErrUnknownMode is returned for a mode other than best_effort or atomic.
	ErrUnknownMode = errors.New("unknown deduction mode")
)

// ParseMode validates a mode string. Empty selects ModeBestEffort.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBestEffort:
		return ModeBestEffort, nil
	case ModeAtomic:
		return ModeAtomic, nil
	default:
		return "", fmt.Errorf("%w: %q (expected best_effort or atomic)", ErrUnknownMode, s)
	}
}

// Store is the subset of storage.Storage the applier writes through.
type Store interface {
	SetQuantity(ctx context.Context, id string, quantity int) error
	SetQuantities(ctx context.Context, updates []inventory.QuantityUpdate) error
}

// Result reports what reached the store.
type Result struct {
	Mode    Mode                     `json:"mode"`
	Applied []calculator.Instruction `json:"applied"`
	// Failed holds the instruction whose write failed; in atomic mode it is the
	// first instruction of the rejected size group.
	Failed *calculator.Instruction `json:"failed,omitempty"`
}

// Applier writes deduction plans to a Store.
type Applier struct {
	store  Store
	mode   Mode
	logger *zap.Logger
}

// Option configures an Applier.
type Option func(*Applier)

// WithMode sets the default mode used when Apply is given an empty mode.
func WithMode(mode Mode) Option {
	return func(a *Applier) {
		a.mode = mode
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Applier) {
		a.logger = logger
	}
}

// NewApplier constructs an Applier over store.
func NewApplier(store Store, opts ...Option) *Applier {
	a := &Applier{
		store:  store,
		mode:   ModeBestEffort,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Mode returns the default mode.
func (a *Applier) Mode() Mode {
	return a.mode
}

// Apply writes plan using mode, or the applier default when mode is empty.
// On failure the returned Result still lists the instructions that were
// applied before the failing write, and the error wraps ErrWriteFailed. No
// retry or rollback is attempted.
func (a *Applier) Apply(ctx context.Context, plan calculator.DeductionPlan, mode Mode) (Result, error) {
	if mode == "" {
		mode = a.mode
	}

	var (
		res Result
		err error
	)
	switch mode {
	case ModeBestEffort:
		res, err = a.applyEach(ctx, plan.Instructions)
	case ModeAtomic:
		res, err = a.applyGroups(ctx, plan.Instructions)
	default:
		return Result{Mode: mode, Applied: []calculator.Instruction{}}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	res.Mode = mode

	if err != nil {
		a.logger.Error("deduction plan partially applied",
			zap.String("mode", string(mode)),
			zap.Int("applied", len(res.Applied)),
			zap.Int("planned", len(plan.Instructions)),
			zap.Error(err),
		)
		return res, err
	}

	a.logger.Info("deduction plan applied",
		zap.String("mode", string(mode)),
		zap.Int("instructions", len(res.Applied)),
		zap.Int("packs", plan.PacksPlanned),
		zap.Int("diagnostics", len(plan.Diagnostics)),
	)
	return res, nil
}

func (a *Applier) applyEach(ctx context.Context, instructions []calculator.Instruction) (Result, error) {
	res := Result{Applied: make([]calculator.Instruction, 0, len(instructions))}
	for _, in := range instructions {
		if err := a.store.SetQuantity(ctx, in.RecordID, in.NewQuantity); err != nil {
			failed := in
			res.Failed = &failed
			return res, writeError(in, err)
		}
		res.Applied = append(res.Applied, in)
	}
	return res, nil
}

func (a *Applier) applyGroups(ctx context.Context, instructions []calculator.Instruction) (Result, error) {
	res := Result{Applied: make([]calculator.Instruction, 0, len(instructions))}
	for _, group := range splitBySize(instructions) {
		updates := make([]inventory.QuantityUpdate, 0, len(group))
		for _, in := range group {
			updates = append(updates, inventory.QuantityUpdate{ID: in.RecordID, Quantity: in.NewQuantity})
		}
		if err := a.store.SetQuantities(ctx, updates); err != nil {
			failed := group[0]
			res.Failed = &failed
			return res, writeError(failed, err)
		}
		res.Applied = append(res.Applied, group...)
	}
	return res, nil
}

// splitBySize cuts the instruction list at size boundaries. Plans keep each
// size group contiguous.
func splitBySize(instructions []calculator.Instruction) [][]calculator.Instruction {
	var groups [][]calculator.Instruction
	for i, in := range instructions {
		if i == 0 || instructions[i-1].Size != in.Size {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], in)
	}
	return groups
}

func writeError(in calculator.Instruction, err error) error {
	return fmt.Errorf("%w: set %s (%s %s) to %d: %w", ErrWriteFailed, in.RecordID, in.Color, in.Size, in.NewQuantity, err)
}
