package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/stock-packs/internal/calculator"
	"github.com/eugenenazirov/stock-packs/internal/fulfillment"
)

type needRequest struct {
	Category  string `json:"category"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	AllSizes  bool   `json:"allSizes"`
	PackCount int    `json:"packCount"`
}

type needResponse struct {
	SnapshotVersion uint64                  `json:"snapshotVersion"`
	Category        string                  `json:"category"`
	PackCount       int                     `json:"packCount"`
	Results         []calculator.PackResult `json:"results"`
}

type deductionRequest struct {
	Category   string                 `json:"category"`
	Selections []calculator.Selection `json:"selections"`
	Mode       string                 `json:"mode,omitempty"`
}

type planResponse struct {
	SnapshotVersion uint64                   `json:"snapshotVersion"`
	Plan            calculator.DeductionPlan `json:"plan"`
}

type deductionResponse struct {
	SnapshotVersion uint64                   `json:"snapshotVersion"`
	Plan            calculator.DeductionPlan `json:"plan"`
	Result          fulfillment.Result       `json:"result"`
}

type deductionFailureResponse struct {
	errorResponse
	Plan   calculator.DeductionPlan `json:"plan"`
	Result fulfillment.Result       `json:"result"`
}

func (h *Handler) handlePackNeed(w http.ResponseWriter, r *http.Request) {
	var req needRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	snap, err := h.snapshot(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}

	results, err := h.calculator.ComputeNeed(snap.Records, calculator.NeedRequest{
		Category:    strings.TrimSpace(req.Category),
		AccentColor: req.Color,
		Size:        strings.ToUpper(strings.TrimSpace(req.Size)),
		AllSizes:    req.AllSizes,
		PackCount:   req.PackCount,
	})
	if err != nil {
		writeCalculatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, needResponse{
		SnapshotVersion: snap.Version,
		Category:        req.Category,
		PackCount:       req.PackCount,
		Results:         results,
	})
}

func (h *Handler) handlePlanDeduction(w http.ResponseWriter, r *http.Request) {
	var req deductionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	snap, err := h.snapshot(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}

	plan, err := h.calculator.PlanDeduction(snap.Records, req.toCalculator())
	if err != nil {
		writeCalculatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{SnapshotVersion: snap.Version, Plan: plan})
}

// handleApplyDeduction plans against a fresh read of the store and writes the
// plan. Writes made before a failure stay applied.
func (h *Handler) handleApplyDeduction(w http.ResponseWriter, r *http.Request) {
	var req deductionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var mode fulfillment.Mode
	if req.Mode != "" {
		parsed, err := fulfillment.ParseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
		mode = parsed
	}

	ctx := r.Context()
	snap, err := h.feed.Refresh(ctx)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	plan, err := h.calculator.PlanDeduction(snap.Records, req.toCalculator())
	if err != nil {
		writeCalculatorError(w, err)
		return
	}

	result, err := h.applier.Apply(ctx, plan, mode)
	h.refresh(ctx)
	if err != nil {
		if errors.Is(err, fulfillment.ErrWriteFailed) {
			writeJSON(w, http.StatusBadGateway, deductionFailureResponse{
				errorResponse: errorResponse{
					Error:      "Inventory write failed",
					Details:    err.Error(),
					Suggestion: "Writes listed under result.applied were kept; review stock before retrying",
				},
				Plan:   plan,
				Result: result,
			})
			return
		}
		writeInternalError(w, err)
		return
	}

	h.logger.Info("packs deducted",
		zap.String("category", req.Category),
		zap.Int("packs", plan.PacksPlanned),
		zap.Int("instructions", len(result.Applied)),
		zap.String("mode", string(result.Mode)),
		zap.String("request_id", requestIDFromContext(ctx)),
	)
	writeJSON(w, http.StatusOK, deductionResponse{
		SnapshotVersion: snap.Version,
		Plan:            plan,
		Result:          result,
	})
}

func (req deductionRequest) toCalculator() calculator.DeductionRequest {
	selections := make([]calculator.Selection, 0, len(req.Selections))
	for _, sel := range req.Selections {
		selections = append(selections, calculator.Selection{
			AccentColor: sel.AccentColor,
			Size:        strings.ToUpper(strings.TrimSpace(sel.Size)),
		})
	}
	return calculator.DeductionRequest{
		Category:   strings.TrimSpace(req.Category),
		Selections: selections,
	}
}

func writeCalculatorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calculator.ErrInvalidPackCount):
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error(), fmt.Sprintf("packCount must be between 1 and %d", calculator.MaxPackCount))
	case errors.Is(err, calculator.ErrUnknownSize):
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error(), "Use a size label listed by GET /api/catalog")
	case errors.Is(err, calculator.ErrMissingColor):
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
	default:
		writeInternalError(w, err)
	}
}
