package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/stock-packs/internal/calculator"
	"github.com/eugenenazirov/stock-packs/internal/feed"
	"github.com/eugenenazirov/stock-packs/internal/fulfillment"
	"github.com/eugenenazirov/stock-packs/internal/inventory"
	"github.com/eugenenazirov/stock-packs/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	maxBodyBytes     = 1 << 20
	defaultHeartbeat = 25 * time.Second
)

// Handler wires the calculator, store and inventory feed into HTTP handlers.
type Handler struct {
	calculator calculator.Calculator
	storage    storage.Storage
	feed       *feed.Feed
	applier    *fulfillment.Applier
	rules      inventory.Rules
	logger     *zap.Logger

	clock     func() time.Time
	heartbeat time.Duration
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithFeed sets the feed whose cache serves reads. By default the handler
// builds a cache-only feed over the store.
func WithFeed(f *feed.Feed) HandlerOption {
	return func(h *Handler) {
		h.feed = f
	}
}

// WithApplier sets the applier used by the deduction endpoint.
func WithApplier(a *fulfillment.Applier) HandlerOption {
	return func(h *Handler) {
		h.applier = a
	}
}

// WithRules sets the business rules used to normalize records.
func WithRules(rules inventory.Rules) HandlerOption {
	return func(h *Handler) {
		h.rules = rules
	}
}

// WithLogger sets the logger for write operations.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithStreamHeartbeat sets the keep-alive interval of the snapshot stream.
func WithStreamHeartbeat(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.heartbeat = d
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(calc calculator.Calculator, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		calculator: calc,
		storage:    store,
		rules:      inventory.DefaultRules(),
		logger:     zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
		heartbeat: defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.feed == nil {
		h.feed = feed.New(store, nil, feed.NewCache(feed.WithClock(h.clock)))
	}
	if h.applier == nil {
		h.applier = fulfillment.NewApplier(store, fulfillment.WithLogger(h.logger))
	}
	if h.heartbeat <= 0 {
		h.heartbeat = defaultHeartbeat
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:          "ok",
		Timestamp:       h.clock(),
		SnapshotVersion: h.feed.Cache().Version(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	_ = r
	writeJSON(w, http.StatusOK, inventory.NewCatalog(h.rules))
}

// snapshot returns the cached inventory, reading the store once if nothing
// has been published yet.
func (h *Handler) snapshot(ctx context.Context) (feed.Snapshot, error) {
	cache := h.feed.Cache()
	if cache.Version() > 0 {
		return cache.Snapshot(), nil
	}
	return h.feed.Refresh(ctx)
}

// refresh republishes the store after a write so the next read sees it.
func (h *Handler) refresh(ctx context.Context) {
	if _, err := h.feed.Refresh(ctx); err != nil {
		h.logger.Warn("failed to refresh inventory snapshot",
			zap.String("request_id", requestIDFromContext(ctx)),
			zap.Error(err),
		)
	}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type healthResponse struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	SnapshotVersion uint64    `json:"snapshotVersion"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}

// writeStoreError maps store and validation errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Record not found", err.Error())
	case errors.Is(err, inventory.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, "Invalid record", err.Error(),
			"Check the size label, category and collar style against GET /api/catalog")
	case errors.Is(err, storage.ErrNegativeQuantity):
		writeError(w, http.StatusBadRequest, "Invalid quantity", err.Error())
	default:
		writeInternalError(w, err)
	}
}
