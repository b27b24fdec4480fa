package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/stock-packs/internal/api"
	"github.com/eugenenazirov/stock-packs/internal/application"
	"github.com/eugenenazirov/stock-packs/internal/calculator"
	"github.com/eugenenazirov/stock-packs/internal/inventory"
	"github.com/eugenenazirov/stock-packs/internal/storage"
)

func newRouter(t *testing.T) (http.Handler, *storage.MemoryStorage) {
	t.Helper()

	store := storage.NewMemoryStorage()
	rules := inventory.DefaultRules()
	logger := zaptest.NewLogger(t)
	handler := api.NewHandler(calculator.New(rules), store, api.WithRules(rules), api.WithLogger(logger))
	return application.BuildRootHandler(api.NewRouter(handler, logger)), store
}

func performRequest(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	reader := bytes.NewReader(nil)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createRecord(t *testing.T, handler http.Handler, payload map[string]any) inventory.Record {
	t.Helper()

	rec := performRequest(t, handler, http.MethodPost, "/api/inventory", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from create, got %d: %s", rec.Code, rec.Body.String())
	}
	var created inventory.Record
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode created record: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated record id")
	}
	return created
}

func TestIntegrationFlow(t *testing.T) {
	handler, store := newRouter(t)

	rec := performRequest(t, handler, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", rec.Code)
	}

	base := createRecord(t, handler, map[string]any{
		"size": "6", "color": "Blanco", "quantity": 10, "category": "Kids",
	})
	accent := createRecord(t, handler, map[string]any{
		"size": "6", "color": "rosado", "quantity": 4, "category": "Niña",
	})
	if base.Color != "blanco" {
		t.Fatalf("expected color to be normalized on create, got %q", base.Color)
	}

	rec = performRequest(t, handler, http.MethodPost, "/api/packs/need", map[string]any{
		"category": "Niña", "color": "rosado", "size": "6", "packCount": 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from need, got %d: %s", rec.Code, rec.Body.String())
	}
	var need struct {
		Results []calculator.PackResult `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&need); err != nil {
		t.Fatalf("decode need response: %v", err)
	}
	if len(need.Results) != 1 || need.Results[0].Status != calculator.StatusOK {
		t.Fatalf("unexpected need results %+v", need.Results)
	}

	deduction := map[string]any{
		"category":   "Niña",
		"selections": []map[string]string{{"color": "rosado", "size": "6"}},
	}

	rec = performRequest(t, handler, http.MethodPost, "/api/packs/deduction/plan", deduction)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from plan, got %d: %s", rec.Code, rec.Body.String())
	}
	var planned struct {
		Plan calculator.DeductionPlan `json:"plan"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&planned); err != nil {
		t.Fatalf("decode plan response: %v", err)
	}
	if planned.Plan.PacksPlanned != 1 || len(planned.Plan.Instructions) != 2 {
		t.Fatalf("unexpected plan %+v", planned.Plan)
	}

	rec = performRequest(t, handler, http.MethodPost, "/api/packs/deduction", deduction)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from deduction, got %d: %s", rec.Code, rec.Body.String())
	}

	ctx := context.Background()
	gotBase, err := store.Get(ctx, base.ID)
	if err != nil {
		t.Fatalf("get base record: %v", err)
	}
	gotAccent, err := store.Get(ctx, accent.ID)
	if err != nil {
		t.Fatalf("get accent record: %v", err)
	}
	if gotBase.Quantity != 8 || gotAccent.Quantity != 2 {
		t.Fatalf("unexpected quantities base=%d accent=%d", gotBase.Quantity, gotAccent.Quantity)
	}

	rec = performRequest(t, handler, http.MethodGet, "/api/inventory/groups", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from groups, got %d", rec.Code)
	}
	var groups struct {
		Groups []inventory.Group `json:"groups"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&groups); err != nil {
		t.Fatalf("decode groups response: %v", err)
	}
	if len(groups.Groups) != 2 {
		t.Fatalf("expected two groups, got %d", len(groups.Groups))
	}
	for _, group := range groups.Groups {
		if group.Color == "rosado" && group.Items[0].Level != inventory.LevelOf(2) {
			t.Fatalf("expected accent level to reflect deduction, got %s", group.Items[0].Level)
		}
	}
}
