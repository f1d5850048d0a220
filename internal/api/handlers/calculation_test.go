package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/drfirst/go-sigcalc/internal/calculator"
	"github.com/drfirst/go-sigcalc/internal/domain/dispense"
)

// stubDirectory serves canned package lists and records lookups.
type stubDirectory struct {
	packages []dispense.Package
	err      error
	lookups  []string
}

func (s *stubDirectory) IsConfigured() bool { return true }

func (s *stubDirectory) LookupPackages(_ context.Context, ndc string) ([]dispense.Package, error) {
	s.lookups = append(s.lookups, ndc)
	if s.err != nil {
		return nil, s.err
	}
	return s.packages, nil
}

func newTestHandler(directory PackageDirectory) *CalculationHandler {
	calc := calculator.New(calculator.DefaultConfig(), nil, nil, nil)
	return NewCalculationHandler(calc, directory, nil, nil)
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCalculateEndpoint(t *testing.T) {
	h := newTestHandler(nil)
	rec := postJSON(t, h.Routes(), "/", `{
		"sig_text": "Take 1 tablet twice daily",
		"days_supply": 30
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result calculator.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if result.TotalQuantity != 60 {
		t.Errorf("expected total 60, got %g", result.TotalQuantity)
	}
}

func TestCalculateEndpointInvalidBody(t *testing.T) {
	h := newTestHandler(nil)
	rec := postJSON(t, h.Routes(), "/", `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCalculateEndpointBadDaysSupply(t *testing.T) {
	h := newTestHandler(nil)
	rec := postJSON(t, h.Routes(), "/", `{
		"sig_text": "Take 1 tablet twice daily",
		"days_supply": 0
	}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error json: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected an error message in the body")
	}
}

func TestCalculateEndpointFillsPackagesFromDirectory(t *testing.T) {
	dir := &stubDirectory{
		packages: []dispense.Package{
			{NDC: "00071-0156-23", Unit: "tablet", QuantityPerPackage: 30, Active: true},
		},
	}
	h := newTestHandler(dir)
	rec := postJSON(t, h.Routes(), "/", `{
		"ndc": "00071-0156-23",
		"sig_text": "Take 1 tablet twice daily",
		"days_supply": 30
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(dir.lookups) != 1 || dir.lookups[0] != "00071-0156-23" {
		t.Errorf("expected one directory lookup, got %v", dir.lookups)
	}

	var result calculator.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if len(result.DispensePlan) != 1 || result.DispensePlan[0].Count != 2 {
		t.Errorf("expected a 2x30 plan from directory packages, got %+v", result.DispensePlan)
	}
}

func TestCalculateEndpointDirectoryFailureIsNonFatal(t *testing.T) {
	dir := &stubDirectory{err: errors.New("directory down")}
	h := newTestHandler(dir)
	rec := postJSON(t, h.Routes(), "/", `{
		"ndc": "00071-0156-23",
		"sig_text": "Take 1 tablet twice daily",
		"days_supply": 30
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite lookup failure, got %d: %s", rec.Code, rec.Body.String())
	}

	var result calculator.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if result.TotalQuantity != 60 {
		t.Errorf("expected total 60, got %g", result.TotalQuantity)
	}
	if len(result.DispensePlan) != 0 {
		t.Errorf("expected no plan without packages, got %+v", result.DispensePlan)
	}
}

func TestCalculateEndpointInlinePackagesSkipDirectory(t *testing.T) {
	dir := &stubDirectory{err: errors.New("should not be called")}
	h := newTestHandler(dir)
	rec := postJSON(t, h.Routes(), "/", `{
		"ndc": "00071-0156-23",
		"sig_text": "Take 1 tablet twice daily",
		"days_supply": 30,
		"packages": [
			{"ndc": "00071-0156-23", "unit": "tablet", "quantity_per_package": 60, "active": true}
		]
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(dir.lookups) != 0 {
		t.Errorf("expected no directory lookup with inline packages, got %v", dir.lookups)
	}
}

func TestBatchEndpoint(t *testing.T) {
	h := newTestHandler(nil)
	rec := postJSON(t, h.Routes(), "/batch", `{
		"calculations": [
			{"sig_text": "Take 1 tablet twice daily", "days_supply": 30},
			{"sig_text": "Take 1 tablet daily", "days_supply": 0},
			{"sig_text": "Take 2 tablets three times daily", "days_supply": 10}
		]
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp BatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if resp.Succeeded != 2 || resp.Failed != 1 {
		t.Fatalf("expected 2 succeeded / 1 failed, got %+v", resp)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(resp.Items))
	}
	if resp.Items[0].Result == nil || resp.Items[0].Result.TotalQuantity != 60 {
		t.Errorf("unexpected item 0: %+v", resp.Items[0])
	}
	if resp.Items[1].Error == "" || resp.Items[1].Result != nil {
		t.Errorf("expected item 1 to carry an error, got %+v", resp.Items[1])
	}
	if resp.Items[2].Result == nil || resp.Items[2].Result.TotalQuantity != 60 {
		t.Errorf("unexpected item 2: %+v", resp.Items[2])
	}
}

func TestBatchEndpointEmpty(t *testing.T) {
	h := newTestHandler(nil)
	rec := postJSON(t, h.Routes(), "/batch", `{"calculations": []}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty batch, got %d", rec.Code)
	}
}

func TestBatchEndpointTooLarge(t *testing.T) {
	items := make([]string, 101)
	for i := range items {
		items[i] = `{"sig_text": "Take 1 tablet daily", "days_supply": 30}`
	}
	body := fmt.Sprintf(`{"calculations": [%s]}`, strings.Join(items, ","))

	h := newTestHandler(nil)
	rec := postJSON(t, h.Routes(), "/batch", body)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 for oversized batch, got %d", rec.Code)
	}
}

func TestListRecentWithoutStore(t *testing.T) {
	h := newTestHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without an audit store, got %d", rec.Code)
	}
}

func TestListRecentBadLimit(t *testing.T) {
	h := newTestHandler(nil)
	for _, limit := range []string{"abc", "0", "-5"} {
		req := httptest.NewRequest(http.MethodGet, "/?limit="+limit, nil)
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", limit, rec.Code)
		}
	}
}

func TestGetAuditWithoutStore(t *testing.T) {
	h := newTestHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/some-id", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without an audit store, got %d", rec.Code)
	}
}
