package ndc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLookupPackages(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"packages": [
			{"ndc": "00071-0156-23", "unit": "tablet", "package_size": "30", "market_status": "active"},
			{"ndc": "00071-0156-40", "unit": "tablet", "package_size": "100", "market_status": "INACTIVE"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"}, nil, nil, nil)
	packages, err := client.LookupPackages(context.Background(), "00071-0156-23")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v1/ndc/00071-0156-23/packages" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("expected api key header, got %q", gotKey)
	}

	if len(packages) != 2 {
		t.Fatalf("expected 2 packages, got %+v", packages)
	}
	if packages[0].QuantityPerPackage != 30 || !packages[0].Active {
		t.Errorf("unexpected first package: %+v", packages[0])
	}
	if packages[1].Active {
		t.Error("expected inactive market status to map to Active=false")
	}
}

func TestLookupPackagesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, nil, nil, nil)
	_, err := client.LookupPackages(context.Background(), "99999-0000-00")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupPackagesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, nil, nil, nil)
	_, err := client.LookupPackages(context.Background(), "00071-0156-23")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestLookupPackagesEmptyNDC(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://directory.local"}, nil, nil, nil)
	_, err := client.LookupPackages(context.Background(), "   ")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream for empty ndc, got %v", err)
	}
}

// Directory records are not guaranteed numeric sizes; unparseable sizes
// become 0 so the selector skips them instead of the lookup failing.
func TestLookupPackagesNonNumericSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"packages": [
			{"ndc": "00071-0156-23", "unit": "tablet", "package_size": "30 count bottle", "market_status": "active"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, nil, nil, nil)
	packages, err := client.LookupPackages(context.Background(), "00071-0156-23")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(packages) != 1 {
		t.Fatalf("expected 1 package, got %+v", packages)
	}
	if packages[0].QuantityPerPackage != 0 {
		t.Errorf("expected size 0 for non-numeric input, got %d", packages[0].QuantityPerPackage)
	}
}

func TestLookupPackagesInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, nil, nil, nil)
	_, err := client.LookupPackages(context.Background(), "00071-0156-23")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream for invalid json, got %v", err)
	}
}

func TestIsConfigured(t *testing.T) {
	if NewClient(Config{}, nil, nil, nil).IsConfigured() {
		t.Error("expected unconfigured without a base URL")
	}
	if !NewClient(Config{BaseURL: "http://directory.local"}, nil, nil, nil).IsConfigured() {
		t.Error("expected configured with a base URL")
	}
	var nilClient *Client
	if nilClient.IsConfigured() {
		t.Error("expected nil client to report unconfigured")
	}
}
