package carrier_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shipflow/internal/config"
	"shipflow/internal/services"
	"shipflow/internal/services/carrier"
)

func TestPatchSendsOnlyOwnedFields(t *testing.T) {
	var got map[string]any
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := carrier.NewClient(server.URL)
	fields := map[string]any{carrier.FieldCustomField2: carrier.SessionSpotField("12345", 7)}
	if err := client.Patch(context.Background(), "se-100", fields); err != nil {
		t.Fatalf("Patch returned error: %v", err)
	}
	if method != http.MethodPatch {
		t.Fatalf("expected PATCH, got %s", method)
	}
	if path != "/shipments/se-100" {
		t.Fatalf("unexpected path %q", path)
	}
	if len(got) != 1 || got[carrier.FieldCustomField2] != "12345  #7" {
		t.Fatalf("unexpected body %#v", got)
	}
}

func TestPatchRejectsForeignFields(t *testing.T) {
	client := carrier.NewClient("http://127.0.0.1:1")
	err := client.Patch(context.Background(), "se-1", map[string]any{"shipTo": "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !services.IsPermanent(err) {
		t.Fatal("foreign field writes must not be retried")
	}
}

func TestPatchStatusClassification(t *testing.T) {
	for status, permanent := range map[int]bool{
		http.StatusTooManyRequests:     false,
		http.StatusInternalServerError: false,
		http.StatusBadRequest:          true,
		http.StatusUnauthorized:        true,
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		err := carrier.NewClient(server.URL).Patch(context.Background(), "se-1", map[string]any{carrier.FieldLabelQueue: true})
		server.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", status)
		}
		if services.IsPermanent(err) != permanent {
			t.Fatalf("status %d: permanent=%v, want %v", status, services.IsPermanent(err), permanent)
		}
	}
}

func TestSessionSpotField(t *testing.T) {
	if got := carrier.SessionSpotField("12345", 7); got != "12345  #7" {
		t.Fatalf("unexpected field %q", got)
	}
	if got := carrier.SessionSpotField("", 7); got != "" {
		t.Fatalf("expected empty without session, got %q", got)
	}
	if got := carrier.SessionSpotField("12345", 0); got != "" {
		t.Fatalf("expected empty without spot, got %q", got)
	}
}

func TestConfiguredPatcherFallsBackToNoop(t *testing.T) {
	cfg := config.Default()
	if _, ok := carrier.NewConfiguredPatcher(&cfg).(carrier.NoopPatcher); !ok {
		t.Fatal("expected noop patcher without carrier url")
	}
	cfg.Services.CarrierURL = "https://carrier.example.com"
	if _, ok := carrier.NewConfiguredPatcher(&cfg).(*carrier.Client); !ok {
		t.Fatal("expected http patcher with carrier url")
	}
}
