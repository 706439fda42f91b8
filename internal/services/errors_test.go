package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"shipflow/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "hydration", "load items", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"hydration", "load items", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("io"), false},
		{"transient", services.Wrap(services.ErrTransient, "x", "y", "", nil), false},
		{"not found", services.Wrap(services.ErrNotFound, "hydration", "items", "", nil), false},
		{"timeout", services.Wrap(services.ErrTimeout, "rates", "call", "", nil), false},
		{"permanent", services.Wrap(services.ErrPermanent, "carrier", "patch", "", nil), true},
		{"validation", fmt.Errorf("outer: %w", services.ErrValidation), true},
		{"configuration", services.Wrap(services.ErrConfiguration, "", "", "", nil), true},
	}
	for _, tc := range cases {
		if got := services.IsPermanent(tc.err); got != tc.want {
			t.Fatalf("%s: IsPermanent = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestStatusErrorClassification(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusInternalServerError, services.ErrTransient},
		{http.StatusBadGateway, services.ErrTransient},
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusRequestTimeout, services.ErrTimeout},
		{http.StatusBadRequest, services.ErrPermanent},
		{http.StatusUnprocessableEntity, services.ErrPermanent},
		{http.StatusConflict, services.ErrPermanent},
	}
	for _, tc := range cases {
		err := &services.StatusError{Service: "carrier", Method: http.MethodPatch, StatusCode: tc.code}
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.code, tc.want, errors.Unwrap(err))
		}
	}
	if services.ClassifyStatus(http.StatusNoContent) != nil {
		t.Fatal("expected success status to classify as nil")
	}
	err := &services.StatusError{Service: "carrier", Method: "PATCH", StatusCode: 400, Body: "bad field"}
	if !strings.Contains(err.Error(), "bad field") {
		t.Fatalf("expected body in error string, got %q", err.Error())
	}
}

func TestIsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !services.IsCancellation(ctx, fmt.Errorf("call: %w", ctx.Err())) {
		t.Fatal("expected cancelled context error to be a cancellation")
	}
	if services.IsCancellation(context.Background(), errors.New("boom")) {
		t.Fatal("expected plain error not to be a cancellation")
	}
}
