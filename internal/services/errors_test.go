package services_test

import (
	"errors"
	"strings"
	"testing"

	"threadwatch/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "reddit", "listing", "request failed", base)
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
	for _, fragment := range []string{"reddit", "listing", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker by default, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsTransient(t *testing.T) {
	validationErr := services.Wrap(services.ErrValidation, "discourse", "decode", "invalid", nil)
	if services.IsTransient(validationErr) {
		t.Fatal("expected validation error to be permanent")
	}
	timeoutErr := services.Wrap(services.ErrTimeout, "reddit", "comments", "deadline", errors.New("io"))
	if !services.IsTransient(timeoutErr) {
		t.Fatal("expected timeout to be transient")
	}
	if services.IsTransient(nil) {
		t.Fatal("expected nil error to be non-transient")
	}
	if got := services.ErrorHint(services.Wrap(services.ErrUnavailable, "store", "health", "", nil)); got != "store offline" {
		t.Fatalf("unexpected hint %q", got)
	}
}
