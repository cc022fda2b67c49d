package config

import (
	"testing"
	"time"
)

func TestParseDurationFieldEmpty(t *testing.T) {
	d, err := ParseDurationField("scheduler.past_due_tolerance", "")
	if err != nil {
		t.Fatalf("ParseDurationField: %v", err)
	}
	if d != 0 {
		t.Fatalf("d = %v, want 0", d)
	}
}

func TestParseDurationFieldValid(t *testing.T) {
	d, err := ParseDurationField("x", "30s")
	if err != nil {
		t.Fatalf("ParseDurationField: %v", err)
	}
	if d != 30*time.Second {
		t.Fatalf("d = %v, want 30s", d)
	}
}

func TestParseDurationFieldInvalid(t *testing.T) {
	if _, err := ParseDurationField("x", "not-a-duration"); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestParseDurationFieldNegative(t *testing.T) {
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestParseDurationOrDefaultUsesDefaultWhenZero(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 30*time.Second)
	if err != nil {
		t.Fatalf("ParseDurationOrDefault: %v", err)
	}
	if d != 30*time.Second {
		t.Fatalf("d = %v, want default 30s", d)
	}
}

func TestParseDurationOrDefaultUsesProvided(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "10m", 30*time.Second)
	if err != nil {
		t.Fatalf("ParseDurationOrDefault: %v", err)
	}
	if d != 10*time.Minute {
		t.Fatalf("d = %v, want 10m", d)
	}
}

func TestParseDurationOrDefaultPropagatesError(t *testing.T) {
	if _, err := ParseDurationOrDefault("x", "garbage", time.Second); err == nil {
		t.Fatal("expected error to propagate")
	}
}
