package config

import (
	"testing"
	"time"
)

func TestDefaultsResolveKnownStopsLocally(t *testing.T) {
	cfg := defaultServerConfig()
	if cfg.GazetteerPath != "config/gazetteer.json" {
		t.Fatalf("expected the seed gazetteer by default, got %q", cfg.GazetteerPath)
	}
	if cfg.RegionalContext != "Coimbatore, Tamil Nadu, India" {
		t.Fatalf("regional context variant mismatch: %q", cfg.RegionalContext)
	}
	if cfg.RegionSuffix != "Tamil Nadu, India" {
		t.Fatalf("region suffix mismatch: %q", cfg.RegionSuffix)
	}
}

func TestDefaultsCarryTrackingTuning(t *testing.T) {
	cfg := defaultServerConfig()
	if cfg.ProximityThresholdM != 100 {
		t.Fatalf("proximity threshold: %f", cfg.ProximityThresholdM)
	}
	if cfg.AvgSpeedKmh != 40 || cfg.ETABufferMinPerKm != 2 || cfg.MinETAMinutes != 5 {
		t.Fatalf("eta defaults: %f %f %d", cfg.AvgSpeedKmh, cfg.ETABufferMinPerKm, cfg.MinETAMinutes)
	}
	if cfg.DefaultRadiusKm != 3 {
		t.Fatalf("default radius: %f", cfg.DefaultRadiusKm)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("PROXIMITY_THRESHOLD_M", "250")
	t.Setenv("GAZETTEER_PATH", "/etc/bus-tracking/gazetteer.json")
	t.Setenv("RESOLVE_DEADLINE", "30s")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ProximityThresholdM != 250 {
		t.Fatalf("threshold override not applied: %f", cfg.ProximityThresholdM)
	}
	if cfg.GazetteerPath != "/etc/bus-tracking/gazetteer.json" {
		t.Fatalf("gazetteer override not applied: %q", cfg.GazetteerPath)
	}
	if cfg.ResolveDeadline != 30*time.Second {
		t.Fatalf("deadline override not applied: %s", cfg.ResolveDeadline)
	}
}

func TestLoadServerConfigRejectsBadValues(t *testing.T) {
	t.Setenv("PROXIMITY_THRESHOLD_M", "-5")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected a validation error for a negative threshold")
	}
}
