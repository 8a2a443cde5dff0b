package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := validConfig()
	base.backend = "socketcan"
	base.simEcho = true

	// Set env overrides
	os.Setenv("CAN_BRIDGE_BITRATE", "250000")
	os.Setenv("CAN_BRIDGE_MDNS_ENABLE", "true")
	os.Setenv("CAN_BRIDGE_SLCAN_READ_TIMEOUT", "100ms")
	os.Setenv("CAN_BRIDGE_LOG_METRICS_INTERVAL", "5s")
	os.Setenv("CAN_BRIDGE_SIM_ECHO", "off")
	t.Cleanup(func() {
		os.Unsetenv("CAN_BRIDGE_BITRATE")
		os.Unsetenv("CAN_BRIDGE_MDNS_ENABLE")
		os.Unsetenv("CAN_BRIDGE_SLCAN_READ_TIMEOUT")
		os.Unsetenv("CAN_BRIDGE_LOG_METRICS_INTERVAL")
		os.Unsetenv("CAN_BRIDGE_SIM_ECHO")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.bitrate != 250000 {
		t.Fatalf("expected bitrate override, got %d", base.bitrate)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.slcanReadTO != 100*time.Millisecond {
		t.Fatalf("expected slcanReadTO 100ms got %v", base.slcanReadTO)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
	if base.simEcho {
		t.Fatalf("expected simEcho off")
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{bitrate: 500000}
	os.Setenv("CAN_BRIDGE_BITRATE", "125000")
	t.Cleanup(func() { os.Unsetenv("CAN_BRIDGE_BITRATE") })
	// Simulate user passed -bitrate flag (so env should be ignored)
	if err := applyEnvOverrides(base, map[string]struct{}{"bitrate": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.bitrate != 500000 {
		t.Fatalf("expected bitrate unchanged 500000 got %d", base.bitrate)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{hubBuffer: 512}
	os.Setenv("CAN_BRIDGE_HUB_BUFFER", "notint")
	t.Cleanup(func() { os.Unsetenv("CAN_BRIDGE_HUB_BUFFER") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
