package main

import (
	"testing"
	"time"
)

func validConfig() *appConfig {
	return &appConfig{
		backend:      "gd32sim",
		bitrate:      500000,
		listenAddr:   ":20000",
		slcanDev:     "/dev/null",
		slcanBaud:    115200,
		slcanReadTO:  10 * time.Millisecond,
		canIf:        "can0",
		logFormat:    "text",
		logLevel:     "info",
		hubBuffer:    8,
		hubPolicy:    "drop",
		maxClients:   0,
		handshakeTO:  time.Second,
		clientReadTO: time.Second,
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badBackend", func(c *appConfig) { c.backend = "x" }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badBitrateZero", func(c *appConfig) { c.bitrate = 0 }},
		{"badBitrateHigh", func(c *appConfig) { c.bitrate = 2_000_000 }},
		{"badSlcanBaud", func(c *appConfig) { c.slcanBaud = 0 }},
		{"badSlcanTO", func(c *appConfig) { c.slcanReadTO = 0 }},
		{"badHandshakeTO", func(c *appConfig) { c.handshakeTO = 0 }},
		{"badClientReadTO", func(c *appConfig) { c.clientReadTO = 0 }},
		{"badMaxClients", func(c *appConfig) { c.maxClients = -1 }},
	}
	for _, tc := range tests {
		base := validConfig()
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
