package main

import (
	"strings"
	"testing"
)

func TestRunRequiresProtocolDriver(t *testing.T) {
	useSim = false
	autoPair = false
	err := runServer(rootCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "--sim") {
		t.Fatalf("runServer() = %v, want protocol driver selection error", err)
	}
}

func TestAutoPairImpliesSim(t *testing.T) {
	useSim = false
	autoPair = true
	defer func() { useSim, autoPair = false, false }()

	// Force the config load to fail so runServer returns before binding a
	// listener; reaching that point means the driver check passed.
	configPath = "\x00invalid"
	defer func() { configPath = "config.yaml" }()

	err := runServer(rootCmd, nil)
	if err != nil && strings.Contains(err.Error(), "--sim") {
		t.Fatalf("runServer() = %v, --autopair should select the simulated client", err)
	}
}
