// Package sdkcore implements the façade (spec.md §4.15, C16): the
// process-wide singleton that owns config and wires the broker,
// dispatcher, registry, and three engines together, following the
// teacher's main.go wiring order in cmd/gateway/main.go.
package sdkcore

import "runtime"

// Config is the façade's public configuration surface (spec.md §4.15, §6).
type Config struct {
	ModelDirectory       string
	ThreadCount          int
	LogLevel             string
	MemoryLimit          int64
	EnableTelemetry      bool
	CallbackThreadCount  int
	SynchronousCallbacks bool
	RemoteRegistryURL    string
}

// DefaultThreadCount mirrors the spec's "default = hardware concurrency".
func DefaultThreadCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	if n > 64 {
		return 64
	}
	return n
}

// DefaultConfig returns a Config with every optional field at its
// documented default, leaving ModelDirectory for the caller to set.
func DefaultConfig() Config {
	return Config{
		ThreadCount:         DefaultThreadCount(),
		LogLevel:            "Info",
		MemoryLimit:         0,
		CallbackThreadCount: 1,
	}
}
