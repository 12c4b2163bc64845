// Package envconfig provides the env-var loader helpers used by the SDK's
// cmd/ demo binaries, generalized from the teacher's cmd/gateway/config.go
// envStr/envInt/envFloat trio onto sdkcore.Config's fields.
package envconfig

import (
	"os"
	"strconv"

	"github.com/localmind-ai/ondevice-sdk/internal/sdkcore"
)

func Str(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func Int(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func Bool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func Int64(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// LoadSDKConfig populates an sdkcore.Config from the process environment,
// falling back to sdkcore.DefaultConfig() for anything unset.
func LoadSDKConfig() sdkcore.Config {
	def := sdkcore.DefaultConfig()
	return sdkcore.Config{
		ModelDirectory:       Str("ONDEVICESDK_MODEL_DIR", def.ModelDirectory),
		LogLevel:             Str("ONDEVICESDK_LOG_LEVEL", def.LogLevel),
		ThreadCount:          Int("ONDEVICESDK_THREAD_COUNT", def.ThreadCount),
		MemoryLimit:          Int64("ONDEVICESDK_MEMORY_LIMIT_BYTES", def.MemoryLimit),
		EnableTelemetry:      Bool("ONDEVICESDK_ENABLE_TELEMETRY", def.EnableTelemetry),
		CallbackThreadCount:  Int("ONDEVICESDK_CALLBACK_THREAD_COUNT", def.CallbackThreadCount),
		SynchronousCallbacks: Bool("ONDEVICESDK_SYNCHRONOUS_CALLBACKS", def.SynchronousCallbacks),
		RemoteRegistryURL:    Str("ONDEVICESDK_REMOTE_REGISTRY_URL", def.RemoteRegistryURL),
	}
}
