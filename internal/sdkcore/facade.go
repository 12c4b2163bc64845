package sdkcore

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/localmind-ai/ondevice-sdk/internal/accel"
	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/ailog"
	"github.com/localmind-ai/ondevice-sdk/internal/dispatch"
	"github.com/localmind-ai/ondevice-sdk/internal/httpclient"
	"github.com/localmind-ai/ondevice-sdk/internal/llm"
	"github.com/localmind-ai/ondevice-sdk/internal/memory"
	"github.com/localmind-ai/ondevice-sdk/internal/registry"
	"github.com/localmind-ai/ondevice-sdk/internal/stt"
	"github.com/localmind-ai/ondevice-sdk/internal/telemetry"
	"github.com/localmind-ai/ondevice-sdk/internal/tts"
	"github.com/localmind-ai/ondevice-sdk/internal/voicepipeline"
)

// SDK is the process-wide façade owning every shared component.
type SDK struct {
	cfg Config

	Broker   *memory.Broker
	Dispatch *dispatch.Dispatcher
	Registry *registry.Registry
	Detector *accel.Detector
	LLM      *llm.Engine
	STT      *stt.Engine
	TTS      *tts.Engine
	Pipeline *voicepipeline.Pipeline

	// Telemetry is nil unless Config.EnableTelemetry is set.
	Telemetry *telemetry.Store

	httpClient *httpclient.Client
}

var (
	instanceSlot atomic.Pointer[SDK]
	initMu       sync.Mutex
	initInFlight atomic.Bool
)

// Backends bundles the three opaque engine-internal adapters the caller
// must supply; the SDK core never constructs a native inference backend
// itself (spec.md §1's explicit scope boundary).
type Backends struct {
	LLM llm.Backend
	STT stt.Backend
	TTS tts.Backend
}

// Initialize constructs the singleton façade under cfg, or returns
// InvalidInputConfiguration if one already exists. Concurrent callers
// resolve via compare-and-set: exactly one wins.
func Initialize(cfg Config, backends Backends) (*SDK, error) {
	if cfg.ThreadCount < 1 || cfg.ThreadCount > 64 {
		return nil, aierr.New(aierr.InvalidInputParameterValue, "thread_count must be within [1, 64]", "")
	}
	if cfg.ModelDirectory == "" {
		return nil, aierr.New(aierr.InvalidInputConfiguration, "model_directory is required and cannot be empty", "")
	}

	if !initInFlight.CompareAndSwap(false, true) {
		return nil, aierr.New(aierr.InvalidInputConfiguration, "initialize is already in progress on another goroutine", "")
	}
	defer initInFlight.Store(false)

	initMu.Lock()
	defer initMu.Unlock()

	if existing := instanceSlot.Load(); existing != nil {
		return nil, aierr.New(aierr.InvalidInputConfiguration, "SDK is already initialized; call shutdown first", "")
	}

	if err := os.MkdirAll(cfg.ModelDirectory, 0o755); err != nil {
		return nil, aierr.New(aierr.InvalidInputConfiguration, "could not create model directory", err.Error())
	}

	ailog.SetLevel(parseLogLevel(cfg.LogLevel))

	broker := memory.New(cfg.MemoryLimit)

	dispCfg := dispatch.Config{
		Synchronous:  cfg.SynchronousCallbacks,
		WorkerCount:  cfg.CallbackThreadCount,
		MaxQueueSize: 256,
	}
	disp := dispatch.New(dispCfg)

	httpClient := httpclient.New(30 * time.Second)

	reg, err := registry.New(cfg.ModelDirectory, cfg.RemoteRegistryURL, httpClient)
	if err != nil {
		disp.Shutdown()
		return nil, err
	}

	detector := accel.NewDetector()

	var store *telemetry.Store
	if cfg.EnableTelemetry {
		store, err = telemetry.Open(filepath.Join(cfg.ModelDirectory, "telemetry.sqlite3"))
		if err != nil {
			disp.Shutdown()
			return nil, err
		}
	}

	sdk := &SDK{
		cfg:        cfg,
		Broker:     broker,
		Dispatch:   disp,
		Registry:   reg,
		Detector:   detector,
		Telemetry:  store,
		httpClient: httpClient,
	}
	sdk.LLM = llm.New(backends.LLM, broker, disp, detector, cfg.ThreadCount)
	sdk.STT = stt.New(backends.STT, broker, detector, cfg.ThreadCount)
	sdk.TTS = tts.New(backends.TTS, broker, disp, detector, cfg.ThreadCount)
	sdk.Pipeline = voicepipeline.New(sdk.STT, sdk.LLM, sdk.TTS, disp)
	if store != nil {
		sdk.Pipeline.SetTelemetry(store)
	}

	instanceSlot.Store(sdk)
	ailog.Info("sdk initialized", "model_directory", cfg.ModelDirectory, "thread_count", cfg.ThreadCount)
	return sdk, nil
}

func parseLogLevel(s string) ailog.Level {
	switch s {
	case "Debug":
		return ailog.LevelDebug
	case "Warning":
		return ailog.LevelWarning
	case "Error":
		return ailog.LevelError
	default:
		return ailog.LevelInfo
	}
}

// GetInstance returns the current singleton, or nil if none exists.
func GetInstance() *SDK {
	return instanceSlot.Load()
}

// Shutdown idempotently tears down the engines (unloading every resident
// model), then the dispatcher, then the telemetry store when one is open.
// The registry and broker are not closed. It is a no-op if already shut down.
func (s *SDK) Shutdown() {
	initMu.Lock()
	defer initMu.Unlock()

	if instanceSlot.Load() != s {
		return
	}

	s.STT.UnloadAll()
	s.LLM.UnloadAll()
	s.TTS.UnloadAll()
	s.Dispatch.Shutdown()
	if s.Telemetry != nil {
		s.Telemetry.Close()
	}
	instanceSlot.Store(nil)
	ailog.Info("sdk shutdown complete")
}

// Config returns the façade's current configuration snapshot.
func (s *SDK) Config() Config { return s.cfg }

// SetThreadCount updates the engine thread count for future loads.
func (s *SDK) SetThreadCount(n int) error {
	if n < 1 || n > 64 {
		return aierr.New(aierr.InvalidInputParameterValue, "thread_count must be within [1, 64]", "")
	}
	s.cfg.ThreadCount = n
	return nil
}

// SetLogLevel updates the process-wide log gate.
func (s *SDK) SetLogLevel(level string) {
	s.cfg.LogLevel = level
	ailog.SetLevel(parseLogLevel(level))
}

// SetMemoryLimit updates the broker's configured byte limit.
func (s *SDK) SetMemoryLimit(limit int64) {
	s.cfg.MemoryLimit = limit
	s.Broker.SetMemoryLimit(limit)
}

// SetModelDirectory updates the configured model directory; empty values
// are silently ignored per spec.md §4.15.
func (s *SDK) SetModelDirectory(dir string) {
	if dir == "" {
		return
	}
	s.cfg.ModelDirectory = dir
}

// SetSynchronousCallbacks reconfigures the dispatcher's delivery mode.
func (s *SDK) SetSynchronousCallbacks(synchronous bool) {
	s.cfg.SynchronousCallbacks = synchronous
	s.Dispatch.Reconfigure(dispatch.Config{
		Synchronous:  synchronous,
		WorkerCount:  s.cfg.CallbackThreadCount,
		MaxQueueSize: 256,
	})
}

// SetCallbackThreadCount reconfigures the dispatcher's worker pool size.
func (s *SDK) SetCallbackThreadCount(n int) {
	if n < 1 {
		n = 1
	}
	s.cfg.CallbackThreadCount = n
	s.Dispatch.Reconfigure(dispatch.Config{
		Synchronous:  s.cfg.SynchronousCallbacks,
		WorkerCount:  n,
		MaxQueueSize: 256,
	})
}
