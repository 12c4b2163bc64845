// Package ondevicesdk is the public entry point for the on-device AI SDK:
// model lifecycle, a voice pipeline, and the supporting registry/download
// machinery, built on the internal engines in internal/llm, internal/stt,
// and internal/tts. Everything fallible returns a plain Go error; callers
// that need the tagged error kind should use errors.As against *aierr.Error
// exposed via the Err* kind constants re-exported below.
package ondevicesdk

import (
	"github.com/localmind-ai/ondevice-sdk/internal/accel"
	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/dispatch"
	"github.com/localmind-ai/ondevice-sdk/internal/llm"
	"github.com/localmind-ai/ondevice-sdk/internal/memory"
	"github.com/localmind-ai/ondevice-sdk/internal/registry"
	"github.com/localmind-ai/ondevice-sdk/internal/sdkcore"
	"github.com/localmind-ai/ondevice-sdk/internal/stt"
	"github.com/localmind-ai/ondevice-sdk/internal/tts"
)

// Error is the SDK's tagged error shape; use errors.As to extract it.
type Error = aierr.Error

// ErrorKind re-exports the stable error taxonomy (spec.md §7).
type ErrorKind = aierr.Kind

const (
	ErrInvalidInputNullPointer        = aierr.InvalidInputNullPointer
	ErrInvalidInputParameterValue     = aierr.InvalidInputParameterValue
	ErrInvalidInputAudioFormat        = aierr.InvalidInputAudioFormat
	ErrInvalidInputModelHandle        = aierr.InvalidInputModelHandle
	ErrInvalidInputConfiguration      = aierr.InvalidInputConfiguration
	ErrModelFileNotFound              = aierr.ModelFileNotFound
	ErrModelFileCorrupted             = aierr.ModelFileCorrupted
	ErrModelNotFoundInRegistry        = aierr.ModelNotFoundInRegistry
	ErrInferenceModelNotLoaded        = aierr.InferenceModelNotLoaded
	ErrInferenceContextWindowExceeded = aierr.InferenceContextWindowExceeded
	ErrResourceOutOfMemory            = aierr.ResourceOutOfMemory
	ErrStorageInsufficientSpace       = aierr.StorageInsufficientSpace
	ErrNetworkUnreachable             = aierr.NetworkUnreachable
	ErrOperationCancelled             = aierr.OperationCancelled
)

// Config is the façade's public configuration surface (spec.md §4.15).
type Config = sdkcore.Config

// DefaultConfig returns a Config with every optional field at its
// documented default.
func DefaultConfig() Config { return sdkcore.DefaultConfig() }

// Backends bundles the three opaque engine-internal adapters a concrete
// deployment must supply (llama.cpp/whisper.cpp/onnxruntime-class
// backends are out of this SDK's scope per spec.md §1).
type Backends = sdkcore.Backends
type LLMBackend = llm.Backend
type STTBackend = stt.Backend
type TTSBackend = tts.Backend

// SDK is the process-wide façade handle returned by Initialize.
type SDK struct {
	core *sdkcore.SDK
}

// Initialize constructs the process singleton. A second concurrent or
// sequential call while an instance exists returns InvalidInputConfiguration.
func Initialize(cfg Config, backends Backends) (*SDK, error) {
	core, err := sdkcore.Initialize(cfg, backends)
	if err != nil {
		return nil, err
	}
	return &SDK{core: core}, nil
}

// GetInstance returns the current singleton, or nil if none exists.
func GetInstance() *SDK {
	core := sdkcore.GetInstance()
	if core == nil {
		return nil
	}
	return &SDK{core: core}
}

// Shutdown idempotently tears down every owned component.
func (s *SDK) Shutdown() { s.core.Shutdown() }

// Config returns the façade's current configuration snapshot.
func (s *SDK) Config() Config { return s.core.Config() }

func (s *SDK) SetThreadCount(n int) error        { return s.core.SetThreadCount(n) }
func (s *SDK) SetLogLevel(level string)          { s.core.SetLogLevel(level) }
func (s *SDK) SetMemoryLimit(limitBytes int64)   { s.core.SetMemoryLimit(limitBytes) }
func (s *SDK) SetModelDirectory(dir string)      { s.core.SetModelDirectory(dir) }
func (s *SDK) SetSynchronousCallbacks(sync bool) { s.core.SetSynchronousCallbacks(sync) }
func (s *SDK) SetCallbackThreadCount(n int)      { s.core.SetCallbackThreadCount(n) }

// LLM returns the façade-owned LLM engine handle.
func (s *SDK) LLM() *LLMEngine { return &LLMEngine{e: s.core.LLM} }

// STT returns the façade-owned STT engine handle.
func (s *SDK) STT() *STTEngine { return &STTEngine{e: s.core.STT} }

// TTS returns the façade-owned TTS engine handle.
func (s *SDK) TTS() *TTSEngine { return &TTSEngine{e: s.core.TTS} }

// Pipeline returns the façade-owned voice pipeline orchestrator.
func (s *SDK) Pipeline() *VoicePipeline { return &VoicePipeline{p: s.core.Pipeline} }

// Registry returns the façade-owned model registry.
func (s *SDK) Registry() *ModelRegistry { return &ModelRegistry{r: s.core.Registry} }

// Broker exposes the façade-owned memory broker for diagnostics/testing.
func (s *SDK) Broker() *memory.Broker { return s.core.Broker }

// Dispatcher exposes the façade-owned callback dispatcher for diagnostics/testing.
func (s *SDK) Dispatcher() *dispatch.Dispatcher { return s.core.Dispatch }

// Detector exposes the façade-owned hardware accelerator detector.
func (s *SDK) Detector() *accel.Detector { return s.core.Detector }

// RegistryModelType re-exports registry.ModelType for public filtering calls.
type RegistryModelType = registry.ModelType

const (
	TypeLLM = registry.TypeLLM
	TypeSTT = registry.TypeSTT
	TypeTTS = registry.TypeTTS
)

// DeviceCapabilities re-exports registry.DeviceCapabilities.
type DeviceCapabilities = registry.DeviceCapabilities

// ModelInfo re-exports registry.ModelInfo, the canonical catalog entry shape.
type ModelInfo = registry.ModelInfo
