// Package tts implements the text-to-speech engine (spec.md §4.13, C14):
// synthesis with speed/pitch post-processing, a multi-voice catalog, and
// streaming chunk delivery via the callback dispatcher.
package tts

import (
	"fmt"
	"strings"
	"sync"

	"github.com/localmind-ai/ondevice-sdk/internal/accel"
	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/ailog"
	"github.com/localmind-ai/ondevice-sdk/internal/audiofmt"
	"github.com/localmind-ai/ondevice-sdk/internal/dispatch"
	"github.com/localmind-ai/ondevice-sdk/internal/memory"
	"github.com/localmind-ai/ondevice-sdk/internal/retry"
)

// Handle identifies one loaded TTS model instance.
type Handle uint64

// Gender is one of the VoiceInfo gender enum values (spec.md §3).
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"
)

// VoiceInfo describes one catalog entry.
type VoiceInfo struct {
	ID       string
	Name     string
	Language string
	Gender   Gender
}

// Config controls one synthesize call (spec.md §3 SynthesisConfig).
// Pitch is interpreted on the [-1.0, 1.0] convention — see DESIGN.md's
// Open Question decision for why this reading was chosen over [0.5, 2.0].
type Config struct {
	VoiceID string
	Speed   float64
	Pitch   float64
}

// DefaultConfig returns neutral speed/pitch with the catalog's first voice.
func DefaultConfig() Config {
	return Config{Speed: 1.0, Pitch: 0.0}
}

// Backend is the opaque adapter over a native TTS library (onnxruntime-class).
type Backend interface {
	Load(path string, accelerator accel.Kind, threadCount int) (nativeCtxHandle uintptr, voices []VoiceInfo, sampleRate int, err error)
	Unload(nativeCtxHandle uintptr)
	Synthesize(nativeCtxHandle uintptr, text, voiceID string) (audiofmt.Data, error)
	SizeBytes(path string) (int64, error)
}

type loadedModel struct {
	nativeCtx  uintptr
	voices     []VoiceInfo
	sampleRate int
	mu         sync.Mutex
}

// Engine owns every loaded TTS instance.
type Engine struct {
	backend     Backend
	broker      *memory.Broker
	disp        *dispatch.Dispatcher
	detector    *accel.Detector
	threadCount int

	mu     sync.RWMutex
	models map[Handle]*loadedModel
}

// New constructs a TTS engine over backend.
func New(backend Backend, broker *memory.Broker, disp *dispatch.Dispatcher, detector *accel.Detector, threadCount int) *Engine {
	return &Engine{
		backend:     backend,
		broker:      broker,
		disp:        disp,
		detector:    detector,
		threadCount: threadCount,
		models:      make(map[Handle]*loadedModel),
	}
}

// LoadModel loads path plus its voice catalog, evicting broker victims if required.
func (e *Engine) LoadModel(path string, unloadVictim func(Handle)) (Handle, error) {
	size, err := e.backend.SizeBytes(path)
	if err != nil {
		return 0, aierr.New(aierr.ModelFileNotFound, "could not determine model file size", path)
	}

	if e.broker.NeedsEviction(size) {
		for _, h := range e.broker.GetEvictionCandidates(size) {
			unloadVictim(Handle(h))
			if !e.broker.NeedsEviction(size) {
				break
			}
		}
		if e.broker.NeedsEviction(size) {
			return 0, memory.ErrOutOfMemory(size)
		}
	}

	kind, err := accel.Select(e.detector, accel.Config{
		PreferredAccelerators: []accel.Kind{accel.CPU},
		FallbackToCPU:         true,
	})
	if err != nil {
		return 0, err
	}

	nativeCtx, voices, sampleRate, err := e.backend.Load(path, kind, e.threadCount)
	if err != nil {
		return 0, aierr.New(aierr.InferenceHardwareAccelerationFailure, "backend failed to load model", err.Error())
	}
	if len(voices) == 0 {
		e.backend.Unload(nativeCtx)
		return 0, aierr.New(aierr.ModelFileCorrupted, "TTS model loaded with an empty voice catalog", path)
	}

	handle := Handle(e.broker.AllocateHandle())
	guard := retry.NewCleanupGuard(func() { e.backend.Unload(nativeCtx) })
	defer guard.Trigger()

	e.mu.Lock()
	e.models[handle] = &loadedModel{nativeCtx: nativeCtx, voices: voices, sampleRate: sampleRate}
	e.mu.Unlock()

	e.broker.TrackAllocation(uint64(handle), size)
	guard.Dismiss()
	ailog.Info("tts model loaded", "handle", handle, "path", path, "voices", len(voices), "accelerator", kind)
	return handle, nil
}

func (e *Engine) get(handle Handle) (*loadedModel, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.models[handle]
	if !ok {
		return nil, aierr.New(aierr.InvalidInputModelHandle, "handle does not refer to a loaded model", fmt.Sprintf("handle=%d", handle))
	}
	return m, nil
}

// UnloadModel tears down backend state and drops broker accounting.
func (e *Engine) UnloadModel(handle Handle) error {
	e.mu.Lock()
	m, ok := e.models[handle]
	if !ok {
		e.mu.Unlock()
		return aierr.New(aierr.InvalidInputModelHandle, "handle does not refer to a loaded model", fmt.Sprintf("handle=%d", handle))
	}
	delete(e.models, handle)
	e.mu.Unlock()

	e.backend.Unload(m.nativeCtx)
	e.broker.TrackDeallocation(uint64(handle))
	return nil
}

// UnloadAll tears down every resident model, for use during SDK shutdown
// (spec.md §4.15).
func (e *Engine) UnloadAll() {
	e.mu.Lock()
	handles := make([]Handle, 0, len(e.models))
	for h := range e.models {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	for _, h := range handles {
		_ = e.UnloadModel(h)
	}
}

// GetAvailableVoices returns handle's voice catalog.
func (e *Engine) GetAvailableVoices(handle Handle) ([]VoiceInfo, error) {
	m, err := e.get(handle)
	if err != nil {
		return nil, err
	}
	out := make([]VoiceInfo, len(m.voices))
	copy(out, m.voices)
	return out, nil
}

func (m *loadedModel) resolveVoice(voiceID string) (string, error) {
	if voiceID == "" {
		return m.voices[0].ID, nil
	}
	for _, v := range m.voices {
		if v.ID == voiceID {
			return v.ID, nil
		}
	}
	ids := make([]string, len(m.voices))
	for i, v := range m.voices {
		ids[i] = v.ID
	}
	return "", aierr.New(aierr.InvalidInputParameterValue, "unknown voice id", "catalog=["+strings.Join(ids, ",")+"]")
}

// Synthesize runs backend synthesis then applies speed/pitch post-processing.
func (e *Engine) Synthesize(handle Handle, text string, cfg Config) (audiofmt.Data, error) {
	m, err := e.get(handle)
	if err != nil {
		return audiofmt.Data{}, err
	}
	if strings.TrimSpace(text) == "" {
		return audiofmt.Data{}, aierr.New(aierr.InferenceInvalidInput, "cannot synthesize empty text", "")
	}
	if cfg.Speed < 0.5 || cfg.Speed > 2.0 {
		return audiofmt.Data{}, aierr.New(aierr.InvalidInputParameterValue, "speed must be within [0.5, 2.0]", fmt.Sprintf("speed=%v", cfg.Speed))
	}
	if cfg.Pitch < -1.0 || cfg.Pitch > 1.0 {
		return audiofmt.Data{}, aierr.New(aierr.InvalidInputParameterValue, "pitch must be within [-1.0, 1.0]", fmt.Sprintf("pitch=%v", cfg.Pitch))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	voiceID, err := m.resolveVoice(cfg.VoiceID)
	if err != nil {
		return audiofmt.Data{}, err
	}

	out, err := e.backend.Synthesize(m.nativeCtx, text, voiceID)
	if err != nil {
		return audiofmt.Data{}, aierr.New(aierr.InferenceInvalidInput, "backend synthesis failed", err.Error())
	}

	out = applySpeed(out, cfg.Speed)
	out = applyPitch(out, cfg.Pitch)
	return out, nil
}

// applySpeed changes duration inversely with speed via resampling the
// perceived rate: doubling speed halves duration.
func applySpeed(d audiofmt.Data, speed float64) audiofmt.Data {
	if speed == 1.0 || len(d.Samples) == 0 {
		return d
	}
	targetLen := int(float64(len(d.Samples)) / speed)
	if targetLen < 1 {
		targetLen = 1
	}
	resampled := audiofmt.Resample(audiofmt.Data{
		Samples:    d.Samples,
		SampleRate: len(d.Samples),
		Channels:   d.Channels,
	}, targetLen)
	return audiofmt.Data{Samples: resampled.Samples, SampleRate: d.SampleRate, Channels: d.Channels}
}

// applyPitch shifts perceived pitch by resampling and then restretching
// back to the original duration, changing the zero-crossing rate without
// changing output length.
func applyPitch(d audiofmt.Data, pitch float64) audiofmt.Data {
	if pitch == 0 || len(d.Samples) == 0 {
		return d
	}
	shiftFactor := 1.0 + pitch*0.5 // pitch in [-1,1] maps to [0.5x, 1.5x] rate
	origLen := len(d.Samples)
	shiftedLen := int(float64(origLen) * shiftFactor)
	if shiftedLen < 1 {
		shiftedLen = 1
	}
	shifted := audiofmt.Resample(audiofmt.Data{
		Samples:    d.Samples,
		SampleRate: origLen,
		Channels:   d.Channels,
	}, shiftedLen)
	restretched := audiofmt.Resample(audiofmt.Data{
		Samples:    shifted.Samples,
		SampleRate: shiftedLen,
		Channels:   d.Channels,
	}, origLen)
	return audiofmt.Data{Samples: restretched.Samples, SampleRate: d.SampleRate, Channels: d.Channels}
}

// SynthesizeStreaming runs synthesis then delivers the result in
// contiguous, in-order chunks via the dispatcher.
func (e *Engine) SynthesizeStreaming(handle Handle, text string, cfg Config, chunkSamples int, onChunk func(audiofmt.Data) bool) error {
	full, err := e.Synthesize(handle, text, cfg)
	if err != nil {
		return err
	}
	if chunkSamples <= 0 {
		chunkSamples = 4096
	}

	for start := 0; start < len(full.Samples); start += chunkSamples {
		end := start + chunkSamples
		if end > len(full.Samples) {
			end = len(full.Samples)
		}
		chunk := audiofmt.Data{
			Samples:    full.Samples[start:end],
			SampleRate: full.SampleRate,
			Channels:   full.Channels,
		}
		done := make(chan bool, 1)
		e.disp.Dispatch(func() {
			done <- onChunk(chunk)
		})
		if !<-done {
			return nil
		}
	}
	return nil
}

// BuiltinVoiceCatalog returns the SDK's reference multi-voice catalog:
// at least two voices spanning both genders and two languages, matching
// spec.md §4.13 and original_source's tts_multi_voice_test.cpp expectations.
func BuiltinVoiceCatalog() []VoiceInfo {
	return []VoiceInfo{
		{ID: "en-us-female-1", Name: "Ava", Language: "en-US", Gender: GenderFemale},
		{ID: "en-us-male-1", Name: "Miles", Language: "en-US", Gender: GenderMale},
		{ID: "es-es-female-1", Name: "Lucia", Language: "es-ES", Gender: GenderFemale},
		{ID: "es-es-male-1", Name: "Mateo", Language: "es-ES", Gender: GenderMale},
	}
}
