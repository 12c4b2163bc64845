// Package stt implements the speech-to-text engine (spec.md §4.12, C13):
// audio preprocessing, transcription with confidence, and voice-activity
// detection, following the same load/unload/broker-accounting shape as
// internal/llm against an opaque backend adapter (whisper.cpp-class).
package stt

import (
	"fmt"
	"sync"

	"github.com/localmind-ai/ondevice-sdk/internal/accel"
	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/ailog"
	"github.com/localmind-ai/ondevice-sdk/internal/audiofmt"
	"github.com/localmind-ai/ondevice-sdk/internal/memory"
	"github.com/localmind-ai/ondevice-sdk/internal/retry"
)

// Handle identifies one loaded STT model instance.
type Handle uint64

// Config controls one transcribe call (spec.md §3 TranscriptionConfig).
type Config struct {
	Language           string
	TranslateToEnglish bool
	WordTimestamps     bool
}

// Word is one recognized token with timing and confidence.
type Word struct {
	Text       string
	StartTime  float64
	EndTime    float64
	Confidence float64
}

// Transcription is the engine's output for one utterance.
type Transcription struct {
	Text       string
	Confidence float64
	Language   string
	Words      []Word
}

// Backend is the opaque adapter over a native STT library (whisper.cpp-class).
type Backend interface {
	Load(path string, accelerator accel.Kind, threadCount int) (nativeCtxHandle uintptr, requiredSampleRate int, err error)
	Unload(nativeCtxHandle uintptr)
	Transcribe(nativeCtxHandle uintptr, audio audiofmt.Data, cfg Config) (Transcription, error)
	SizeBytes(path string) (int64, error)
}

type loadedModel struct {
	nativeCtx          uintptr
	requiredSampleRate int
	mu                 sync.Mutex
}

// Engine owns every loaded STT instance.
type Engine struct {
	backend     Backend
	broker      *memory.Broker
	detector    *accel.Detector
	threadCount int

	mu     sync.RWMutex
	models map[Handle]*loadedModel
}

// New constructs an STT engine over backend.
func New(backend Backend, broker *memory.Broker, detector *accel.Detector, threadCount int) *Engine {
	return &Engine{
		backend:     backend,
		broker:      broker,
		detector:    detector,
		threadCount: threadCount,
		models:      make(map[Handle]*loadedModel),
	}
}

// LoadModel loads path, evicting broker victims if required.
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
		PreferredAccelerators: accel.STTDefaultPreferences("linux"),
		FallbackToCPU:         true,
	})
	if err != nil {
		return 0, err
	}

	nativeCtx, reqRate, err := e.backend.Load(path, kind, e.threadCount)
	if err != nil {
		return 0, aierr.New(aierr.InferenceHardwareAccelerationFailure, "backend failed to load model", err.Error())
	}

	handle := Handle(e.broker.AllocateHandle())
	guard := retry.NewCleanupGuard(func() { e.backend.Unload(nativeCtx) })
	defer guard.Trigger()

	e.mu.Lock()
	e.models[handle] = &loadedModel{nativeCtx: nativeCtx, requiredSampleRate: reqRate}
	e.mu.Unlock()

	e.broker.TrackAllocation(uint64(handle), size)
	guard.Dismiss()
	ailog.Info("stt model loaded", "handle", handle, "path", path, "accelerator", kind)
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

// Transcribe preprocesses audio (resample + peak-normalize) and runs backend decode.
func (e *Engine) Transcribe(handle Handle, audio audiofmt.Data, cfg Config) (Transcription, error) {
	m, err := e.get(handle)
	if err != nil {
		return Transcription{}, err
	}
	if len(audio.Samples) == 0 {
		return Transcription{}, aierr.New(aierr.InvalidInputAudioFormat, "transcribe requires non-empty audio samples", "")
	}
	if audio.SampleRate <= 0 {
		return Transcription{}, aierr.New(aierr.InvalidInputAudioFormat, "transcribe requires a positive sample rate", "")
	}

	e.broker.RecordAccess(uint64(handle))

	m.mu.Lock()
	defer m.mu.Unlock()

	prepared := audiofmt.Resample(audio, m.requiredSampleRate)
	prepared = audiofmt.NormalizePeak(prepared)

	t, err := e.backend.Transcribe(m.nativeCtx, prepared, cfg)
	if err != nil {
		return Transcription{}, aierr.New(aierr.InferenceInvalidInput, "backend transcription failed", err.Error())
	}
	t.Confidence = clampConfidence(t.Confidence)
	for i := range t.Words {
		t.Words[i].Confidence = clampConfidence(t.Words[i].Confidence)
	}
	return t, nil
}

func clampConfidence(c float64) float64 {
	if c != c { // NaN
		return 0
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// DetectVoiceActivity delegates to audiofmt's energy-threshold segmenter.
func DetectVoiceActivity(audio audiofmt.Data, threshold float64) ([]audiofmt.Segment, error) {
	return audiofmt.DetectVoiceActivity(audio, threshold)
}
