package ondevicesdk

import "github.com/localmind-ai/ondevice-sdk/internal/stt"

// TranscriptionConfig re-exports stt.Config (spec.md §3).
type TranscriptionConfig = stt.Config

// Transcription re-exports stt.Transcription.
type Transcription = stt.Transcription

// TranscriptionWord re-exports stt.Word.
type TranscriptionWord = stt.Word

// STTEngine is the public handle onto the façade-owned STT engine.
type STTEngine struct {
	e *stt.Engine
}

// LoadModel loads a model file, asking unloadVictim to unload any handle
// the memory broker selects as an eviction candidate.
func (s *STTEngine) LoadModel(path string, unloadVictim func(ModelHandle)) (ModelHandle, error) {
	h, err := s.e.LoadModel(path, func(vh stt.Handle) { unloadVictim(ModelHandle(vh)) })
	return ModelHandle(h), err
}

// UnloadModel tears down a loaded model instance.
func (s *STTEngine) UnloadModel(handle ModelHandle) error {
	return s.e.UnloadModel(stt.Handle(handle))
}

// Transcribe preprocesses audio and runs backend transcription.
func (s *STTEngine) Transcribe(handle ModelHandle, audio AudioData, cfg TranscriptionConfig) (Transcription, error) {
	return s.e.Transcribe(stt.Handle(handle), audio, cfg)
}
