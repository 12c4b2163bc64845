package ondevicesdk

import "github.com/localmind-ai/ondevice-sdk/internal/tts"

// SynthesisConfig re-exports tts.Config (spec.md §3).
type SynthesisConfig = tts.Config

// DefaultSynthesisConfig returns neutral speed/pitch with the catalog's
// first voice.
func DefaultSynthesisConfig() SynthesisConfig { return tts.DefaultConfig() }

// VoiceInfo re-exports tts.VoiceInfo.
type VoiceInfo = tts.VoiceInfo

// VoiceGender re-exports tts.Gender.
type VoiceGender = tts.Gender

const (
	VoiceMale    = tts.GenderMale
	VoiceFemale  = tts.GenderFemale
	VoiceNeutral = tts.GenderNeutral
)

// BuiltinVoiceCatalog returns the SDK's reference multi-voice catalog.
func BuiltinVoiceCatalog() []VoiceInfo { return tts.BuiltinVoiceCatalog() }

// TTSEngine is the public handle onto the façade-owned TTS engine.
type TTSEngine struct {
	e *tts.Engine
}

// LoadModel loads a model file plus its voice catalog, asking unloadVictim
// to unload any handle the memory broker selects as an eviction candidate.
func (t *TTSEngine) LoadModel(path string, unloadVictim func(ModelHandle)) (ModelHandle, error) {
	h, err := t.e.LoadModel(path, func(vh tts.Handle) { unloadVictim(ModelHandle(vh)) })
	return ModelHandle(h), err
}

// UnloadModel tears down a loaded model instance.
func (t *TTSEngine) UnloadModel(handle ModelHandle) error {
	return t.e.UnloadModel(tts.Handle(handle))
}

// GetAvailableVoices returns handle's voice catalog.
func (t *TTSEngine) GetAvailableVoices(handle ModelHandle) ([]VoiceInfo, error) {
	return t.e.GetAvailableVoices(tts.Handle(handle))
}

// Synthesize runs backend synthesis then applies speed/pitch post-processing.
func (t *TTSEngine) Synthesize(handle ModelHandle, text string, cfg SynthesisConfig) (AudioData, error) {
	return t.e.Synthesize(tts.Handle(handle), text, cfg)
}

// SynthesizeStreaming runs synthesis then delivers the result in
// contiguous, in-order chunks.
func (t *TTSEngine) SynthesizeStreaming(handle ModelHandle, text string, cfg SynthesisConfig, chunkSamples int, onChunk func(AudioData) bool) error {
	return t.e.SynthesizeStreaming(tts.Handle(handle), text, cfg, chunkSamples, onChunk)
}
