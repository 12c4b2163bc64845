// Package devbackend provides trivial in-process LLM/STT/TTS backends for
// exercising the SDK façade and cmd/voicebridge without native llama.cpp,
// whisper.cpp, or onnxruntime bindings (spec.md §1 puts those out of
// scope). They are test doubles, not production inference engines.
package devbackend

import (
	"context"
	"fmt"
	"strings"

	"github.com/localmind-ai/ondevice-sdk/internal/accel"
	"github.com/localmind-ai/ondevice-sdk/internal/audiofmt"
	"github.com/localmind-ai/ondevice-sdk/internal/llm"
	"github.com/localmind-ai/ondevice-sdk/internal/stt"
	"github.com/localmind-ai/ondevice-sdk/internal/tts"
)

// LLM replies with a canned "acknowledged N token(s)" message (N is the
// prompt's token count), delivered token-by-token split on whitespace so
// streaming callers see more than one callback.
type LLM struct{}

func (LLM) Load(path string, _ accel.Kind, _ int) (uintptr, int, error) {
	return 1, 4096, nil
}
func (LLM) Unload(uintptr) {}
func (LLM) Tokenize(_ uintptr, text string) ([]int32, error) {
	words := strings.Fields(text)
	toks := make([]int32, len(words))
	for i := range words {
		toks[i] = int32(i + 1)
	}
	return toks, nil
}
func (LLM) Detokenize(_ uintptr, tokens []int32) (string, error) {
	return fmt.Sprintf("<%d tokens>", len(tokens)), nil
}
func (LLM) Decode(ctx context.Context, _ uintptr, promptTokens []int32, _ llm.GenerationConfig, onToken func(string) bool) (string, error) {
	reply := fmt.Sprintf("acknowledged %d token(s)", len(promptTokens))
	var sb strings.Builder
	for _, w := range strings.Fields(reply) {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		default:
		}
		piece := w + " "
		sb.WriteString(piece)
		if onToken != nil && !onToken(piece) {
			break
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
func (LLM) ResetKVCache(uintptr)              {}
func (LLM) SizeBytes(string) (int64, error)   { return 64 << 20, nil }

// STT reports a fixed transcript; useful for exercising the voice pipeline
// wiring without a real acoustic model.
type STT struct{}

func (STT) Load(path string, _ accel.Kind, _ int) (uintptr, int, error) {
	return 1, 16000, nil
}
func (STT) Unload(uintptr) {}
func (STT) Transcribe(_ uintptr, audio audiofmt.Data, _ stt.Config) (stt.Transcription, error) {
	return stt.Transcription{
		Text:       fmt.Sprintf("<%d samples at %dHz>", len(audio.Samples), audio.SampleRate),
		Confidence: 0.5,
		Language:   "en",
	}, nil
}
func (STT) SizeBytes(string) (int64, error) { return 32 << 20, nil }

// TTS synthesizes silence of a duration proportional to the input text
// length, at the builtin voice catalog's sample rate.
type TTS struct{}

const ttsSampleRate = 22050

func (TTS) Load(path string, _ accel.Kind, _ int) (uintptr, []tts.VoiceInfo, int, error) {
	return 1, tts.BuiltinVoiceCatalog(), ttsSampleRate, nil
}
func (TTS) Unload(uintptr) {}
func (TTS) Synthesize(_ uintptr, text, _ string) (audiofmt.Data, error) {
	n := len(text) * ttsSampleRate / 20
	if n < ttsSampleRate/10 {
		n = ttsSampleRate / 10
	}
	return audiofmt.Data{Samples: make([]float32, n), SampleRate: ttsSampleRate, Channels: 1}, nil
}
func (TTS) SizeBytes(string) (int64, error) { return 16 << 20, nil }
