package ondevicesdk

import (
	"context"

	"github.com/localmind-ai/ondevice-sdk/internal/llm"
	"github.com/localmind-ai/ondevice-sdk/internal/stt"
	"github.com/localmind-ai/ondevice-sdk/internal/tts"
	"github.com/localmind-ai/ondevice-sdk/internal/voicepipeline"
)

// PipelineConfig re-exports voicepipeline.Config (spec.md §4.14 configure).
type PipelineConfig = voicepipeline.Config

// ConversationTurn re-exports voicepipeline.Turn.
type ConversationTurn = voicepipeline.Turn

// AudioInSource yields the next captured audio chunk; an empty-sample
// chunk signals end of input.
type AudioInSource = voicepipeline.AudioInSource

// AudioOutSink receives synthesized audio for playback.
type AudioOutSink = voicepipeline.AudioOutSink

// VoicePipeline is the public handle onto the façade-owned voice pipeline.
type VoicePipeline struct {
	p *voicepipeline.Pipeline
}

// Configure validates and stores the three engine handles and pipeline config.
func (v *VoicePipeline) Configure(sttHandle, llmHandle, ttsHandle ModelHandle, cfg PipelineConfig) error {
	return v.p.Configure(stt.Handle(sttHandle), llm.Handle(llmHandle), tts.Handle(ttsHandle), cfg)
}

// StartConversation runs the audio-in -> STT -> LLM -> TTS -> audio-out
// loop until audioIn yields empty audio or StopConversation is called.
func (v *VoicePipeline) StartConversation(ctx context.Context, audioIn AudioInSource, audioOut AudioOutSink, onTranscription, onLLMText func(string)) error {
	return v.p.StartConversation(ctx, audioIn, audioOut, onTranscription, onLLMText)
}

// GetHistory returns every recorded conversation turn.
func (v *VoicePipeline) GetHistory() []ConversationTurn { return v.p.GetHistory() }

// ClearHistory empties turn history and clears the LLM's context.
func (v *VoicePipeline) ClearHistory() error { return v.p.ClearHistory() }

// StopConversation ends StartConversation's loop after the current turn.
func (v *VoicePipeline) StopConversation() { v.p.StopConversation() }

// Interrupt aborts the in-flight turn, if any.
func (v *VoicePipeline) Interrupt() { v.p.Interrupt() }
