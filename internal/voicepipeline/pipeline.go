// Package voicepipeline orchestrates one audio-in -> STT -> LLM -> TTS ->
// audio-out conversation loop (spec.md §4.14, C15), generalizing the
// teacher's streamLLMWithTTS/consumeSentences producer/consumer shape
// (internal/pipeline/pipeline.go) into a sequential per-turn pipeline:
// each stage depends on the previous one's output, so the stages run one
// after another rather than fanned out.
package voicepipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/ailog"
	"github.com/localmind-ai/ondevice-sdk/internal/audiofmt"
	"github.com/localmind-ai/ondevice-sdk/internal/dispatch"
	"github.com/localmind-ai/ondevice-sdk/internal/llm"
	"github.com/localmind-ai/ondevice-sdk/internal/metrics"
	"github.com/localmind-ai/ondevice-sdk/internal/stt"
	"github.com/localmind-ai/ondevice-sdk/internal/telemetry"
	"github.com/localmind-ai/ondevice-sdk/internal/tts"
)

// Turn is one completed conversation exchange, recorded into history.
type Turn struct {
	UserText      string
	AssistantText string
	TimestampSecs float64
}

// Config controls one configured pipeline (spec.md §4.14 configure).
type Config struct {
	VADEnabled   bool
	VADThreshold float64
}

// AudioInSource yields the next captured audio chunk; an empty-sample
// chunk signals end of input.
type AudioInSource func() audiofmt.Data

// AudioOutSink receives synthesized audio for playback.
type AudioOutSink func(audiofmt.Data)

// Pipeline threads STT, LLM, and TTS engines into one conversation loop.
type Pipeline struct {
	stt   *stt.Engine
	llmE  *llm.Engine
	ttsE  *tts.Engine
	disp  *dispatch.Dispatcher
	trace *telemetry.Store

	sttHandle stt.Handle
	llmHandle llm.Handle
	ttsHandle tts.Handle
	cfg       Config

	mu            sync.Mutex
	history       []Turn
	running       atomic.Bool
	interrupted   atomic.Bool
	stopRequested atomic.Bool
	lastTimestamp float64
}

// New constructs an unconfigured pipeline over the three shared engines.
func New(sttEngine *stt.Engine, llmEngine *llm.Engine, ttsEngine *tts.Engine, disp *dispatch.Dispatcher) *Pipeline {
	return &Pipeline{stt: sttEngine, llmE: llmEngine, ttsE: ttsEngine, disp: disp}
}

// SetTelemetry attaches a trace store; turns are recorded when non-nil.
func (p *Pipeline) SetTelemetry(store *telemetry.Store) {
	p.trace = store
}

// Configure validates and stores the three engine handles and pipeline config.
func (p *Pipeline) Configure(sttHandle stt.Handle, llmHandle llm.Handle, ttsHandle tts.Handle, cfg Config) error {
	if sttHandle == 0 || llmHandle == 0 || ttsHandle == 0 {
		return aierr.New(aierr.InvalidInputModelHandle, "voice pipeline requires three nonzero engine handles", "")
	}
	if cfg.VADThreshold < 0 || cfg.VADThreshold > 1 {
		return aierr.New(aierr.InvalidInputParameterValue, "vad_threshold must be within [0,1]", "")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sttHandle, p.llmHandle, p.ttsHandle, p.cfg = sttHandle, llmHandle, ttsHandle, cfg
	return nil
}

// StartConversation runs the loop until audioIn yields empty audio or
// StopConversation is called. on_transcription/on_llm_text are delivered
// via the callback dispatcher.
func (p *Pipeline) StartConversation(ctx context.Context, audioIn AudioInSource, audioOut AudioOutSink, onTranscription, onLLMText func(string)) error {
	p.running.Store(true)
	defer p.running.Store(false)
	defer p.stopRequested.Store(false)

	for {
		if p.stopRequested.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return aierr.New(aierr.OperationCancelled, "voice pipeline cancelled", "")
		default:
		}

		chunk := audioIn()
		if chunk.IsEndOfStream() {
			return nil
		}

		if p.cfg.VADEnabled {
			segments, err := audiofmt.DetectVoiceActivity(chunk, p.cfg.VADThreshold)
			if err != nil || len(segments) == 0 {
				continue
			}
		}

		if err := p.runTurn(ctx, chunk, audioOut, onTranscription, onLLMText); err != nil {
			if aierr.CodeOf(err) == aierr.OperationCancelled {
				return err
			}
			ailog.Error("voice pipeline turn failed", "error", err)
			continue
		}
	}
}

func (p *Pipeline) runTurn(ctx context.Context, audio audiofmt.Data, audioOut AudioOutSink, onTranscription, onLLMText func(string)) error {
	p.interrupted.Store(false)
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	sttHandle, llmHandle, ttsHandle := p.sttHandle, p.llmHandle, p.ttsHandle
	p.mu.Unlock()

	runID := uuid.NewString()
	runStart := time.Now()

	sttStart := time.Now()
	transcription, err := p.stt.Transcribe(sttHandle, audio, stt.Config{})
	p.recordSpan(runID, "stt", sttStart, err)
	if err != nil {
		return err
	}
	transcript := transcription.Text

	if p.interrupted.Load() {
		return aierr.New(aierr.OperationCancelled, "turn interrupted after transcription", "")
	}
	p.dispatchText(onTranscription, transcript)

	llmStart := time.Now()
	assistantText, err := p.llmE.Generate(turnCtx, llmHandle, transcript, llm.DefaultGenerationConfig())
	p.recordSpan(runID, "llm", llmStart, err)
	if err != nil {
		return err
	}
	if p.interrupted.Load() {
		return aierr.New(aierr.OperationCancelled, "turn interrupted after generation", "")
	}
	p.dispatchText(onLLMText, assistantText)

	ttsStart := time.Now()
	audioResult, err := p.ttsE.Synthesize(ttsHandle, assistantText, tts.DefaultConfig())
	p.recordSpan(runID, "tts", ttsStart, err)
	if err != nil {
		return err
	}
	if p.interrupted.Load() {
		return aierr.New(aierr.OperationCancelled, "turn interrupted before playback", "")
	}

	p.disp.Dispatch(func() { audioOut(audioResult) })

	p.recordTurn(transcript, assistantText)
	p.recordRun(runID, runStart, transcript, assistantText)
	metrics.PipelineTurnsTotal.Inc()
	return nil
}

func (p *Pipeline) recordSpan(runID, name string, start time.Time, err error) {
	if p.trace == nil {
		return
	}
	status, errText := "ok", ""
	if err != nil {
		status, errText = "error", err.Error()
	}
	_ = p.trace.RecordSpan(telemetry.Span{
		ID:         uuid.NewString(),
		RunID:      runID,
		Name:       name,
		StartedAt:  start,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Status:     status,
		Error:      errText,
	})
}

func (p *Pipeline) recordRun(runID string, start time.Time, transcript, assistantText string) {
	if p.trace == nil {
		return
	}
	_ = p.trace.RecordRun(telemetry.Run{
		ID:         runID,
		StartedAt:  start,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Input:      transcript,
		Output:     assistantText,
		Status:     "completed",
	})
}

func (p *Pipeline) dispatchText(fn func(string), text string) {
	if fn == nil {
		return
	}
	p.disp.Dispatch(func() { fn(text) })
}

func (p *Pipeline) recordTurn(userText, assistantText string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts := float64(time.Now().UnixNano()) / 1e9
	if ts < p.lastTimestamp {
		ts = p.lastTimestamp
	}
	p.lastTimestamp = ts
	p.history = append(p.history, Turn{UserText: userText, AssistantText: assistantText, TimestampSecs: ts})
}

// GetHistory returns every recorded conversation turn.
func (p *Pipeline) GetHistory() []Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Turn, len(p.history))
	copy(out, p.history)
	return out
}

// ClearHistory empties turn history and clears the LLM's context.
func (p *Pipeline) ClearHistory() error {
	p.mu.Lock()
	p.history = nil
	handle := p.llmHandle
	p.mu.Unlock()
	return p.llmE.ClearContext(handle)
}

// StopConversation ends StartConversation's loop after the current turn.
func (p *Pipeline) StopConversation() {
	p.stopRequested.Store(true)
}

// Interrupt aborts the in-flight turn, if any.
func (p *Pipeline) Interrupt() {
	p.interrupted.Store(true)
}
