// Package llm implements the LLM inference engine (spec.md §4.11, C12):
// model load/unload, tokenization, synchronous and streaming generation,
// sampling, context-window accounting, and conversation history.
//
// The actual decode step is delegated to a Backend — an engine-internal
// adapter standing in for llama.cpp, which spec.md §1 explicitly treats as
// an opaque external collaborator out of scope for this SDK core. This
// mirrors the teacher's own llm_openai.go/llm_anthropic.go split: the
// engine owns locking, context accounting, and history; the backend owns
// the model itself.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/localmind-ai/ondevice-sdk/internal/accel"
	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/ailog"
	"github.com/localmind-ai/ondevice-sdk/internal/dispatch"
	"github.com/localmind-ai/ondevice-sdk/internal/memory"
	"github.com/localmind-ai/ondevice-sdk/internal/retry"
)

// Handle identifies one loaded model instance. Zero is reserved invalid.
type Handle uint64

// GenerationConfig controls sampling for one generate call (spec.md §3).
type GenerationConfig struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	StopSequences     []string
}

// DefaultGenerationConfig returns the spec's documented defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxTokens:         512,
		Temperature:       0.7,
		TopP:              0.9,
		TopK:              40,
		RepetitionPenalty: 1.1,
	}
}

// Backend is the opaque engine-internal adapter over a native inference
// library. Implementations live outside this package's scope.
type Backend interface {
	Load(path string, accelerator accel.Kind, threadCount int) (nativeCtxHandle uintptr, nCtx int, err error)
	Unload(nativeCtxHandle uintptr)
	Tokenize(nativeCtxHandle uintptr, text string) ([]int32, error)
	Detokenize(nativeCtxHandle uintptr, tokens []int32) (string, error)
	// Decode runs generation, invoking onToken for every produced token.
	// onToken returns false to request early stop. Decode returns the full
	// concatenated text it produced up to the point it stopped.
	Decode(ctx context.Context, nativeCtxHandle uintptr, promptTokens []int32, cfg GenerationConfig, onToken func(token string) bool) (string, error)
	ResetKVCache(nativeCtxHandle uintptr)
	SizeBytes(path string) (int64, error)
}

type loadedModel struct {
	handle      Handle
	path        string
	nativeCtx   uintptr
	nCtx        int
	contextUsed int
	history     []string
	genLock     sync.Mutex
}

// Engine owns every loaded LLM instance and arbitrates with the shared
// memory broker and callback dispatcher.
type Engine struct {
	backend     Backend
	broker      *memory.Broker
	disp        *dispatch.Dispatcher
	detector    *accel.Detector
	threadCount int

	mu     sync.RWMutex
	models map[Handle]*loadedModel
}

// New constructs an LLM engine over backend, sharing broker and dispatcher
// with sibling engines per spec.md §2's ownership model.
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

// newHandle mints a handle from the shared broker's allocator so LLM, STT,
// and TTS handles never alias on the same broker key.
func (e *Engine) newHandle() Handle {
	return Handle(e.broker.AllocateHandle())
}

// LoadModel loads path, asking the broker whether eviction is needed first
// and requesting the caller-supplied unloader to evict LRU victims.
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

	prefs := accel.LLMDefaultPreferences(detectPlatform())
	kind, err := accel.Select(e.detector, accel.Config{PreferredAccelerators: prefs, FallbackToCPU: true})
	if err != nil {
		return 0, err
	}

	nativeCtx, nCtx, err := e.backend.Load(path, kind, e.threadCount)
	if err != nil {
		return 0, aierr.New(aierr.InferenceHardwareAccelerationFailure, "backend failed to load model", err.Error())
	}

	handle := e.newHandle()
	guard := retry.NewCleanupGuard(func() {
		e.backend.Unload(nativeCtx)
	})
	defer guard.Trigger()

	e.mu.Lock()
	e.models[handle] = &loadedModel{handle: handle, path: path, nativeCtx: nativeCtx, nCtx: nCtx}
	e.mu.Unlock()

	e.broker.TrackAllocation(uint64(handle), size)
	guard.Dismiss()
	ailog.Info("llm model loaded", "handle", handle, "path", path, "accelerator", kind)
	return handle, nil
}

func detectPlatform() string { return "linux" }

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

// Tokenize splits text into model-specific token ids.
func (e *Engine) Tokenize(handle Handle, text string) ([]int32, error) {
	m, err := e.get(handle)
	if err != nil {
		return nil, err
	}
	e.broker.RecordAccess(uint64(handle))
	toks, err := e.backend.Tokenize(m.nativeCtx, text)
	if err != nil {
		return nil, aierr.New(aierr.InferenceInvalidInput, "tokenization failed", err.Error())
	}
	return toks, nil
}

// Detokenize renders token ids back into text.
func (e *Engine) Detokenize(handle Handle, tokens []int32) (string, error) {
	m, err := e.get(handle)
	if err != nil {
		return "", err
	}
	e.broker.RecordAccess(uint64(handle))
	text, err := e.backend.Detokenize(m.nativeCtx, tokens)
	if err != nil {
		return "", aierr.New(aierr.InferenceInvalidInput, "detokenization failed", err.Error())
	}
	return text, nil
}

// Generate runs synchronous generation and appends the turn to history.
func (e *Engine) Generate(ctx context.Context, handle Handle, prompt string, cfg GenerationConfig) (string, error) {
	var result string
	err := e.runGeneration(ctx, handle, prompt, cfg, func(token string) bool {
		result += token
		return true
	})
	return result, err
}

// GenerateStreaming runs generation, delivering each token to onToken via
// the callback dispatcher as it is produced. onToken returns false to
// request early stop.
func (e *Engine) GenerateStreaming(ctx context.Context, handle Handle, prompt string, cfg GenerationConfig, onToken func(string) bool) error {
	var stopped atomic.Bool
	err := e.runGeneration(ctx, handle, prompt, cfg, func(token string) bool {
		if stopped.Load() {
			return false
		}
		done := make(chan bool, 1)
		e.disp.Dispatch(func() {
			done <- onToken(token)
		})
		cont := <-done
		if !cont {
			stopped.Store(true)
		}
		return cont
	})
	return err
}

func (e *Engine) runGeneration(ctx context.Context, handle Handle, prompt string, cfg GenerationConfig, onToken func(string) bool) error {
	m, err := e.get(handle)
	if err != nil {
		return err
	}

	m.genLock.Lock()
	defer m.genLock.Unlock()

	e.broker.RecordAccess(uint64(handle))
	e.broker.IncrementRefCount(uint64(handle))
	refGuard := retry.NewCleanupGuard(func() {
		e.broker.DecrementRefCount(uint64(handle))
	})
	defer refGuard.Trigger()

	promptTokens, err := e.backend.Tokenize(m.nativeCtx, prompt)
	if err != nil {
		return aierr.New(aierr.InferenceInvalidInput, "failed to tokenize prompt", err.Error())
	}

	if m.contextUsed+len(promptTokens)+cfg.MaxTokens > m.nCtx {
		return aierr.New(aierr.InferenceContextWindowExceeded,
			"prompt plus requested tokens would exceed the model's context window",
			fmt.Sprintf("used=%d prompt=%d max_tokens=%d n_ctx=%d", m.contextUsed, len(promptTokens), cfg.MaxTokens, m.nCtx))
	}

	var produced strings.Builder
	wrapped := func(token string) bool {
		produced.WriteString(token)
		return onToken(token)
	}

	text, err := e.backend.Decode(ctx, m.nativeCtx, promptTokens, cfg, wrapped)
	if err != nil {
		return aierr.New(aierr.InferenceInvalidInput, "backend decode failed", err.Error())
	}
	if text == "" {
		text = produced.String()
	}

	m.history = append(m.history, "User: "+prompt, "Assistant: "+text)
	m.contextUsed += len(promptTokens)
	return nil
}

// ClearContext resets context usage, history, and the backend KV cache.
func (e *Engine) ClearContext(handle Handle) error {
	m, err := e.get(handle)
	if err != nil {
		return err
	}
	m.genLock.Lock()
	defer m.genLock.Unlock()
	m.contextUsed = 0
	m.history = nil
	e.backend.ResetKVCache(m.nativeCtx)
	return nil
}

// GetContextUsage returns tokens consumed so far.
func (e *Engine) GetContextUsage(handle Handle) (int, error) {
	m, err := e.get(handle)
	if err != nil {
		return 0, err
	}
	return m.contextUsed, nil
}

// GetContextCapacity returns the model's n_ctx.
func (e *Engine) GetContextCapacity(handle Handle) (int, error) {
	m, err := e.get(handle)
	if err != nil {
		return 0, err
	}
	return m.nCtx, nil
}

// GetConversationHistory returns the alternating User/Assistant history lines.
func (e *Engine) GetConversationHistory(handle Handle) ([]string, error) {
	m, err := e.get(handle)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(m.history))
	copy(out, m.history)
	return out, nil
}
