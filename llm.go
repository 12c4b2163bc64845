package ondevicesdk

import (
	"context"

	"github.com/localmind-ai/ondevice-sdk/internal/llm"
)

// ModelHandle is an opaque, engine-issued identifier for a loaded model
// instance; zero is reserved for "invalid" (spec.md §3).
type ModelHandle uint64

// GenerationConfig re-exports llm.GenerationConfig.
type GenerationConfig = llm.GenerationConfig

// DefaultGenerationConfig returns the spec's documented sampling defaults.
func DefaultGenerationConfig() GenerationConfig { return llm.DefaultGenerationConfig() }

// LLMEngine is the public handle onto the façade-owned LLM engine.
type LLMEngine struct {
	e *llm.Engine
}

// LoadModel loads a model file, asking unloadVictim to unload any handle
// the memory broker selects as an eviction candidate.
func (l *LLMEngine) LoadModel(path string, unloadVictim func(ModelHandle)) (ModelHandle, error) {
	h, err := l.e.LoadModel(path, func(vh llm.Handle) { unloadVictim(ModelHandle(vh)) })
	return ModelHandle(h), err
}

// UnloadModel tears down a loaded model instance.
func (l *LLMEngine) UnloadModel(handle ModelHandle) error {
	return l.e.UnloadModel(llm.Handle(handle))
}

// Tokenize splits text into model-specific token ids.
func (l *LLMEngine) Tokenize(handle ModelHandle, text string) ([]int32, error) {
	return l.e.Tokenize(llm.Handle(handle), text)
}

// Detokenize renders token ids back into text.
func (l *LLMEngine) Detokenize(handle ModelHandle, tokens []int32) (string, error) {
	return l.e.Detokenize(llm.Handle(handle), tokens)
}

// Generate runs synchronous generation.
func (l *LLMEngine) Generate(ctx context.Context, handle ModelHandle, prompt string, cfg GenerationConfig) (string, error) {
	return l.e.Generate(ctx, llm.Handle(handle), prompt, cfg)
}

// GenerateStreaming runs generation, delivering each token to onToken as
// produced. onToken returns false to request early stop.
func (l *LLMEngine) GenerateStreaming(ctx context.Context, handle ModelHandle, prompt string, cfg GenerationConfig, onToken func(string) bool) error {
	return l.e.GenerateStreaming(ctx, llm.Handle(handle), prompt, cfg, onToken)
}

// ClearContext resets context usage, history, and the backend KV cache.
func (l *LLMEngine) ClearContext(handle ModelHandle) error {
	return l.e.ClearContext(llm.Handle(handle))
}

// GetContextUsage returns tokens consumed so far.
func (l *LLMEngine) GetContextUsage(handle ModelHandle) (int, error) {
	return l.e.GetContextUsage(llm.Handle(handle))
}

// GetContextCapacity returns the model's context window size.
func (l *LLMEngine) GetContextCapacity(handle ModelHandle) (int, error) {
	return l.e.GetContextCapacity(llm.Handle(handle))
}

// GetConversationHistory returns the alternating User/Assistant history lines.
func (l *LLMEngine) GetConversationHistory(handle ModelHandle) ([]string, error) {
	return l.e.GetConversationHistory(llm.Handle(handle))
}
