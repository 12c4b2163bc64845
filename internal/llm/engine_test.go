package llm

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localmind-ai/ondevice-sdk/internal/accel"
	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/dispatch"
	"github.com/localmind-ai/ondevice-sdk/internal/memory"
)

// fakeBackend is a deterministic stand-in for llama.cpp: tokens are just
// whitespace-split words, and Decode echoes a fixed reply word by word.
type fakeBackend struct {
	mu       sync.Mutex
	loaded   map[uintptr]bool
	nextCtx  uintptr
	nCtx     int
	reply    []string
	sizeErr  error
	loadErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{loaded: make(map[uintptr]bool), nCtx: 32, reply: []string{"hello", " ", "world"}}
}

func (f *fakeBackend) Load(path string, accelerator accel.Kind, threadCount int) (uintptr, int, error) {
	if f.loadErr != nil {
		return 0, 0, f.loadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCtx++
	f.loaded[f.nextCtx] = true
	return f.nextCtx, f.nCtx, nil
}

func (f *fakeBackend) Unload(h uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.loaded, h)
}

func (f *fakeBackend) Tokenize(h uintptr, text string) ([]int32, error) {
	fields := strings.Fields(text)
	toks := make([]int32, len(fields))
	for i := range fields {
		toks[i] = int32(i + 1)
	}
	return toks, nil
}

func (f *fakeBackend) Detokenize(h uintptr, tokens []int32) (string, error) {
	return "decoded", nil
}

func (f *fakeBackend) Decode(ctx context.Context, h uintptr, promptTokens []int32, cfg GenerationConfig, onToken func(string) bool) (string, error) {
	for _, tok := range f.reply {
		if !onToken(tok) {
			break
		}
	}
	return "", nil
}

func (f *fakeBackend) ResetKVCache(h uintptr) {}

func (f *fakeBackend) SizeBytes(path string) (int64, error) {
	if f.sizeErr != nil {
		return 0, f.sizeErr
	}
	return 1024, nil
}

func newTestEngine(t *testing.T, backend *fakeBackend) *Engine {
	t.Helper()
	broker := memory.New(0) // unlimited
	disp := dispatch.New(dispatch.Config{Synchronous: true})
	t.Cleanup(disp.Shutdown)
	detector := accel.NewDetector()
	return New(backend, broker, disp, detector, 4)
}

func TestLoadModel_AssignsIncrementingHandles(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h1, err := e.LoadModel("/models/a.gguf", func(Handle) {})
	require.NoError(t, err)
	h2, err := e.LoadModel("/models/b.gguf", func(Handle) {})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.Greater(t, h2, h1)
	assert.NotZero(t, h1)
}

func TestTokenizeDetokenize_RoundTrip(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/a.gguf", func(Handle) {})
	require.NoError(t, err)

	toks, err := e.Tokenize(h, "one two three")
	require.NoError(t, err)
	assert.Len(t, toks, 3)

	text, err := e.Detokenize(h, toks)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestTokenize_InvalidHandle(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	_, err := e.Tokenize(Handle(999), "hi")
	assert.Equal(t, aierr.InvalidInputModelHandle, aierr.CodeOf(err))
}

func TestGenerate_AppendsHistoryAndAdvancesContext(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/a.gguf", func(Handle) {})
	require.NoError(t, err)

	out, err := e.Generate(context.Background(), h, "hi there", DefaultGenerationConfig())
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	history, err := e.GetConversationHistory(h)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "User: hi there", history[0])
	assert.Equal(t, "Assistant: hello world", history[1])

	used, err := e.GetContextUsage(h)
	require.NoError(t, err)
	assert.Equal(t, 2, used) // "hi there" tokenizes to 2 words
}

func TestGenerate_ContextWindowExceeded(t *testing.T) {
	backend := newFakeBackend()
	backend.nCtx = 2
	e := newTestEngine(t, backend)
	h, err := e.LoadModel("/models/a.gguf", func(Handle) {})
	require.NoError(t, err)

	cfg := DefaultGenerationConfig()
	cfg.MaxTokens = 10
	_, err = e.Generate(context.Background(), h, "way more words than fit", cfg)
	assert.Equal(t, aierr.InferenceContextWindowExceeded, aierr.CodeOf(err))
}

func TestGenerateStreaming_EarlyStopHaltsFurtherTokens(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/a.gguf", func(Handle) {})
	require.NoError(t, err)

	var received []string
	err = e.GenerateStreaming(context.Background(), h, "hi", DefaultGenerationConfig(), func(tok string) bool {
		received = append(received, tok)
		return false // stop after first token
	})
	require.NoError(t, err)
	assert.Len(t, received, 1)
}

func TestGenerateStreaming_ReceivesAllTokensWhenNeverStopped(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/a.gguf", func(Handle) {})
	require.NoError(t, err)

	var received []string
	err = e.GenerateStreaming(context.Background(), h, "hi", DefaultGenerationConfig(), func(tok string) bool {
		received = append(received, tok)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", " ", "world"}, received)
}

func TestClearContext_ResetsUsageAndHistory(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/a.gguf", func(Handle) {})
	require.NoError(t, err)
	_, err = e.Generate(context.Background(), h, "hi there", DefaultGenerationConfig())
	require.NoError(t, err)

	require.NoError(t, e.ClearContext(h))

	used, err := e.GetContextUsage(h)
	require.NoError(t, err)
	assert.Zero(t, used)

	history, err := e.GetConversationHistory(h)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestUnloadModel_InvalidatesHandle(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/a.gguf", func(Handle) {})
	require.NoError(t, err)

	require.NoError(t, e.UnloadModel(h))

	_, err = e.GetContextUsage(h)
	assert.Equal(t, aierr.InvalidInputModelHandle, aierr.CodeOf(err))

	err = e.UnloadModel(h)
	assert.Equal(t, aierr.InvalidInputModelHandle, aierr.CodeOf(err))
}

func TestLoadModel_EvictsVictimWhenOverBudget(t *testing.T) {
	backend := newFakeBackend()
	broker := memory.New(1024) // only room for one model at a time
	disp := dispatch.New(dispatch.Config{Synchronous: true})
	t.Cleanup(disp.Shutdown)
	e := New(backend, broker, disp, accel.NewDetector(), 4)

	h1, err := e.LoadModel("/models/a.gguf", func(Handle) {})
	require.NoError(t, err)

	var evicted Handle
	h2, err := e.LoadModel("/models/b.gguf", func(victim Handle) {
		evicted = victim
		_ = e.UnloadModel(victim)
	})
	require.NoError(t, err)
	assert.Equal(t, h1, evicted)
	assert.NotEqual(t, h1, h2)
}
