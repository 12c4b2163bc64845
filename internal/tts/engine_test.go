package tts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localmind-ai/ondevice-sdk/internal/accel"
	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/audiofmt"
	"github.com/localmind-ai/ondevice-sdk/internal/dispatch"
	"github.com/localmind-ai/ondevice-sdk/internal/memory"
)

type fakeBackend struct {
	nextCtx    uintptr
	voices     []VoiceInfo
	sampleRate int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{voices: BuiltinVoiceCatalog(), sampleRate: 22050}
}

func (f *fakeBackend) Load(path string, accelerator accel.Kind, threadCount int) (uintptr, []VoiceInfo, int, error) {
	f.nextCtx++
	return f.nextCtx, f.voices, f.sampleRate, nil
}

func (f *fakeBackend) Unload(h uintptr) {}

func (f *fakeBackend) Synthesize(h uintptr, text, voiceID string) (audiofmt.Data, error) {
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = 0.5
	}
	return audiofmt.Data{Samples: samples, SampleRate: 22050, Channels: 1}, nil
}

func (f *fakeBackend) SizeBytes(path string) (int64, error) { return 4096, nil }

func newTestEngine(t *testing.T, backend *fakeBackend) *Engine {
	t.Helper()
	disp := dispatch.New(dispatch.Config{Synchronous: true})
	t.Cleanup(disp.Shutdown)
	return New(backend, memory.New(0), disp, accel.NewDetector(), 2)
}

func TestLoadModel_RejectsEmptyVoiceCatalog(t *testing.T) {
	backend := newFakeBackend()
	backend.voices = nil
	e := newTestEngine(t, backend)
	_, err := e.LoadModel("/models/tts.onnx", func(Handle) {})
	assert.Equal(t, aierr.ModelFileCorrupted, aierr.CodeOf(err))
}

func TestGetAvailableVoices(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/tts.onnx", func(Handle) {})
	require.NoError(t, err)

	voices, err := e.GetAvailableVoices(h)
	require.NoError(t, err)
	assert.Len(t, voices, len(BuiltinVoiceCatalog()))
}

func TestSynthesize_RejectsEmptyText(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/tts.onnx", func(Handle) {})
	require.NoError(t, err)

	_, err = e.Synthesize(h, "   ", DefaultConfig())
	assert.Equal(t, aierr.InferenceInvalidInput, aierr.CodeOf(err))
}

func TestSynthesize_RejectsOutOfRangeSpeed(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/tts.onnx", func(Handle) {})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Speed = 3.0
	_, err = e.Synthesize(h, "hello", cfg)
	assert.Equal(t, aierr.InvalidInputParameterValue, aierr.CodeOf(err))
}

func TestSynthesize_RejectsOutOfRangePitch(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/tts.onnx", func(Handle) {})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Pitch = 2.0
	_, err = e.Synthesize(h, "hello", cfg)
	assert.Equal(t, aierr.InvalidInputParameterValue, aierr.CodeOf(err))
}

func TestSynthesize_RejectsUnknownVoiceID(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/tts.onnx", func(Handle) {})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.VoiceID = "nonexistent-voice"
	_, err = e.Synthesize(h, "hello", cfg)
	assert.Equal(t, aierr.InvalidInputParameterValue, aierr.CodeOf(err))
}

func TestSynthesize_DefaultVoiceResolvesToFirstInCatalog(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/tts.onnx", func(Handle) {})
	require.NoError(t, err)

	out, err := e.Synthesize(h, "hello", DefaultConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, out.Samples)
}

func TestSynthesize_FasterSpeedProducesShorterAudio(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/tts.onnx", func(Handle) {})
	require.NoError(t, err)

	normal, err := e.Synthesize(h, "hello", DefaultConfig())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Speed = 2.0
	fast, err := e.Synthesize(h, "hello", cfg)
	require.NoError(t, err)

	assert.Less(t, len(fast.Samples), len(normal.Samples))
}

func TestSynthesizeStreaming_DeliversChunksInOrder(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/tts.onnx", func(Handle) {})
	require.NoError(t, err)

	var totalSamples int
	var chunkCount int
	err = e.SynthesizeStreaming(h, "hello", DefaultConfig(), 100, func(chunk audiofmt.Data) bool {
		chunkCount++
		totalSamples += len(chunk.Samples)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, totalSamples)
	assert.Equal(t, 10, chunkCount)
}

func TestSynthesizeStreaming_StopsEarlyWhenCallbackReturnsFalse(t *testing.T) {
	e := newTestEngine(t, newFakeBackend())
	h, err := e.LoadModel("/models/tts.onnx", func(Handle) {})
	require.NoError(t, err)

	var chunkCount int
	err = e.SynthesizeStreaming(h, "hello", DefaultConfig(), 100, func(chunk audiofmt.Data) bool {
		chunkCount++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, chunkCount)
}

func TestBuiltinVoiceCatalog_SpansGendersAndLanguages(t *testing.T) {
	voices := BuiltinVoiceCatalog()
	genders := make(map[Gender]bool)
	languages := make(map[string]bool)
	for _, v := range voices {
		genders[v.Gender] = true
		languages[v.Language] = true
	}
	assert.GreaterOrEqual(t, len(genders), 2)
	assert.GreaterOrEqual(t, len(languages), 2)
}
