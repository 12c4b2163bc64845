package ondevicesdk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localmind-ai/ondevice-sdk/internal/devbackend"
)

func testBackends() Backends {
	return Backends{LLM: devbackend.LLM{}, STT: devbackend.STT{}, TTS: devbackend.TTS{}}
}

func newTestSDK(t *testing.T) *SDK {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ModelDirectory = t.TempDir()
	sdk, err := Initialize(cfg, testBackends())
	require.NoError(t, err)
	t.Cleanup(sdk.Shutdown)
	return sdk
}

func TestInitialize_ReturnsUsableFacade(t *testing.T) {
	sdk := newTestSDK(t)
	assert.NotNil(t, sdk.LLM())
	assert.NotNil(t, sdk.STT())
	assert.NotNil(t, sdk.TTS())
	assert.NotNil(t, sdk.Pipeline())
	assert.NotNil(t, sdk.Registry())
	assert.NotNil(t, sdk.Broker())
	assert.NotNil(t, sdk.Dispatcher())
	assert.NotNil(t, sdk.Detector())
}

func TestLLMEngine_LoadTokenizeGenerateRoundTrip(t *testing.T) {
	sdk := newTestSDK(t)
	handle, err := sdk.LLM().LoadModel("/models/llm.gguf", func(ModelHandle) {})
	require.NoError(t, err)
	require.NotZero(t, handle)

	toks, err := sdk.LLM().Tokenize(handle, "hello there friend")
	require.NoError(t, err)
	assert.Len(t, toks, 3)

	out, err := sdk.LLM().Generate(context.Background(), handle, "hello there friend", DefaultGenerationConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	history, err := sdk.LLM().GetConversationHistory(handle)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestLLMEngine_UnloadInvalidatesHandle(t *testing.T) {
	sdk := newTestSDK(t)
	handle, err := sdk.LLM().LoadModel("/models/llm.gguf", func(ModelHandle) {})
	require.NoError(t, err)
	require.NoError(t, sdk.LLM().UnloadModel(handle))

	_, err = sdk.LLM().GetContextUsage(handle)
	assert.Error(t, err)
}

func TestSTTEngine_LoadAndTranscribe(t *testing.T) {
	sdk := newTestSDK(t)
	handle, err := sdk.STT().LoadModel("/models/stt.bin", func(ModelHandle) {})
	require.NoError(t, err)

	audio := AudioData{Samples: make([]float32, 1600), SampleRate: 16000, Channels: 1}
	transcription, err := sdk.STT().Transcribe(handle, audio, TranscriptionConfig{})
	require.NoError(t, err)
	assert.NotEmpty(t, transcription.Text)
	assert.GreaterOrEqual(t, transcription.Confidence, 0.0)
	assert.LessOrEqual(t, transcription.Confidence, 1.0)
}

func TestTTSEngine_LoadAndSynthesize(t *testing.T) {
	sdk := newTestSDK(t)
	handle, err := sdk.TTS().LoadModel("/models/tts.onnx", func(ModelHandle) {})
	require.NoError(t, err)

	voices, err := sdk.TTS().GetAvailableVoices(handle)
	require.NoError(t, err)
	assert.NotEmpty(t, voices)

	audio, err := sdk.TTS().Synthesize(handle, "hello world", DefaultSynthesisConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, audio.Samples)
}

func TestPipeline_ConfigureAndRunOneTurn(t *testing.T) {
	sdk := newTestSDK(t)
	sttHandle, err := sdk.STT().LoadModel("/models/stt.bin", func(ModelHandle) {})
	require.NoError(t, err)
	llmHandle, err := sdk.LLM().LoadModel("/models/llm.gguf", func(ModelHandle) {})
	require.NoError(t, err)
	ttsHandle, err := sdk.TTS().LoadModel("/models/tts.onnx", func(ModelHandle) {})
	require.NoError(t, err)

	require.NoError(t, sdk.Pipeline().Configure(sttHandle, llmHandle, ttsHandle, PipelineConfig{}))

	served := false
	audioIn := func() AudioData {
		if served {
			return AudioData{}
		}
		served = true
		return AudioData{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 16000, Channels: 1}
	}

	var gotTranscript, gotReply string
	err = sdk.Pipeline().StartConversation(context.Background(), audioIn,
		func(AudioData) {},
		func(s string) { gotTranscript = s },
		func(s string) { gotReply = s },
	)
	require.NoError(t, err)
	assert.NotEmpty(t, gotTranscript)
	assert.NotEmpty(t, gotReply)

	history := sdk.Pipeline().GetHistory()
	require.Len(t, history, 1)
}

func TestBuiltinVoiceCatalog_IsNotEmpty(t *testing.T) {
	assert.NotEmpty(t, BuiltinVoiceCatalog())
}

func TestToWAVFromWAV_PublicReExport(t *testing.T) {
	audio := AudioData{Samples: []float32{0.1, 0.2, -0.1, 0.0}, SampleRate: 16000, Channels: 1}
	encoded, err := ToWAV(audio, 16)
	require.NoError(t, err)
	decoded, err := FromWAV(encoded)
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate, decoded.SampleRate)
}

func TestErrorKinds_AreDistinctValues(t *testing.T) {
	kinds := []ErrorKind{
		ErrInvalidInputNullPointer, ErrInvalidInputParameterValue, ErrInvalidInputAudioFormat,
		ErrInvalidInputModelHandle, ErrInvalidInputConfiguration, ErrModelFileNotFound,
		ErrModelFileCorrupted, ErrModelNotFoundInRegistry, ErrInferenceModelNotLoaded,
		ErrInferenceContextWindowExceeded, ErrResourceOutOfMemory, ErrStorageInsufficientSpace,
		ErrNetworkUnreachable, ErrOperationCancelled,
	}
	seen := make(map[ErrorKind]bool)
	for _, k := range kinds {
		assert.False(t, seen[k], "duplicate error kind value: %v", k)
		seen[k] = true
	}
}
