package sdkcore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
	"github.com/localmind-ai/ondevice-sdk/internal/audiofmt"
	"github.com/localmind-ai/ondevice-sdk/internal/devbackend"
	"github.com/localmind-ai/ondevice-sdk/internal/llm"
	"github.com/localmind-ai/ondevice-sdk/internal/stt"
	"github.com/localmind-ai/ondevice-sdk/internal/tts"
)

func testBackends() Backends {
	return Backends{LLM: devbackend.LLM{}, STT: devbackend.STT{}, TTS: devbackend.TTS{}}
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.ModelDirectory = t.TempDir()
	return cfg
}

// initAndCleanup initializes the singleton and guarantees teardown even if
// the test fails partway through, since the singleton is process-global.
func initAndCleanup(t *testing.T, cfg Config) *SDK {
	t.Helper()
	sdk, err := Initialize(cfg, testBackends())
	require.NoError(t, err)
	t.Cleanup(sdk.Shutdown)
	return sdk
}

func TestInitialize_RejectsSecondInstanceUntilShutdown(t *testing.T) {
	sdk := initAndCleanup(t, testConfig(t))

	_, err := Initialize(testConfig(t), testBackends())
	assert.Equal(t, aierr.InvalidInputConfiguration, aierr.CodeOf(err))

	sdk.Shutdown()
	// After shutdown, a fresh Initialize must succeed.
	sdk2, err := Initialize(testConfig(t), testBackends())
	require.NoError(t, err)
	sdk2.Shutdown()
}

func TestInitialize_RejectsInvalidThreadCount(t *testing.T) {
	cfg := testConfig(t)
	cfg.ThreadCount = 0
	_, err := Initialize(cfg, testBackends())
	assert.Equal(t, aierr.InvalidInputParameterValue, aierr.CodeOf(err))

	cfg.ThreadCount = 65
	_, err = Initialize(cfg, testBackends())
	assert.Equal(t, aierr.InvalidInputParameterValue, aierr.CodeOf(err))
}

func TestInitialize_RejectsEmptyModelDirectory(t *testing.T) {
	cfg := DefaultConfig()
	_, err := Initialize(cfg, testBackends())
	assert.Equal(t, aierr.InvalidInputConfiguration, aierr.CodeOf(err))
}

func TestInitialize_WiresAllSharedComponents(t *testing.T) {
	sdk := initAndCleanup(t, testConfig(t))
	assert.NotNil(t, sdk.Broker)
	assert.NotNil(t, sdk.Dispatch)
	assert.NotNil(t, sdk.Registry)
	assert.NotNil(t, sdk.Detector)
	assert.NotNil(t, sdk.LLM)
	assert.NotNil(t, sdk.STT)
	assert.NotNil(t, sdk.TTS)
	assert.NotNil(t, sdk.Pipeline)
	assert.Nil(t, sdk.Telemetry, "telemetry is opt-in and must stay nil unless enabled")
}

func TestLoadModel_HandlesAreUniqueAcrossEngines(t *testing.T) {
	sdk := initAndCleanup(t, testConfig(t))

	llmHandle, err := sdk.LLM.LoadModel("/models/llm.gguf", func(llm.Handle) {})
	require.NoError(t, err)
	sttHandle, err := sdk.STT.LoadModel("/models/stt.bin", func(stt.Handle) {})
	require.NoError(t, err)
	ttsHandle, err := sdk.TTS.LoadModel("/models/tts.onnx", func(tts.Handle) {})
	require.NoError(t, err)

	assert.NotEqual(t, uint64(llmHandle), uint64(sttHandle))
	assert.NotEqual(t, uint64(llmHandle), uint64(ttsHandle))
	assert.NotEqual(t, uint64(sttHandle), uint64(ttsHandle))

	wantTotal := int64(64<<20) + int64(32<<20) + int64(16<<20)
	assert.Equal(t, wantTotal, sdk.Broker.TotalBytes(), "each engine's allocation must be tracked independently in the shared broker")
}

func TestInitialize_OpensTelemetryWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableTelemetry = true
	sdk := initAndCleanup(t, cfg)
	assert.NotNil(t, sdk.Telemetry)
}

func TestGetInstance_ReflectsCurrentSingleton(t *testing.T) {
	assert.Nil(t, GetInstance())
	sdk := initAndCleanup(t, testConfig(t))
	assert.Same(t, sdk, GetInstance())
}

func TestShutdown_IsIdempotent(t *testing.T) {
	sdk := initAndCleanup(t, testConfig(t))
	sdk.Shutdown()
	sdk.Shutdown() // must not panic or double-close resources
	assert.Nil(t, GetInstance())
}

func TestShutdown_UnloadsEveryResidentModelAcrossEngines(t *testing.T) {
	sdk := initAndCleanup(t, testConfig(t))

	llmHandle, err := sdk.LLM.LoadModel("/models/llm.gguf", func(llm.Handle) {})
	require.NoError(t, err)
	sttHandle, err := sdk.STT.LoadModel("/models/stt.bin", func(stt.Handle) {})
	require.NoError(t, err)
	ttsHandle, err := sdk.TTS.LoadModel("/models/tts.onnx", func(tts.Handle) {})
	require.NoError(t, err)

	require.NotZero(t, sdk.Broker.TotalBytes(), "broker must have tracked all three loaded models")

	sdk.Shutdown()

	_, err = sdk.LLM.GetContextUsage(llmHandle)
	assert.Equal(t, aierr.InvalidInputModelHandle, aierr.CodeOf(err))
	_, err = sdk.STT.Transcribe(sttHandle, audiofmt.Data{Samples: []float32{0}, SampleRate: 16000}, stt.Config{})
	assert.Equal(t, aierr.InvalidInputModelHandle, aierr.CodeOf(err))
	_, err = sdk.TTS.GetAvailableVoices(ttsHandle)
	assert.Equal(t, aierr.InvalidInputModelHandle, aierr.CodeOf(err))

	assert.Zero(t, sdk.Broker.TotalBytes(), "shutdown must unload every engine's resident models from the shared broker")
}

func TestInitialize_ConcurrentCallersResolveToExactlyOneWinner(t *testing.T) {
	const n = 8
	var wg sync.WaitGroup
	successes := make([]bool, n)
	sdks := make([]*SDK, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sdk, err := Initialize(testConfig(t), testBackends())
			successes[i] = err == nil
			sdks[i] = sdk
		}(i)
	}
	wg.Wait()

	var winners int
	for i, ok := range successes {
		if ok {
			winners++
			require.NotNil(t, sdks[i])
			t.Cleanup(sdks[i].Shutdown)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent Initialize call must win the CAS")
}

func TestSetThreadCount_RejectsOutOfRange(t *testing.T) {
	sdk := initAndCleanup(t, testConfig(t))
	assert.Error(t, sdk.SetThreadCount(0))
	assert.Error(t, sdk.SetThreadCount(65))
	assert.NoError(t, sdk.SetThreadCount(8))
	assert.Equal(t, 8, sdk.Config().ThreadCount)
}

func TestSetModelDirectory_IgnoresEmptyValue(t *testing.T) {
	sdk := initAndCleanup(t, testConfig(t))
	original := sdk.Config().ModelDirectory
	sdk.SetModelDirectory("")
	assert.Equal(t, original, sdk.Config().ModelDirectory)

	sdk.SetModelDirectory("/tmp/new-dir")
	assert.Equal(t, "/tmp/new-dir", sdk.Config().ModelDirectory)
}

func TestSetMemoryLimit_UpdatesBroker(t *testing.T) {
	sdk := initAndCleanup(t, testConfig(t))
	sdk.SetMemoryLimit(1024)
	assert.Equal(t, int64(1024), sdk.Config().MemoryLimit)
	assert.True(t, sdk.Broker.NeedsEviction(2048), "the broker must enforce the new 1024-byte limit")
}

func TestSetSynchronousCallbacks_TogglesDispatcherMode(t *testing.T) {
	sdk := initAndCleanup(t, testConfig(t))
	sdk.SetSynchronousCallbacks(true)
	assert.True(t, sdk.Config().SynchronousCallbacks)

	var ran bool
	sdk.Dispatch.Dispatch(func() { ran = true })
	assert.True(t, ran, "synchronous mode must run callbacks inline")
}
