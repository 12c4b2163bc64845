// voicebridge is a demo WebSocket server wiring one incoming audio stream
// into the SDK's voice pipeline and streaming synthesized audio back out,
// generalized from the teacher's internal/ws/handler.go call-session
// handling onto the façade's Configure/StartConversation surface.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log/slog"
	"math"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/localmind-ai/ondevice-sdk"
	"github.com/localmind-ai/ondevice-sdk/internal/ailog"
	"github.com/localmind-ai/ondevice-sdk/internal/devbackend"
	"github.com/localmind-ai/ondevice-sdk/internal/envconfig"
)

const wireSampleRate = 16000

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	llmModelPath := flag.String("llm-model", "", "path to a model file handed to the dev LLM backend")
	sttModelPath := flag.String("stt-model", "", "path to a model file handed to the dev STT backend")
	ttsModelPath := flag.String("tts-model", "", "path to a model file handed to the dev TTS backend")
	flag.Parse()

	cfg := envconfig.LoadSDKConfig()
	if cfg.ModelDirectory == "" {
		cfg.ModelDirectory = "./models"
	}

	sdk, err := ondevicesdk.Initialize(cfg, ondevicesdk.Backends{
		LLM: devbackend.LLM{},
		STT: devbackend.STT{},
		TTS: devbackend.TTS{},
	})
	if err != nil {
		slog.Error("sdk initialize failed", "error", err)
		return
	}
	defer sdk.Shutdown()

	llmHandle, err := sdk.LLM().LoadModel(*llmModelPath, func(ondevicesdk.ModelHandle) {})
	if err != nil {
		slog.Error("llm load failed", "error", err)
		return
	}
	sttHandle, err := sdk.STT().LoadModel(*sttModelPath, func(ondevicesdk.ModelHandle) {})
	if err != nil {
		slog.Error("stt load failed", "error", err)
		return
	}
	ttsHandle, err := sdk.TTS().LoadModel(*ttsModelPath, func(ondevicesdk.ModelHandle) {})
	if err != nil {
		slog.Error("tts load failed", "error", err)
		return
	}

	pipe := sdk.Pipeline()
	if err := pipe.Configure(sttHandle, llmHandle, ttsHandle, ondevicesdk.PipelineConfig{
		VADEnabled:   true,
		VADThreshold: 0.02,
	}); err != nil {
		slog.Error("pipeline configure failed", "error", err)
		return
	}

	h := &bridgeHandler{pipe: pipe}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/voice", h.ServeHTTP)

	ailog.Info("voicebridge listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		slog.Error("voicebridge server exited", "error", err)
	}
}

type bridgeHandler struct {
	pipe *ondevicesdk.VoicePipeline
}

func (h *bridgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	audioOut := func(audio ondevicesdk.AudioData) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.BinaryMessage, encodePCM16(audio)); err != nil {
			slog.Warn("voicebridge: write failed", "error", err)
		}
	}

	audioIn := func() ondevicesdk.AudioData {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return ondevicesdk.AudioData{}
		}
		return decodePCM16(payload)
	}

	onTranscription := func(text string) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(map[string]string{"type": "transcription", "text": text})
	}
	onLLMText := func(text string) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(map[string]string{"type": "assistant", "text": text})
	}

	if err := h.pipe.StartConversation(ctx, audioIn, audioOut, onTranscription, onLLMText); err != nil {
		slog.Info("voicebridge session ended", "error", err)
	}
}

// encodePCM16 converts normalized float32 samples into little-endian
// 16-bit PCM, the wire format this demo exchanges with browser clients.
func encodePCM16(audio ondevicesdk.AudioData) []byte {
	buf := make([]byte, len(audio.Samples)*2)
	for i, s := range audio.Samples {
		clamped := math.Max(-1, math.Min(1, float64(s)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(clamped*32767)))
	}
	return buf
}

func decodePCM16(payload []byte) ondevicesdk.AudioData {
	n := len(payload) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(payload[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return ondevicesdk.AudioData{Samples: samples, SampleRate: wireSampleRate, Channels: 1}
}
