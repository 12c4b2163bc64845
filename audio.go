package ondevicesdk

import "github.com/localmind-ai/ondevice-sdk/internal/audiofmt"

// AudioData re-exports audiofmt.Data, the SDK's mono float32 PCM model
// normalized to [-1.0, 1.0] (spec.md §3).
type AudioData = audiofmt.Data

// AudioSegment re-exports audiofmt.Segment, a detected voice-activity span.
type AudioSegment = audiofmt.Segment

// ToWAV encodes audio as a canonical RIFF/WAVE mono PCM buffer.
func ToWAV(audio AudioData, bitsPerSample int) ([]byte, error) {
	return audiofmt.ToWAV(audio, bitsPerSample)
}

// FromWAV parses a RIFF/WAVE PCM buffer into AudioData.
func FromWAV(data []byte) (AudioData, error) {
	return audiofmt.FromWAV(data)
}

// Resample changes audio's sample rate via linear interpolation.
func Resample(audio AudioData, targetRate int) AudioData {
	return audiofmt.Resample(audio, targetRate)
}

// DetectVoiceActivity returns time-ordered, non-overlapping segments where
// frame energy exceeds threshold.
func DetectVoiceActivity(audio AudioData, threshold float64) ([]AudioSegment, error) {
	return audiofmt.DetectVoiceActivity(audio, threshold)
}
