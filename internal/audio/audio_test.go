package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeakNormalize(t *testing.T) {
	samples := []float32{0.1, -0.5, 0.25}
	PeakNormalize(samples, 1.0)
	require.InDelta(t, float32(1.0), abs32(samples[1]), 0.0001)
}

func TestPeakNormalizeSilentBuffer(t *testing.T) {
	samples := []float32{0, 0, 0}
	PeakNormalize(samples, 1.0)
	require.Equal(t, []float32{0, 0, 0}, samples)
}

func TestChunkWalker(t *testing.T) {
	samples := make([]float32, 10)
	w := NewChunkWalker(samples, 3)

	var chunks [][]float32
	for {
		c, ok := w.Next()
		if !ok {
			break
		}
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 4)
	require.Len(t, chunks[3], 1) // final short chunk
}

func TestTrimToVoicedKeepsOnlySpeechChunks(t *testing.T) {
	samples := []float32{1, 1, 0, 0, 1, 1}
	isSpeech := func(chunk []float32) bool { return chunk[0] == 1 }

	out := TrimToVoiced(samples, 2, isSpeech)
	require.Equal(t, []float32{1, 1, 1, 1}, out)
}

func TestTrimToVoicedNeverReturnsEmpty(t *testing.T) {
	samples := []float32{0, 0, 0, 0}
	isSpeech := func(chunk []float32) bool { return false }

	out := TrimToVoiced(samples, 2, isSpeech)
	require.Equal(t, samples, out, "must fall back to original waveform when nothing is voiced")
}
