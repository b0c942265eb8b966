package engines

import (
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func sineFrame(n int, amplitude int16) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		frame[i] = int16(float64(amplitude) * math.Sin(float64(i)*0.3))
	}
	return frame
}

func TestEnergyFrameClassifier(t *testing.T) {
	c := NewEnergyFrameClassifier(1)

	silence := make([]int16, 160)
	require.False(t, c.IsSpeech(silence))

	loud := sineFrame(160, 20000)
	require.True(t, c.IsSpeech(loud))
}

func TestEnergyFrameClassifierSensitivityClamped(t *testing.T) {
	low := NewEnergyFrameClassifier(-5)
	high := NewEnergyFrameClassifier(99)
	require.Equal(t, low.threshold, (&EnergyFrameClassifier{threshold: 0.01}).threshold)
	require.Equal(t, high.threshold, (&EnergyFrameClassifier{threshold: 0.06}).threshold)
}

func TestHTTPProbabilityClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NotEmpty(t, body)
		w.Write([]byte(`{"probability": 0.87}`))
	}))
	defer srv.Close()

	c := NewHTTPProbabilityClassifier(srv.URL)
	prob := c.SpeechProbability(sineFrame(320, 10000))
	require.InDelta(t, 0.87, prob, 0.001)
}

func TestHTTPProbabilityClassifierUnreachable(t *testing.T) {
	c := NewHTTPProbabilityClassifier("http://127.0.0.1:1")
	prob := c.SpeechProbability(sineFrame(320, 10000))
	require.Equal(t, 0.0, prob)
}
