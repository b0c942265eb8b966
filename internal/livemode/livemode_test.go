package livemode

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/homelab-00/transcription-suite/internal/engines"
	"github.com/homelab-00/transcription-suite/internal/modelmanager"
	"github.com/homelab-00/transcription-suite/internal/recorder"
)

type fakeDecoder struct {
	name string
}

func (f *fakeDecoder) Decode(ctx context.Context, samples []float32, opts engines.DecodeOptions) ([]engines.Segment, error) {
	return []engines.Segment{{Start: 0, End: 1, Text: "hi"}}, nil
}
func (f *fakeDecoder) ModelName() string        { return f.name }
func (f *fakeDecoder) SupportsTranslation() bool { return f.name == "translatable" }
func (f *fakeDecoder) Close() error             { return nil }

type fakeDetector struct{ active bool }

func (f *fakeDetector) IsActive(frame []int16) bool      { return f.active }
func (f *fakeDetector) IsEndOfSpeech(frame []int16) bool { return !f.active }
func (f *fakeDetector) ResetStates()                     {}
func (f *fakeDetector) SetDeactivityMode(bool)           {}

func newTestController(t *testing.T) (*Controller, *modelmanager.Manager, *fakeDetector) {
	loadDecoder := func(modelName, device, computeType string) (engines.Decoder, error) {
		return &fakeDecoder{name: modelName}, nil
	}
	m := modelmanager.New(loadDecoder, nil, "cpu", zerolog.Nop())
	det := &fakeDetector{}
	factory := func(webrtc int, silero float64) Detector { return det }
	cfg := recorder.Config{
		PostSpeechSilenceDuration: 10 * time.Millisecond,
		MaxSilenceDuration:        time.Hour,
		PreRollBufferDuration:     10 * time.Millisecond,
		SampleRate:                16000,
	}
	return NewController(m, factory, cfg, zerolog.Nop()), m, det
}

func TestStartRejectsConcurrentSession(t *testing.T) {
	c, _, _ := newTestController(t)
	_, err := c.Start(context.Background(), StartConfig{Model: "small"})
	require.NoError(t, err)

	_, err = c.Start(context.Background(), StartConfig{Model: "small"})
	require.Error(t, err)
}

func TestStartRejectsNonEnglishTranslationTarget(t *testing.T) {
	c, _, _ := newTestController(t)
	_, err := c.Start(context.Background(), StartConfig{Model: "small", TranslationEnabled: true, TranslationTargetLanguage: "fr"})
	require.Error(t, err)
}

func TestStopReloadsMainModel(t *testing.T) {
	c, m, _ := newTestController(t)
	require.NoError(t, m.LoadMainModel("base", ""))

	s, err := c.Start(context.Background(), StartConfig{Model: "small"})
	require.NoError(t, err)

	s.Stop()

	require.NotNil(t, m.MainModel())
	require.Equal(t, "base", m.MainModel().ModelName())
}

func TestFeedStartsRecordingOnVoicedChunk(t *testing.T) {
	c, _, det := newTestController(t)
	s, err := c.Start(context.Background(), StartConfig{Model: "small"})
	require.NoError(t, err)

	det.active = true
	s.Feed(make([]int16, 160))

	require.Eventually(t, func() bool {
		return s.recorder.State() == recorder.StateRecording
	}, time.Second, time.Millisecond)
}
