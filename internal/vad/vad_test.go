package vad

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStage1 struct {
	voiced bool
	resets int
	mu     sync.Mutex
}

func (f *fakeStage1) IsSpeech(frame []int16) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voiced
}
func (f *fakeStage1) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

type fakeStage2 struct {
	prob   float64
	resets int
	mu     sync.Mutex
}

func (f *fakeStage2) SpeechProbability(window []int16) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prob
}
func (f *fakeStage2) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func TestDetectorRequiresBothStages(t *testing.T) {
	s1 := &fakeStage1{voiced: true}
	s2 := &fakeStage2{prob: 0.9}
	d := New(s1, s2, 0.5)
	defer d.Close()

	frame := make([]int16, 160)
	require.Eventually(t, func() bool {
		return d.IsActive(frame)
	}, time.Second, time.Millisecond)
}

func TestDetectorStage1RejectsWithoutTouchingStage2(t *testing.T) {
	s1 := &fakeStage1{voiced: false}
	s2 := &fakeStage2{prob: 0.9}
	d := New(s1, s2, 0.5)
	defer d.Close()

	require.False(t, d.IsActive(make([]int16, 160)))
}

func TestResetStatesClearsBoth(t *testing.T) {
	s1 := &fakeStage1{}
	s2 := &fakeStage2{}
	d := New(s1, s2, 0.5)
	defer d.Close()

	d.ResetStates()
	require.Equal(t, 1, s1.resets)
	require.Equal(t, 1, s2.resets)
}

func TestDeactivityModeSwitchesEndOfSpeechSource(t *testing.T) {
	s1 := &fakeStage1{voiced: true}
	s2 := &fakeStage2{prob: 0.9}
	d := New(s1, s2, 0.5)
	defer d.Close()

	d.SetDeactivityMode(false)
	require.False(t, d.IsEndOfSpeech(make([]int16, 160)), "stage1 voiced means not end of speech")

	d.SetDeactivityMode(true)
	frame := make([]int16, 160)
	// stage2Last starts false until the worker confirms; strict mode should
	// therefore report end-of-speech until Stage 2 catches up.
	require.Eventually(t, func() bool {
		d.Feed(frame)
		return !d.IsEndOfSpeech(frame)
	}, time.Second, time.Millisecond)
}
