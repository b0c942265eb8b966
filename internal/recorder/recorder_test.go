package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDetector lets tests script a sequence of active/end-of-speech
// decisions.
type fakeDetector struct {
	activeSeq []bool
	activeIdx int
	endOfSpeechSeq []bool
	eosIdx         int
	resets         int
}

func (f *fakeDetector) IsActive(frame []int16) bool {
	if f.activeIdx >= len(f.activeSeq) {
		return f.activeSeq[len(f.activeSeq)-1]
	}
	v := f.activeSeq[f.activeIdx]
	f.activeIdx++
	return v
}

func (f *fakeDetector) IsEndOfSpeech(frame []int16) bool {
	if f.eosIdx >= len(f.endOfSpeechSeq) {
		return f.endOfSpeechSeq[len(f.endOfSpeechSeq)-1]
	}
	v := f.endOfSpeechSeq[f.eosIdx]
	f.eosIdx++
	return v
}

func (f *fakeDetector) ResetStates() { f.resets++ }

func cfg() Config {
	return Config{
		PostSpeechSilenceDuration: 30 * time.Millisecond,
		MinLengthOfRecording:      0,
		MaxSilenceDuration:        time.Hour, // disable trimming unless a test wants it
		PreRollBufferDuration:     100 * time.Millisecond,
		SampleRate:                16000,
	}
}

func TestListeningToRecordingOnVoicedChunk(t *testing.T) {
	det := &fakeDetector{activeSeq: []bool{true}}
	var transitions []State
	r := New(cfg(), det, Callbacks{OnStateChange: func(from, to State) { transitions = append(transitions, to) }})

	r.Listen()
	r.Feed(make([]float32, 160), make([]int16, 160))

	require.Equal(t, StateRecording, r.State())
	require.Contains(t, transitions, StateListening)
	require.Contains(t, transitions, StateRecording)
}

func TestPreRollDrainedIntoFramesOnTransition(t *testing.T) {
	det := &fakeDetector{activeSeq: []bool{false, false, true}}
	r := New(cfg(), det, Callbacks{})

	r.Listen()
	r.Feed(make([]float32, 160), make([]int16, 160))
	r.Feed(make([]float32, 160), make([]int16, 160))
	r.Feed(make([]float32, 160), make([]int16, 160))

	require.Equal(t, StateRecording, r.State())
	// 3 chunks of 160 samples each should have made it into frames (preroll + triggering chunk).
	require.GreaterOrEqual(t, len(r.frames), 160*3-160) // at least preroll window + new chunk
}

func TestRecordingStopsAfterSilenceAndMinLength(t *testing.T) {
	det := &fakeDetector{
		activeSeq:      []bool{true},
		endOfSpeechSeq: []bool{true},
	}
	var transitions []State
	r := New(cfg(), det, Callbacks{OnStateChange: func(from, to State) { transitions = append(transitions, to) }})

	r.Listen()
	r.Feed(make([]float32, 160), make([]int16, 160)) // triggers recording
	r.Feed(make([]float32, 160), make([]int16, 160)) // first silent chunk starts the silence timer
	time.Sleep(40 * time.Millisecond)                 // exceed PostSpeechSilenceDuration
	r.Feed(make([]float32, 160), make([]int16, 160))  // silent chunk observed

	require.Equal(t, StateTranscribing, r.State())
	require.Contains(t, transitions, StateTranscribing)
}

func TestFinishReturnsFramesAndResetsToInactive(t *testing.T) {
	det := &fakeDetector{activeSeq: []bool{true}}
	r := New(cfg(), det, Callbacks{})

	r.Listen()
	r.Feed(make([]float32, 160), make([]int16, 160))
	require.Equal(t, StateRecording, r.State())

	out := r.Finish()
	require.Equal(t, StateInactive, r.State())
	require.NotEmpty(t, out)
}

func TestExtendedSilenceTrim(t *testing.T) {
	c := cfg()
	c.MaxSilenceDuration = 10 * time.Millisecond
	c.PostSpeechSilenceDuration = time.Hour // don't auto-stop; we want to observe the trim directly

	det := &fakeDetector{
		activeSeq:      []bool{true},
		endOfSpeechSeq: []bool{true},
	}
	r := New(c, det, Callbacks{})
	r.Listen()
	r.Feed(make([]float32, 160), make([]int16, 160)) // start recording
	r.Feed(make([]float32, 160), make([]int16, 160)) // first silent chunk starts the silence timer
	time.Sleep(20 * time.Millisecond)                 // exceed MaxSilenceDuration
	r.Feed(make([]float32, 160), make([]int16, 160)) // silent chunk triggers trim start

	r.mu.Lock()
	trimming := r.trimming
	r.mu.Unlock()
	require.True(t, trimming, "extended silence should start a trim region")
}
