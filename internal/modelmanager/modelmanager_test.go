package modelmanager

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/homelab-00/transcription-suite/internal/engines"
)

type fakeDecoder struct {
	name      string
	translate bool
	closed    bool
}

func (f *fakeDecoder) Decode(ctx context.Context, samples []float32, opts engines.DecodeOptions) ([]engines.Segment, error) {
	return nil, nil
}
func (f *fakeDecoder) ModelName() string           { return f.name }
func (f *fakeDecoder) SupportsTranslation() bool    { return f.translate }
func (f *fakeDecoder) Close() error                 { f.closed = true; return nil }

func newTestManager(t *testing.T) *Manager {
	loadDecoder := func(modelName, device, computeType string) (engines.Decoder, error) {
		return &fakeDecoder{name: modelName}, nil
	}
	loadDiarizer := func(modelName, device string) (engines.Diarizer, error) {
		return nil, nil
	}
	return New(loadDecoder, loadDiarizer, "cpu", zerolog.Nop())
}

func TestLoadUnloadMainModel(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.LoadMainModel("small", "int8"))
	require.True(t, m.GetStatus().MainLoaded)
	require.Equal(t, "small", m.GetStatus().MainModel)

	require.NoError(t, m.UnloadMainModel())
	require.False(t, m.GetStatus().MainLoaded)
}

func TestReloadMainModel(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.LoadMainModel("large-v3", "float16"))
	require.NoError(t, m.ReloadMainModel())
	require.True(t, m.GetStatus().MainLoaded)
	require.Equal(t, "large-v3", m.GetStatus().MainModel)
}

func TestIsSameModel(t *testing.T) {
	require.True(t, IsSameModel("large-v3", "large-v3"))
	require.False(t, IsSameModel("large-v3", "small"))
	require.False(t, IsSameModel("", ""))
}

func TestJobTrackerSingleSlot(t *testing.T) {
	jt := NewJobTracker()

	ok, id1, _ := jt.TryStartJob("alice")
	require.True(t, ok)
	require.NotEmpty(t, id1)

	ok2, _, activeUser := jt.TryStartJob("bob")
	require.False(t, ok2)
	require.Equal(t, "alice", activeUser)

	jt.EndJob(id1)
	ok3, _, _ := jt.TryStartJob("bob")
	require.True(t, ok3)
}

func TestJobTrackerCancel(t *testing.T) {
	jt := NewJobTracker()

	ok, _, _ := jt.CancelJob()
	require.False(t, ok, "cancel with no active job should fail")

	_, id, _ := jt.TryStartJob("alice")
	require.False(t, jt.IsCancelled())

	ok, user := jt.CancelJob()
	require.True(t, ok)
	require.Equal(t, "alice", user)
	require.True(t, jt.IsCancelled())

	jt.EndJob(id)
	require.False(t, jt.IsActive())
}
