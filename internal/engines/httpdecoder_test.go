package engines

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPDecoderDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "small", r.FormValue("model"))
		require.Equal(t, "verbose_json", r.FormValue("response_format"))
		require.Equal(t, "el", r.FormValue("language"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"text": "hello",
			"language": "el",
			"segments": [{"start": 0, "end": 1.5, "text": "hello", "words": [{"word": "hello", "start": 0, "end": 1.5, "probability": 0.9}]}]
		}`))
	}))
	defer srv.Close()

	dec := NewHTTPDecoder(srv.URL, "small", "int8", true)
	require.Equal(t, "small", dec.ModelName())
	require.True(t, dec.SupportsTranslation())

	segments, err := dec.Decode(context.Background(), make([]float32, 1600), DecodeOptions{
		Language:       "el",
		WordTimestamps: true,
	})
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, "hello", segments[0].Text)
	require.Len(t, segments[0].Words, 1)
}

func TestHTTPDecoderDecodeCancelledBeforeDispatch(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	dec := NewHTTPDecoder(srv.URL, "small", "int8", true)
	_, err := dec.Decode(context.Background(), make([]float32, 100), DecodeOptions{
		CancellationCheck: func() bool { return true },
	})
	require.Error(t, err)
	require.False(t, called)
}

func TestHTTPDecoderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	dec := NewHTTPDecoder(srv.URL, "small", "int8", true)
	_, err := dec.Decode(context.Background(), make([]float32, 100), DecodeOptions{})
	require.Error(t, err)
}

func TestHTTPDiarizerDiarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "2", r.FormValue("num_speakers"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"start":0,"end":1.2,"speaker":"SPEAKER_00"},{"start":1.2,"end":2.5,"speaker":"SPEAKER_01"}]`))
	}))
	defer srv.Close()

	d := NewHTTPDiarizer(srv.URL)
	segments, err := d.Diarize(context.Background(), make([]float32, 1600), DiarizeOptions{NumSpeakers: 2})
	require.NoError(t, err)
	require.Len(t, segments, 2)
	require.Equal(t, "SPEAKER_00", segments[0].Speaker)
}
