package api

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/homelab-00/transcription-suite/internal/apperror"
	"github.com/homelab-00/transcription-suite/internal/engines"
	"github.com/homelab-00/transcription-suite/internal/modelmanager"
	"github.com/homelab-00/transcription-suite/internal/tokenstore"
)

// authHandshakeTimeout bounds how long a freshly-accepted WS connection has
// to send its `{type:"auth",token:"..."}` frame before being dropped (§4.8).
const authHandshakeTimeout = 5 * time.Second

// wsUpgrader is shared by /ws and /ws/live; origin checking already happened
// in the OriginCheck middleware, so the upgrader itself accepts everything
// that reached it.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// audioFrameMeta is the JSON header preceding PCM samples in a binary audio
// frame (§6): 4-byte LE length, then this struct, then raw Int16 samples.
type audioFrameMeta struct {
	SampleRate int `json:"sample_rate"`
}

// authFrame is the client's post-upgrade auth handshake message.
type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsAuthenticate performs §4.8's WebSocket authentication handshake: await
// one `{type:"auth",token:"..."}` text frame within authHandshakeTimeout. A
// request that already carried a valid query/header/cookie token (resolved
// by the AuthenticateWS middleware) is accepted without the frame exchange
// when it originates from a loopback address, matching the spec's
// local-loopback bypass policy flag.
func wsAuthenticate(conn *websocket.Conn, store *tokenstore.Store, r *http.Request, allowLoopbackBypass bool) (tokenstore.Identity, bool) {
	if allowLoopbackBypass && isLoopback(r) {
		if identity, ok := IdentityFromContext(r.Context()); ok {
			return identity, true
		}
	}

	conn.SetReadDeadline(time.Now().Add(authHandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return tokenstore.Identity{}, false
	}
	var frame authFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.Type != "auth" {
		return tokenstore.Identity{}, false
	}
	identity, ok := store.Validate(frame.Token)
	return identity, ok
}

func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeAuthFail(conn *websocket.Conn) {
	payload, _ := json.Marshal(map[string]string{"type": "auth_fail"})
	conn.WriteMessage(websocket.TextMessage, payload)
}

// WSHandler serves /ws: the file/streaming transcription protocol. A client
// streams PCM Int16 audio as binary frames, then sends a `stop` text
// message; the accumulated audio is decoded on the main model under the Job
// Tracker's slot and the result is returned as one JSON text frame.
type WSHandler struct {
	store               *tokenstore.Store
	models              *modelmanager.Manager
	allowLoopbackBypass bool
	log                 zerolog.Logger
}

func NewWSHandler(store *tokenstore.Store, models *modelmanager.Manager, allowLoopbackBypass bool, log zerolog.Logger) *WSHandler {
	return &WSHandler{store: store, models: models, allowLoopbackBypass: allowLoopbackBypass, log: log.With().Str("component", "ws").Logger()}
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	identity, ok := wsAuthenticate(conn, h.store, r, h.allowLoopbackBypass)
	if !ok {
		writeAuthFail(conn)
		return
	}
	ackAuth(conn)

	var samples []float32
	var sampleRate = 16000
	var language string

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			meta, pcm, err := parseAudioFrame(payload)
			if err != nil {
				writeWSError(conn, err.Error())
				continue
			}
			if meta.SampleRate != 0 {
				sampleRate = meta.SampleRate
			}
			samples = append(samples, pcmToFloat32(pcm)...)
		case websocket.TextMessage:
			var msg map[string]any
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			switch msg["type"] {
			case "start":
				if cfg, ok := msg["data"].(map[string]any); ok {
					if lang, ok := cfg["language"].(string); ok {
						language = lang
					}
				}
			case "stop":
				h.finishAndEmit(conn, r.Context(), identity.ClientName, samples, sampleRate, language)
				return
			case "ping":
				writeWSFrame(conn, "pong", nil)
			}
		}
	}
}

func (h *WSHandler) finishAndEmit(conn *websocket.Conn, ctx context.Context, clientName string, samples []float32, sampleRate int, language string) {
	if len(samples) == 0 {
		writeWSError(conn, "no audio received")
		return
	}

	ok, jobID, activeUser := h.models.Jobs.TryStartJob(clientName)
	if !ok {
		writeWSError(conn, "transcription already in progress for "+activeUser)
		return
	}
	defer h.models.Jobs.EndJob(jobID)

	decoder := h.models.MainModel()
	if decoder == nil {
		writeWSError(conn, "no transcription model loaded")
		return
	}

	if sampleRate != 16000 {
		h.log.Warn().Int("sample_rate", sampleRate).Msg("client streamed non-16kHz audio, decoding without resampling")
	}

	segments, err := decoder.Decode(ctx, samples, engines.DecodeOptions{
		Language:          language,
		CancellationCheck: h.models.Jobs.IsCancelled,
	})
	if err != nil {
		if appErr, ok := apperror.As(err); ok {
			writeWSError(conn, appErr.Message)
			return
		}
		writeWSError(conn, err.Error())
		return
	}
	writeWSFrame(conn, "result", map[string]any{"segments": segments})
}

func parseAudioFrame(payload []byte) (audioFrameMeta, []int16, error) {
	if len(payload) < 4 {
		return audioFrameMeta{}, nil, apperror.BadInput("audio frame shorter than the metadata length prefix")
	}
	metaLen := binary.LittleEndian.Uint32(payload[:4])
	if uint32(len(payload)) < 4+metaLen {
		return audioFrameMeta{}, nil, apperror.BadInput("audio frame truncated before end of metadata")
	}
	var meta audioFrameMeta
	if metaLen > 0 {
		if err := json.Unmarshal(payload[4:4+metaLen], &meta); err != nil {
			return audioFrameMeta{}, nil, apperror.BadInput("invalid audio frame metadata JSON")
		}
	}
	pcmBytes := payload[4+metaLen:]
	samples := make([]int16, len(pcmBytes)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcmBytes[i*2:]))
	}
	return meta, samples, nil
}

func pcmToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, v := range pcm {
		out[i] = float32(v) / 32768.0
	}
	return out
}

func ackAuth(conn *websocket.Conn) { writeWSFrame(conn, "auth_ok", nil) }

func writeWSFrame(conn *websocket.Conn, typ string, data any) {
	payload, _ := json.Marshal(map[string]any{"type": typ, "data": data, "timestamp": time.Now().UnixMilli()})
	conn.WriteMessage(websocket.TextMessage, payload)
}

func writeWSError(conn *websocket.Conn, message string) {
	writeWSFrame(conn, "error", map[string]any{"message": message})
}
