package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/homelab-00/transcription-suite/internal/livemode"
	"github.com/homelab-00/transcription-suite/internal/metrics"
	"github.com/homelab-00/transcription-suite/internal/tokenstore"
)

// WSLiveHandler serves /ws/live: the Live Mode session protocol (§4.9),
// bridging one livemode.Session's Events() channel and Feed() calls onto a
// single WebSocket connection.
type WSLiveHandler struct {
	store               *tokenstore.Store
	controller          *livemode.Controller
	allowLoopbackBypass bool
	log                 zerolog.Logger
}

func NewWSLiveHandler(store *tokenstore.Store, controller *livemode.Controller, allowLoopbackBypass bool, log zerolog.Logger) *WSLiveHandler {
	return &WSLiveHandler{store: store, controller: controller, allowLoopbackBypass: allowLoopbackBypass, log: log.With().Str("component", "wslive").Logger()}
}

func (h *WSLiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
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
	_ = identity
	ackAuth(conn)

	var session *livemode.Session
	defer func() {
		if session != nil {
			session.Stop()
		}
	}()

	done := make(chan struct{})
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			close(done)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if session == nil {
				continue
			}
			_, pcm, perr := parseAudioFrame(payload)
			if perr != nil {
				writeWSError(conn, perr.Error())
				continue
			}
			session.Feed(pcm)

		case websocket.TextMessage:
			var msg struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "start":
				if session != nil {
					writeWSError(conn, "a Live Mode session is already active on this connection")
					continue
				}
				var cfg livemode.StartConfig
				if len(msg.Data) > 0 {
					json.Unmarshal(msg.Data, &cfg)
				}
				s, err := h.controller.Start(r.Context(), cfg)
				if err != nil {
					writeWSError(conn, err.Error())
					continue
				}
				session = s
				metrics.LiveModeSessionsTotal.Inc()
				go h.pumpEvents(conn, s, done)

			case "stop":
				if session == nil {
					continue
				}
				session.Stop()
				session = nil

			case "get_history":
				if session == nil {
					writeWSError(conn, "no active live mode session")
					continue
				}
				writeWSFrame(conn, "history", session.GetHistory())

			case "clear_history":
				if session == nil {
					writeWSError(conn, "no active live mode session")
					continue
				}
				session.ClearHistory()
				writeWSFrame(conn, "history_cleared", nil)

			case "ping":
				writeWSFrame(conn, "pong", nil)
			}
		}
	}
}

// pumpEvents drains one session's Events() channel onto the WebSocket
// connection until the session stops or the connection's read loop exits.
// Runs on its own goroutine since Events() and ReadMessage() must be
// serviced concurrently.
func (h *WSLiveHandler) pumpEvents(conn *websocket.Conn, s *livemode.Session, done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
