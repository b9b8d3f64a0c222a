package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kappaborg/Simultane-Translate/pkg/live"
	"go.uber.org/zap"
)

const (
	liveReadLimit = 32 << 20
	pongWait      = 120 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser front-end is served from a different origin in development.
	CheckOrigin: func(*http.Request) bool { return true },
}

type liveError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// handleLive streams a session over a websocket. Binary frames carry one
// utterance of audio each; text frames carry typed text. Each frame is
// answered with progress events or an error object.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.app.Sessions.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(liveReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := r.Context()
	emit := func(ev live.Event) {
		if err := conn.WriteJSON(ev); err != nil {
			s.log.Debug("websocket write failed", zap.Error(err))
		}
	}

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch kind {
		case websocket.BinaryMessage:
			_, err = s.app.Live.ProcessUtterance(ctx, id, data, "utterance.wav", emit)
		case websocket.TextMessage:
			_, err = s.app.Live.TranslateText(ctx, id, string(data), emit)
		default:
			continue
		}
		if err != nil {
			_ = conn.WriteJSON(liveError{Error: err.Error(), Code: statusFor(err)})
		}
	}
}
