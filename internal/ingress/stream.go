package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voicetrie/internal/observe"
)

// handleStream serves one WebSocket connection until the client closes it.
// Messages are handled in order; a slow activator delays later utterances of
// the same connection only.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("ingress: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	log := observe.Logger(ctx, s.logger)
	log.Debug("ingress: stream opened", "remote", r.RemoteAddr)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("ingress: stream closed", "remote", r.RemoteAddr)
			default:
				if !errors.Is(err, context.Canceled) {
					log.Warn("ingress: stream read failed", "remote", r.RemoteAddr, "err", err)
				}
			}
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "text messages only")
			return
		}

		u, err := parseMessage(data)
		if err != nil {
			if err := wsjson.Write(ctx, conn, errorBody{Error: err.Error()}); err != nil {
				return
			}
			continue
		}
		resp, _ := s.run(ctx, u)
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			log.Warn("ingress: stream write failed", "remote", r.RemoteAddr, "err", err)
			return
		}
	}
}

// parseMessage accepts a JSON [Utterance] or a plain-text utterance.
func parseMessage(data []byte) (Utterance, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Utterance{}, errors.New("empty message")
	}
	if trimmed[0] != '{' {
		return Utterance{Text: string(trimmed)}, nil
	}
	var u Utterance
	if err := json.Unmarshal(trimmed, &u); err != nil {
		return Utterance{}, errors.New("invalid message: " + err.Error())
	}
	if u.Text == "" {
		return Utterance{}, errors.New("text is required")
	}
	return u, nil
}
