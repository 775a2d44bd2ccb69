package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/beepwatch/internal/ncco"
	"github.com/MrWong99/beepwatch/internal/observe"
	"github.com/MrWong99/beepwatch/internal/registry"
)

// callEvent is the webhook payload posted by the telephony platform on call
// state changes. Only the fields this service acts on are decoded.
type callEvent struct {
	LegID          string `json:"uuid"`
	ConversationID string `json:"conversation_uuid"`
	From           string `json:"from"`
	To             string `json:"to"`
	Status         string `json:"status"`
}

// handleAnswer serves the answer webhook: prompt the caller for a number to
// dial and post the collected digits to /ivr.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, []ncco.Action{
		ncco.NewTalk("Please enter a phone number to dial"),
		ncco.NewInput(s.httpBaseURL(r)+"/ivr", dtmfTimeoutSec, dtmfMaxDigits),
	})
}

// handleIVR receives the collected DTMF digits and bridges the call: one
// connect to the dialled phone number, one connect streaming the call audio
// to the /socket endpoint tagged with the conversation.
func (s *Server) handleIVR(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DTMF           string `json:"dtmf"`
		ConversationID string `json:"conversation_uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if in.DTMF == "" || in.ConversationID == "" {
		http.Error(w, "dtmf and conversation_uuid are required", http.StatusBadRequest)
		return
	}

	observe.Logger(r.Context()).Info("bridging call",
		"conversation_id", in.ConversationID,
		"digits", len(in.DTMF))
	s.writeJSON(w, []ncco.Action{
		ncco.NewTalk("Thanks. Connecting you now"),
		ncco.ConnectPhone(s.tele.LocalNumber, in.DTMF),
		ncco.ConnectWebsocket(s.tele.LocalNumber, s.wsBaseURL(r)+"/socket", streamContentType,
			map[string]string{"conversation_uuid": in.ConversationID}),
	})
}

// handleEvent records answered legs and tears the conversation down when the
// inbound leg completes. Unknown statuses are acknowledged and ignored.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev callEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	log := observe.Logger(r.Context())
	switch {
	case ev.Status == "answered":
		s.registry.RecordAnswered(registry.LegEvent{
			LegID:          ev.LegID,
			ConversationID: ev.ConversationID,
			From:           ev.From,
			To:             ev.To,
			Status:         ev.Status,
			ReceivedAt:     time.Now(),
		})
		log.Info("leg answered",
			"conversation_id", ev.ConversationID,
			"leg_id", ev.LegID)
	case ev.Status == "completed" && ev.To == s.tele.LocalNumber:
		log.Info("inbound leg completed, hanging up conversation",
			"conversation_id", ev.ConversationID)
		s.registry.HangupAll(r.Context(), ev.ConversationID)
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// handleSocket accepts the bridged audio stream and pumps it through a
// session until the peer disconnects.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The telephony backend connects from its own infrastructure, not a
		// browser origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Warn("stream accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	sess := s.sessions.NewSession()
	defer sess.Close()

	s.metrics.AddActiveStreams(ctx, 1)
	defer s.metrics.AddActiveStreams(context.Background(), -1)
	log.Info("stream connected", "remote", r.RemoteAddr)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				log.Info("stream closed by peer",
					"conversation_id", sess.ConversationID(),
					"status", status)
			} else if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				log.Warn("stream read failed",
					"conversation_id", sess.ConversationID(),
					"err", err)
			}
			return
		}

		switch typ {
		case websocket.MessageText:
			reply, err := sess.HandleControl(ctx, data)
			if err != nil {
				log.Warn("control message rejected", "err", err)
				conn.Close(websocket.StatusPolicyViolation, "invalid control message")
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, reply); err != nil {
				log.Warn("control reply failed", "err", err)
				return
			}
		case websocket.MessageBinary:
			if err := sess.HandleAudio(ctx, data); err != nil {
				log.Warn("audio frame rejected",
					"conversation_id", sess.ConversationID(),
					"err", err)
				return
			}
		}
	}
}
