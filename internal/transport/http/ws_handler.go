package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quizme/internal/app"
	"quizme/internal/domain"
)

const (
	maxInboundMessage = 8 << 10
	writeWait         = 10 * time.Second
)

type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(service *app.RoomService, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	SlideID int64           `json:"slideId"`
	Answer  json.RawMessage `json:"answer"`
}

type joinedPayload struct {
	Name  string          `json:"name"`
	Token string          `json:"token"`
	Room  domain.RoomView `json:"room"`
}

type submittedPayload struct {
	SlideID int64           `json:"slideId"`
	Answer  json.RawMessage `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades a player's request and runs the join, follow, answer loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("room")
	name := r.URL.Query().Get("name")
	token := r.URL.Query().Get("token")
	if code == "" || name == "" {
		http.Error(w, "missing room or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	wsConnections.Inc()
	defer wsConnections.Dec()
	conn.SetReadLimit(maxInboundMessage)
	// The server's read timeout still applies to the hijacked conn.
	_ = conn.SetReadDeadline(time.Time{})

	ctx := r.Context()
	player, err := h.service.Join(ctx, code, name, token)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	log := h.log.With("room", code, "player", player.Name)

	updates, cancel, err := h.service.Subscribe(ctx, code)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	room, err := h.service.Room(ctx, code)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches the connection for writes. After a
	// failed write it keeps draining send so producers never block.
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write failed", "error", err)
				failed = true
				_ = conn.Close()
			}
		}
	}()

	push := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-closeSignals:
			return false
		}
	}
	roomChanged := func(view domain.RoomView) bool {
		if !push(outboundMessage[any]{Type: "room", Payload: view}) {
			return false
		}
		if view.Phase != domain.PhaseResults {
			return true
		}
		results, err := h.service.Results(ctx, code)
		if err != nil {
			log.Error("load results failed", "error", err)
			return true
		}
		return push(outboundMessage[any]{Type: "results", Payload: results})
	}

	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{Name: player.Name, Token: player.Token, Room: room.View()}}
	if room.Phase() == domain.PhaseResults {
		roomChanged(room.View())
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-updates:
				if !ok || !roomChanged(view) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				wsAnswers.WithLabelValues("invalid").Inc()
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			sub, err := h.service.Submit(ctx, code, player.Name, player.Token, payload.SlideID, payload.Answer)
			if err != nil {
				wsAnswers.WithLabelValues("rejected").Inc()
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			wsAnswers.WithLabelValues("accepted").Inc()
			send <- outboundMessage[any]{Type: "submitted", Payload: submittedPayload{SlideID: sub.SlideID, Answer: sub.Payload}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
