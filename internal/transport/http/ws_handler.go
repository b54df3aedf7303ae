package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"course-leaderboard-service/internal/app"
)

// WSHandler streams course ranking snapshots to websocket clients. Every
// re-rank of the course fans out the full ordering; slow clients only ever
// miss intermediate snapshots, never the latest.
type WSHandler struct {
	service  *app.LeaderboardService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.LeaderboardService) *WSHandler {
	return &WSHandler{
		service: service,
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and subscribes it to a course's ranking feed.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	courseID := r.URL.Query().Get("courseId")
	scope := scopeFrom(r)
	if courseID == "" || scope.IsZero() {
		http.Error(w, "missing courseId or orgId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	initial, err := h.service.GetCourseLeaderboard(r.Context(), scope, courseID, 1, 100)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancel := h.service.SubscribeLeaderboard(scope, courseID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "leaderboard", Payload: initial}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "refresh":
			if err := h.service.RefreshLeaderboard(r.Context(), scope, courseID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "rank":
			entry, err := h.service.GetUserRank(r.Context(), scope, courseID, rankUserID(inbound.Payload))
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			var payload any
			if entry != nil {
				payload = entry
			}
			send <- outboundMessage[any]{Type: "rank", Payload: payload}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func rankUserID(raw json.RawMessage) string {
	var payload struct {
		UserID string `json:"userId"`
	}
	_ = json.Unmarshal(raw, &payload)
	return payload.UserID
}
