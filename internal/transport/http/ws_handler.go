package http

import (
	"encoding/json"
	"log"
	"net/http"

	"aptitude-ace/internal/app"
	"aptitude-ace/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler runs one quiz session per websocket connection.
type WSHandler struct {
	service     *app.QuizService
	currentUser func() string
	upgrader    websocket.Upgrader
}

// NewWSHandler builds the handler. currentUser supplies the signed-in user and
// is the only source of a session's identity; it may be nil.
func NewWSHandler(service *app.QuizService, currentUser func() string) *WSHandler {
	return &WSHandler{
		service:     service,
		currentUser: currentUser,
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
	Option string `json:"option"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and opens a session for ?mode=&topicId=.
// A userId parameter naming someone other than the signed-in user is rejected;
// without a signed-in user the session is unauthenticated.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode, err := domain.ParseMode(query.Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	topicID := query.Get("topicId")
	if mode == domain.ModePractice && topicID == "" {
		http.Error(w, "missing topicId", http.StatusBadRequest)
		return
	}
	userID := ""
	if h.currentUser != nil {
		userID = h.currentUser()
	}
	if claimed := query.Get("userId"); claimed != "" && userID != "" && claimed != userID {
		http.Error(w, "userId does not match the signed-in user", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session, err := h.service.StartSession(r.Context(), app.StartRequest{Mode: mode, TopicID: topicID, UserID: userID})
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.service.EndSession(session.ID())

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	push := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

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
		submissionSent := false
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if !push(outboundMessage[any]{Type: "state", Payload: snap}) {
					return
				}
				if snap.Submission != nil && !submissionSent {
					submissionSent = true
					if !push(outboundMessage[any]{Type: "submission", Payload: snap.Submission}) {
						return
					}
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
		if !h.dispatch(session, inbound, push) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// dispatch applies one client command. It returns false when the writer is gone.
func (h *WSHandler) dispatch(session *app.Session, inbound inboundMessage, push func(outboundMessage[any]) bool) bool {
	fail := func(msg string) bool {
		return push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}})
	}

	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fail("invalid answer payload")
		}
		outcome, err := session.Answer(payload.Option)
		if err != nil {
			return fail(err.Error())
		}
		return push(outboundMessage[any]{Type: "answerResult", Payload: outcome})
	case "advance":
		if _, err := session.Advance(); err != nil {
			return fail(err.Error())
		}
	case "finish":
		if !session.Finish() {
			return fail(domain.ErrSessionCompleted.Error())
		}
	case "state":
		return push(outboundMessage[any]{Type: "state", Payload: session.Snapshot()})
	default:
		return fail("unsupported message type")
	}
	return true
}
