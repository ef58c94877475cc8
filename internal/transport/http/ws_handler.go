package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
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
	ParticipantID string `json:"participantId"`
	QuestionIndex *int   `json:"questionIndex"`
	OptionIndex   *int   `json:"optionIndex"`
}

type skipPayload struct {
	ParticipantID string `json:"participantId"`
	QuestionIndex *int   `json:"questionIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func deadlineSoon() time.Time {
	return time.Now().Add(time.Second)
}

func errorMessage(err error) outboundMessage[any] {
	code := domain.CodeOf(err)
	msg := err.Error()
	if code == domain.CodeInternal {
		msg = "internal error"
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg, Code: string(code)}}
}

func badMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg, Code: string(domain.CodeInvalidArgument)}}
}

// ServeWS upgrades the request and streams session views until the client
// leaves or the session is purged. Answers and skip votes sent over the
// socket go through the same scorer as the HTTP API.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeBadRequest(w, "missing sessionId")
		return
	}
	userID := identityFrom(r).UserID

	views, cancel, err := h.service.Watch(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	viewsDone := make(chan struct{})

	// Single writer: gorilla connections do not allow concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "err", err)
				return
			}
		}
	}()

	go func() {
		defer close(viewsDone)
		for {
			select {
			case view, ok := <-views:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"), deadlineSoon())
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: view}:
				case <-closeSignals:
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
		reply := h.dispatch(r, sessionID, userID, inbound)
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-viewsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, sessionID, userID string, inbound inboundMessage) outboundMessage[any] {
	ctx := r.Context()
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionIndex == nil || payload.OptionIndex == nil {
			return badMessage("invalid answer payload")
		}
		outcome, err := h.service.Submit(ctx, app.Submission{
			SessionID:           sessionID,
			ParticipantID:       payload.ParticipantID,
			UserID:              userID,
			QuestionIndex:       *payload.QuestionIndex,
			SelectedOptionIndex: *payload.OptionIndex,
		})
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "answerResult", Payload: outcome}
	case "skip":
		var payload skipPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionIndex == nil {
			return badMessage("invalid skip payload")
		}
		tally, err := h.service.VoteSkip(ctx, sessionID, payload.ParticipantID, userID, *payload.QuestionIndex)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "skipTally", Payload: tally}
	case "leaderboard":
		entries, err := h.service.Leaderboard(ctx, sessionID)
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "leaderboard", Payload: entries}
	default:
		return badMessage("unsupported message type")
	}
}
