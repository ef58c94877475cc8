package http

import (
	"encoding/json"
	"net/http"
	"strings"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"live-quiz-service/internal/domain"
)

type operation struct {
	method, path, summary, description string
	req                                any
	resp                               any
	status                             int
	errors                             []int
}

type sessionParams struct {
	ID string `path:"id"`
}

type questionParams struct {
	ID         string `path:"id"`
	QuestionID string `path:"questionID"`
}

type resultsParams struct {
	ID    string `path:"id"`
	Index int    `path:"index"`
}

type wsParams struct {
	SessionID string `query:"sessionId" required:"true"`
	Token     string `query:"token"`
}

func pathParams(path string) any {
	switch {
	case strings.Contains(path, "{questionID}"):
		return questionParams{}
	case strings.Contains(path, "{index}"):
		return resultsParams{}
	case strings.Contains(path, "{id}"):
		return sessionParams{}
	default:
		return nil
	}
}

var apiOperations = []operation{
	{http.MethodGet, "/healthz", "Health check", "Returns the health status of backend dependencies.", nil, HealthResponse{}, http.StatusOK, []int{http.StatusServiceUnavailable}},
	{http.MethodPost, "/api/sessions", "Create session", "Creates a draft session owned by the caller with a fresh join code.", CreateSessionRequest{}, SessionResponse{}, http.StatusCreated, []int{http.StatusBadRequest, http.StatusUnauthorized}},
	{http.MethodGet, "/api/sessions/{id}", "Session view", "Returns the session with its public current question and remaining time.", nil, domain.SessionView{}, http.StatusOK, []int{http.StatusNotFound}},
	{http.MethodDelete, "/api/sessions/{id}", "Purge session", "Deletes the session, its questions and participants. Host only.", nil, nil, http.StatusNoContent, []int{http.StatusForbidden, http.StatusNotFound}},
	{http.MethodGet, "/api/sessions/{id}/questions", "List questions", "Returns questions with correct answers. Host only.", nil, QuestionsResponse{}, http.StatusOK, []int{http.StatusForbidden, http.StatusNotFound}},
	{http.MethodPost, "/api/sessions/{id}/questions", "Add question", "Appends a question. Rejected while the session is active.", domain.QuestionDraft{}, domain.Question{}, http.StatusCreated, []int{http.StatusBadRequest, http.StatusConflict}},
	{http.MethodPost, "/api/sessions/{id}/questions/import", "Import question set", "Appends every question of a question bank set.", ImportQuestionsRequest{}, QuestionsResponse{}, http.StatusCreated, []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict}},
	{http.MethodDelete, "/api/sessions/{id}/questions/{questionID}", "Remove question", "Removes a question and renumbers the rest.", nil, nil, http.StatusNoContent, []int{http.StatusNotFound, http.StatusConflict}},
	{http.MethodPost, "/api/sessions/{id}/lobby", "Open lobby", "Moves a draft session into the lobby.", nil, SessionResponse{}, http.StatusOK, []int{http.StatusConflict}},
	{http.MethodPost, "/api/sessions/{id}/start", "Start question", "Opens question index: 0 from the lobby, or the next one while active.", StartQuestionRequest{}, SessionResponse{}, http.StatusOK, []int{http.StatusBadRequest, http.StatusConflict}},
	{http.MethodPost, "/api/sessions/{id}/advance", "Advance", "Moves past fromIndex. Fails if another actor already advanced.", AdvanceRequest{}, SessionResponse{}, http.StatusOK, []int{http.StatusConflict}},
	{http.MethodPost, "/api/sessions/{id}/end", "End session", "Completes the session immediately.", nil, SessionResponse{}, http.StatusOK, []int{http.StatusConflict}},
	{http.MethodPost, "/api/sessions/{id}/restart", "Restart session", "Reopens a completed session with scores cleared.", RestartRequest{}, SessionResponse{}, http.StatusOK, []int{http.StatusConflict}},
	{http.MethodPost, "/api/join", "Join session", "Joins the lobby session identified by code.", JoinRequest{}, domain.Participant{}, http.StatusCreated, []int{http.StatusNotFound, http.StatusConflict}},
	{http.MethodPost, "/api/sessions/{id}/participants", "Join session by id", "Joins the lobby session directly, e.g. from a shared link.", JoinSessionRequest{}, domain.Participant{}, http.StatusCreated, []int{http.StatusNotFound, http.StatusConflict}},
	{http.MethodGet, "/api/sessions/{id}/participants", "List participants", "Returns participants in join order.", nil, ParticipantsResponse{}, http.StatusOK, []int{http.StatusNotFound}},
	{http.MethodPost, "/api/sessions/{id}/skip", "Vote to skip", "Records a skip vote for the current question.", SkipRequest{}, domain.SkipTally{}, http.StatusOK, []int{http.StatusConflict, http.StatusForbidden}},
	{http.MethodPost, "/api/score", "Score answer", "Validates and scores an answer exactly once. Retries replay the stored outcome.", ScoreRequest{}, domain.AnswerOutcome{}, http.StatusOK, []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict}},
	{http.MethodGet, "/api/sessions/{id}/results/{index}", "Question results", "Per-option tally for one question.", nil, domain.QuestionResult{}, http.StatusOK, []int{http.StatusNotFound}},
	{http.MethodGet, "/api/sessions/{id}/leaderboard", "Leaderboard", "Participants ranked by score.", nil, LeaderboardResponse{}, http.StatusOK, []int{http.StatusNotFound}},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Live Quiz API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Host-driven live quiz sessions with timed, speed-weighted answers.")

	for _, op := range apiOperations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		oc.SetDescription(op.description)
		if params := pathParams(op.path); params != nil {
			oc.AddReqStructure(params)
		}
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(op.status))
		for _, status := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(status))
		}
		_ = r.AddOperation(oc)
	}

	// GET /ws
	ws, _ := r.NewOperationContext(http.MethodGet, "/ws")
	ws.SetSummary("Session stream")
	ws.SetDescription("Upgrades to a WebSocket streaming state views. Accepts answer, skip and leaderboard messages. Pass sessionId and token as query parameters.")
	ws.AddReqStructure(wsParams{})
	ws.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols), openapi.WithContentType("application/json"))
	_ = r.AddOperation(ws)

	// GET /api/sessions/{id}/qr.png
	qr, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/qr.png")
	qr.SetSummary("Join QR code")
	qr.AddReqStructure(sessionParams{})
	qr.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK), openapi.WithContentType("image/png"))
	_ = r.AddOperation(qr)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
