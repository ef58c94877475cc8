package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type testEnv struct {
	handler http.Handler
	service *app.QuizService
	authn   *auth.Authenticator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authn, err := auth.NewAuthenticator("test-secret-0123456789", "live-quiz", time.Hour)
	require.NoError(t, err)

	bank := memory.NewStaticQuestionBank(map[string]domain.QuestionSet{
		"math": {ID: "math", Title: "Math", Questions: []domain.QuestionDraft{
			{Text: "2 + 2?", Options: []string{"3", "4", "5"}, CorrectOptionIndex: 1},
		}},
	})
	svc := app.NewQuizService(memory.NewDocStore(), bank, app.Options{}, logger)
	handler := NewRouter(Deps{
		Service:   svc,
		Auth:      authn,
		Logger:    logger,
		PublicURL: "https://quiz.example",
	})
	return &testEnv{handler: handler, service: svc, authn: authn}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.authn.Issue(userID, userID)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// readySession creates a session with one "2 + 2?" question, opens the lobby
// and joins one participant owned by player.
func (e *testEnv) readySession(t *testing.T, host, player string) (domain.Session, domain.Participant) {
	t.Helper()
	rec := e.do(t, host, http.MethodPost, "/api/sessions", CreateSessionRequest{Title: "Arithmetic"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	s := decode[SessionResponse](t, rec).Session

	rec = e.do(t, host, http.MethodPost, "/api/sessions/"+s.ID+"/questions/import", ImportQuestionsRequest{SetID: "math"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(t, host, http.MethodPost, "/api/sessions/"+s.ID+"/lobby", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, player, http.MethodPost, "/api/join", JoinRequest{Code: s.Code, Name: "Ann"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[domain.Participant](t, rec)
	return s, p
}
