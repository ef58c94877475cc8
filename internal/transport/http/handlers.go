package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func handleCreateSession(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		s, err := svc.CreateSession(r.Context(), identityFrom(r).UserID, req.Title, req.Description)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, SessionResponse{Session: s})
	}
}

func handleGetSession(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.View(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleDeleteSession(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Purge(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID); err != nil {
			writeDomainError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListQuestions(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		s, err := svc.GetSession(r.Context(), sessionID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		// Correct answers are only for the host.
		if s.OwnerID != identityFrom(r).UserID {
			writeDomainError(w, logger, domain.ErrNotHost)
			return
		}
		questions, err := svc.ListQuestions(r.Context(), sessionID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, QuestionsResponse{Questions: questions})
	}
}

func handleAddQuestion(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft domain.QuestionDraft
		if err := readJSON(r, &draft); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		q, err := svc.AddQuestion(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID, draft)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

func handleImportQuestions(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ImportQuestionsRequest
		if err := readJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		added, err := svc.ImportQuestionSet(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID, req.SetID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, QuestionsResponse{Questions: added})
	}
}

func handleRemoveQuestion(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.RemoveQuestion(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID, chi.URLParam(r, "questionID"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleOpenLobby(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.OpenLobby(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID)
		writeSession(w, logger, s, err)
	}
}

func handleStartQuestion(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartQuestionRequest
		if err := readJSON(r, &req); err != nil || req.Index == nil {
			writeBadRequest(w, "index is required")
			return
		}
		s, err := svc.StartQuestion(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID, *req.Index)
		writeSession(w, logger, s, err)
	}
}

func handleAdvance(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdvanceRequest
		if err := readJSON(r, &req); err != nil || req.FromIndex == nil {
			writeBadRequest(w, "fromIndex is required")
			return
		}
		s, err := svc.Advance(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID, *req.FromIndex)
		writeSession(w, logger, s, err)
	}
}

func handleEnd(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.End(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID)
		writeSession(w, logger, s, err)
	}
}

func handleRestart(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RestartRequest
		if r.ContentLength > 0 {
			if err := readJSON(r, &req); err != nil {
				writeBadRequest(w, "invalid request body")
				return
			}
		}
		s, err := svc.Restart(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID, req.Start)
		writeSession(w, logger, s, err)
	}
}

func writeSession(w http.ResponseWriter, logger *slog.Logger, s domain.Session, err error) {
	if err != nil {
		writeDomainError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Session: s})
}

func handleJoin(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRequest
		if err := readJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		p, err := svc.Join(r.Context(), req.Code, identityFrom(r).UserID, req.Name)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleJoinSession(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		p, err := svc.JoinSession(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID, req.Name)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleListParticipants(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participants, err := svc.Participants(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ParticipantsResponse{Participants: participants})
	}
}

func handleSkip(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SkipRequest
		if err := readJSON(r, &req); err != nil || req.QuestionIndex == nil || req.ParticipantID == "" {
			writeBadRequest(w, "participantId and questionIndex are required")
			return
		}
		tally, err := svc.VoteSkip(r.Context(), chi.URLParam(r, "id"), req.ParticipantID, identityFrom(r).UserID, *req.QuestionIndex)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, tally)
	}
}

// handleScore is the privileged scoring callable. Clients never send
// correctness or points; both come from the stored question.
func handleScore(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScoreRequest
		if err := readJSON(r, &req); err != nil {
			writeBadRequest(w, "sessionId, participantId, questionIndex and selectedOptionIndex must be well typed")
			return
		}
		if req.SessionID == nil || req.ParticipantID == nil || req.QuestionIndex == nil || req.SelectedOptionIndex == nil {
			writeBadRequest(w, "sessionId, participantId, questionIndex and selectedOptionIndex are required")
			return
		}
		outcome, err := svc.Submit(r.Context(), app.Submission{
			SessionID:           *req.SessionID,
			ParticipantID:       *req.ParticipantID,
			UserID:              identityFrom(r).UserID,
			QuestionIndex:       *req.QuestionIndex,
			SelectedOptionIndex: *req.SelectedOptionIndex,
		})
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

func handleResults(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			writeBadRequest(w, "index must be a number")
			return
		}
		result, err := svc.Results(r.Context(), chi.URLParam(r, "id"), identityFrom(r).UserID, index)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleLeaderboard(svc *app.QuizService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.Leaderboard(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, LeaderboardResponse{Entries: entries})
	}
}
