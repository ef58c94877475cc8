package http

import "live-quiz-service/internal/domain"

type CreateSessionRequest struct {
	Title       string `json:"title" required:"true"`
	Description string `json:"description,omitempty"`
}

type ImportQuestionsRequest struct {
	SetID string `json:"setId" required:"true"`
}

type StartQuestionRequest struct {
	Index *int `json:"index" required:"true"`
}

type AdvanceRequest struct {
	FromIndex *int `json:"fromIndex" required:"true"`
}

type RestartRequest struct {
	Start bool `json:"start,omitempty"`
}

type JoinRequest struct {
	Code string `json:"code" required:"true"`
	Name string `json:"name" required:"true"`
}

type JoinSessionRequest struct {
	Name string `json:"name" required:"true"`
}

type SkipRequest struct {
	ParticipantID string `json:"participantId" required:"true"`
	QuestionIndex *int   `json:"questionIndex" required:"true"`
}

// ScoreRequest uses pointers so a missing field can be told apart from a zero.
type ScoreRequest struct {
	SessionID           *string `json:"sessionId" required:"true"`
	ParticipantID       *string `json:"participantId" required:"true"`
	QuestionIndex       *int    `json:"questionIndex" required:"true"`
	SelectedOptionIndex *int    `json:"selectedOptionIndex" required:"true"`
}

type SessionResponse struct {
	Session domain.Session `json:"session"`
}

type QuestionsResponse struct {
	Questions []domain.Question `json:"questions"`
}

type ParticipantsResponse struct {
	Participants []domain.Participant `json:"participants"`
}

type LeaderboardResponse struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}
