package domain

// Status is the lifecycle state of a quiz session.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusLobby     Status = "lobby"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// NoAnswer is the option index recorded when a participant lets the timer run out.
const NoAnswer = -1

const (
	DefaultTimeLimit = 20
	DefaultPoints    = 100
	MinOptions       = 2
	MaxOptions       = 6
)

// Session is the aggregate root for one run of a quiz.
type Session struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Description          string `json:"description,omitempty"`
	OwnerID              string `json:"ownerId"`
	Code                 string `json:"code"`
	Status               Status `json:"status"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
	QuestionStartTime    int64  `json:"questionStartTime"` // epoch millis
	Version              int64  `json:"version"`
	CreatedAt            int64  `json:"createdAt"`
	UpdatedAt            int64  `json:"updatedAt"`
}

// Question models a multiple choice question with exactly one correct option.
type Question struct {
	ID                 string   `json:"id"`
	SessionID          string   `json:"sessionId"`
	Order              int      `json:"order"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	TimeLimit          int      `json:"timeLimit"` // seconds
	Points             int      `json:"points"`
}

// TimeLimitMillis returns the answer window length.
func (q Question) TimeLimitMillis() int64 {
	return int64(q.TimeLimit) * 1000
}

// PublicQuestion is what participants see while a question is open.
type PublicQuestion struct {
	ID        string   `json:"id"`
	Index     int      `json:"index"`
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
	Points    int      `json:"points"`
}

// Public strips the correct option from q.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:        q.ID,
		Index:     q.Order,
		Text:      q.Text,
		Options:   append([]string(nil), q.Options...),
		TimeLimit: q.TimeLimit,
		Points:    q.Points,
	}
}

// QuestionDraft is the host-supplied content of a question before it is stored.
type QuestionDraft struct {
	Text               string   `json:"text" yaml:"text"`
	Options            []string `json:"options" yaml:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex" yaml:"correct_option_index"`
	TimeLimit          int      `json:"timeLimit,omitempty" yaml:"time_limit,omitempty"`
	Points             int      `json:"points,omitempty" yaml:"points,omitempty"`
}

// QuestionSet is a reusable batch of drafts kept in the question bank.
type QuestionSet struct {
	ID        string          `json:"id" yaml:"id"`
	Title     string          `json:"title" yaml:"title"`
	Questions []QuestionDraft `json:"questions" yaml:"questions"`
}

// Answer is a participant's recorded answer to one question.
type Answer struct {
	OptionIndex  int   `json:"optionIndex"`
	IsCorrect    bool  `json:"isCorrect"`
	PointsEarned int   `json:"pointsEarned"`
	ElapsedMs    int64 `json:"elapsedMs"`
	AnsweredAt   int64 `json:"answeredAt"`
}

// Participant represents a player in a session and their accumulated score.
type Participant struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"sessionId"`
	UserID        string            `json:"userId"`
	Name          string            `json:"name"`
	JoinedAt      int64             `json:"joinedAt"`
	TotalScore    int               `json:"totalScore"`
	CurrentStreak int               `json:"currentStreak"`
	Answers       map[string]Answer `json:"answers"` // keyed by question ID
	SkipVote      string            `json:"skipVote,omitempty"`
}

// HasAnswered reports whether an answer is recorded for questionID.
func (p Participant) HasAnswered(questionID string) bool {
	_, ok := p.Answers[questionID]
	return ok
}

// QuestionResult is the per-option tally for one question.
type QuestionResult struct {
	QuestionID         string `json:"questionId"`
	QuestionIndex      int    `json:"questionIndex"`
	OptionCounts       []int  `json:"optionCounts"`
	TotalResponses     int    `json:"totalResponses"`
	TotalParticipants  int    `json:"totalParticipants"`
	CorrectOptionIndex int    `json:"correctOptionIndex"`
}

// LeaderboardEntry is one ranked row of the scoreboard.
type LeaderboardEntry struct {
	ParticipantID  string `json:"participantId"`
	Name           string `json:"name"`
	TotalScore     int    `json:"totalScore"`
	CorrectAnswers int    `json:"correctAnswers"`
	Rank           int    `json:"rank"`
}

// AnswerOutcome is returned by the scorer for a submission.
type AnswerOutcome struct {
	QuestionID   string `json:"questionId"`
	IsCorrect    bool   `json:"isCorrect"`
	PointsEarned int    `json:"pointsEarned"`
	TotalScore   int    `json:"totalScore"`
	Replayed     bool   `json:"replayed"`
}

// SkipTally reports progress of a skip vote on the current question.
type SkipTally struct {
	QuestionIndex int  `json:"questionIndex"`
	Votes         int  `json:"votes"`
	Needed        int  `json:"needed"`
	Advanced      bool `json:"advanced"`
}

// SessionView is the snapshot every observer renders from.
type SessionView struct {
	Session          Session         `json:"session"`
	QuestionCount    int             `json:"questionCount"`
	CurrentQuestion  *PublicQuestion `json:"currentQuestion,omitempty"`
	RemainingMs      int64           `json:"remainingMs"`
	ParticipantCount int             `json:"participantCount"`
	AnsweredCount    int             `json:"answeredCount"`
}
