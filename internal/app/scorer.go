package app

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"live-quiz-service/internal/domain"
)

// Submission is one participant's answer to the current question.
// UserID is the authenticated caller and must own the participant.
type Submission struct {
	SessionID           string
	ParticipantID       string
	UserID              string
	QuestionIndex       int
	SelectedOptionIndex int
}

// Scorer validates answers against the stored question and credits each
// (participant, question) pair at most once.
type Scorer struct {
	repo      *Repository
	lifecycle *Lifecycle
	opts      Options
	logger    *slog.Logger
}

func NewScorer(repo *Repository, lifecycle *Lifecycle, opts Options, logger *slog.Logger) *Scorer {
	return &Scorer{repo: repo, lifecycle: lifecycle, opts: opts.withDefaults(), logger: logger}
}

// SpeedWeightedPoints scales points by how quickly the answer arrived, never
// below half of the question's value.
func SpeedWeightedPoints(points int, timeLimitMs, elapsedMs int64) int {
	if timeLimitMs <= 0 {
		return points
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	factor := 1 - float64(elapsedMs)/float64(timeLimitMs)
	if factor < 0.5 {
		factor = 0.5
	}
	return int(math.Round(float64(points) * factor))
}

// Submit scores an answer. Submitting again for the same question returns the
// stored outcome with Replayed set, so retries are always safe.
func (sc *Scorer) Submit(ctx context.Context, sub Submission) (domain.AnswerOutcome, error) {
	if sub.SessionID == "" || sub.ParticipantID == "" {
		return domain.AnswerOutcome{}, domain.InvalidArgument("session and participant are required")
	}
	if sub.UserID == "" {
		return domain.AnswerOutcome{}, domain.InvalidArgument("caller identity is required")
	}
	if sub.QuestionIndex < 0 {
		return domain.AnswerOutcome{}, domain.InvalidArgument("question index must not be negative")
	}

	session, err := sc.repo.GetSession(ctx, sub.SessionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	questions, err := sc.repo.ListQuestions(ctx, sub.SessionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if sub.QuestionIndex >= len(questions) {
		return domain.AnswerOutcome{}, domain.ErrQuestionNotFound
	}
	q := questions[sub.QuestionIndex]

	participant, err := sc.repo.GetParticipant(ctx, sub.SessionID, sub.ParticipantID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if participant.UserID != sub.UserID {
		return domain.AnswerOutcome{}, domain.ErrNotParticipantOwner
	}
	if prev, ok := participant.Answers[q.ID]; ok {
		return replay(q.ID, prev, participant.TotalScore), nil
	}

	if err := requireCurrent(session, sub.QuestionIndex); err != nil {
		return domain.AnswerOutcome{}, err
	}
	if sub.SelectedOptionIndex != domain.NoAnswer && (sub.SelectedOptionIndex < 0 || sub.SelectedOptionIndex >= len(q.Options)) {
		return domain.AnswerOutcome{}, domain.InvalidArgument("option %d out of range", sub.SelectedOptionIndex)
	}

	now := sc.opts.Now().UnixMilli()
	elapsed := now - session.QuestionStartTime
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > q.TimeLimitMillis()+sc.opts.AnswerGrace.Milliseconds() {
		return domain.AnswerOutcome{}, domain.ErrAnswerWindowClosed
	}

	correct := sub.SelectedOptionIndex == q.CorrectOptionIndex
	points := 0
	if correct {
		points = SpeedWeightedPoints(q.Points, q.TimeLimitMillis(), elapsed)
	}

	var outcome domain.AnswerOutcome
	_, err = sc.repo.UpdateParticipant(ctx, sub.SessionID, sub.ParticipantID, func(p *domain.Participant) error {
		if prev, ok := p.Answers[q.ID]; ok {
			outcome = replay(q.ID, prev, p.TotalScore)
			return domain.ErrAlreadyAnswered
		}
		p.Answers[q.ID] = domain.Answer{
			OptionIndex:  sub.SelectedOptionIndex,
			IsCorrect:    correct,
			PointsEarned: points,
			ElapsedMs:    elapsed,
			AnsweredAt:   now,
		}
		p.TotalScore += points
		if correct {
			p.CurrentStreak++
		} else {
			p.CurrentStreak = 0
		}
		outcome = domain.AnswerOutcome{
			QuestionID:   q.ID,
			IsCorrect:    correct,
			PointsEarned: points,
			TotalScore:   p.TotalScore,
		}
		return nil
	})
	if errors.Is(err, domain.ErrAlreadyAnswered) {
		return outcome, nil
	}
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	sc.logger.Debug("answer recorded",
		"session_id", sub.SessionID,
		"participant_id", sub.ParticipantID,
		"question_index", sub.QuestionIndex,
		"correct", correct,
		"points", points,
	)
	if sc.opts.EarlyAdvance {
		sc.advanceIfAllAnswered(ctx, sub.SessionID, sub.QuestionIndex, q.ID)
	}
	return outcome, nil
}

func replay(questionID string, prev domain.Answer, total int) domain.AnswerOutcome {
	return domain.AnswerOutcome{
		QuestionID:   questionID,
		IsCorrect:    prev.IsCorrect,
		PointsEarned: prev.PointsEarned,
		TotalScore:   total,
		Replayed:     true,
	}
}

func (sc *Scorer) advanceIfAllAnswered(ctx context.Context, sessionID string, index int, questionID string) {
	participants, err := sc.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		sc.logger.Warn("early advance check failed", "session_id", sessionID, "err", err)
		return
	}
	answered := map[string]bool{}
	for _, p := range participants {
		answered[p.UserID] = answered[p.UserID] || p.HasAnswered(questionID)
	}
	for _, ok := range answered {
		if !ok {
			return
		}
	}
	if _, err := sc.lifecycle.advanceFrom(ctx, sessionID, index, "all answered"); err != nil && !errors.Is(err, domain.ErrInvalidState) {
		sc.logger.Warn("early advance failed", "session_id", sessionID, "err", err)
	}
}

// VoteSkip records the participant's wish to skip the current question and
// advances once the configured share of participants agrees.
func (sc *Scorer) VoteSkip(ctx context.Context, sessionID, participantID, userID string, questionIndex int) (domain.SkipTally, error) {
	session, err := sc.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SkipTally{}, err
	}
	if err := requireCurrent(session, questionIndex); err != nil {
		return domain.SkipTally{}, err
	}
	questions, err := sc.repo.ListQuestions(ctx, sessionID)
	if err != nil {
		return domain.SkipTally{}, err
	}
	if questionIndex >= len(questions) {
		return domain.SkipTally{}, domain.ErrQuestionNotFound
	}
	questionID := questions[questionIndex].ID

	_, err = sc.repo.UpdateParticipant(ctx, sessionID, participantID, func(p *domain.Participant) error {
		if p.UserID != userID {
			return domain.ErrNotParticipantOwner
		}
		p.SkipVote = questionID
		return nil
	})
	if err != nil {
		return domain.SkipTally{}, err
	}

	participants, err := sc.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.SkipTally{}, err
	}
	// Votes and the electorate are counted per user, so a user holding
	// several participants still has one vote.
	users := map[string]bool{}
	for _, p := range participants {
		users[p.UserID] = users[p.UserID] || p.SkipVote == questionID
	}
	tally := domain.SkipTally{QuestionIndex: questionIndex, Needed: votesNeeded(sc.opts.SkipVoteRatio, len(users))}
	for _, voted := range users {
		if voted {
			tally.Votes++
		}
	}
	if tally.Votes >= tally.Needed {
		_, err := sc.lifecycle.advanceFrom(ctx, sessionID, questionIndex, "skip vote")
		switch {
		case err == nil:
			tally.Advanced = true
		case errors.Is(err, domain.ErrInvalidState):
		default:
			return tally, err
		}
	}
	return tally, nil
}

func votesNeeded(ratio float64, participants int) int {
	needed := int(math.Ceil(ratio*float64(participants) - 1e-9))
	if needed < 1 {
		needed = 1
	}
	return needed
}
