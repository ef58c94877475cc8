package app

import (
	"context"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// TallyQuestion counts the options chosen for q. Timeouts and out-of-range
// indexes are not responses.
func TallyQuestion(q domain.Question, index int, participants []domain.Participant) domain.QuestionResult {
	result := domain.QuestionResult{
		QuestionID:         q.ID,
		QuestionIndex:      index,
		OptionCounts:       make([]int, len(q.Options)),
		TotalParticipants:  len(participants),
		CorrectOptionIndex: q.CorrectOptionIndex,
	}
	for _, p := range participants {
		a, ok := p.Answers[q.ID]
		if !ok || a.OptionIndex < 0 || a.OptionIndex >= len(q.Options) {
			continue
		}
		result.OptionCounts[a.OptionIndex]++
		result.TotalResponses++
	}
	return result
}

// RankParticipants orders participants by score, highest first. Ties keep the
// input order, which callers supply as join order. Correct answers are
// recounted from the questions rather than trusted from the stored flag.
func RankParticipants(questions []domain.Question, participants []domain.Participant) []domain.LeaderboardEntry {
	correctByID := make(map[string]int, len(questions))
	for _, q := range questions {
		correctByID[q.ID] = q.CorrectOptionIndex
	}

	entries := make([]domain.LeaderboardEntry, len(participants))
	for i, p := range participants {
		correct := 0
		for qid, a := range p.Answers {
			if idx, ok := correctByID[qid]; ok && a.OptionIndex == idx {
				correct++
			}
		}
		entries[i] = domain.LeaderboardEntry{
			ParticipantID:  p.ID,
			Name:           p.Name,
			TotalScore:     p.TotalScore,
			CorrectAnswers: correct,
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalScore > entries[j].TotalScore
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Aggregator derives results from a point-in-time read of a session.
type Aggregator struct {
	repo  *Repository
	grace time.Duration
	now   func() time.Time
}

func NewAggregator(repo *Repository, opts Options) *Aggregator {
	opts = opts.withDefaults()
	return &Aggregator{repo: repo, grace: opts.AnswerGrace, now: opts.Now}
}

// Results tallies question index. Everyone but the host only sees it once
// the question can no longer be answered, since the tally carries the
// correct option.
func (a *Aggregator) Results(ctx context.Context, sessionID, actor string, index int) (domain.QuestionResult, error) {
	s, err := a.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.QuestionResult{}, err
	}
	questions, err := a.repo.ListQuestions(ctx, sessionID)
	if err != nil {
		return domain.QuestionResult{}, err
	}
	if index < 0 || index >= len(questions) {
		return domain.QuestionResult{}, domain.ErrQuestionNotFound
	}
	if actor != s.OwnerID && !questionClosed(s, questions[index], index, a.now(), a.grace) {
		return domain.QuestionResult{}, domain.ErrResultsHidden
	}
	participants, err := a.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.QuestionResult{}, err
	}
	return TallyQuestion(questions[index], index, participants), nil
}

func (a *Aggregator) Leaderboard(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	if _, err := a.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	questions, err := a.repo.ListQuestions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := a.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return RankParticipants(questions, participants), nil
}

// questionClosed reports whether answers to question index are no longer
// accepted: the quiz ended, moved past it, or its deadline and grace passed.
func questionClosed(s domain.Session, q domain.Question, index int, now time.Time, grace time.Duration) bool {
	switch s.Status {
	case domain.StatusCompleted:
		return true
	case domain.StatusActive:
		if index < s.CurrentQuestionIndex {
			return true
		}
		if index > s.CurrentQuestionIndex {
			return false
		}
		deadline := s.QuestionStartTime + q.TimeLimitMillis() + grace.Milliseconds()
		return now.UnixMilli() > deadline
	default:
		return false
	}
}
