package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"live-quiz-service/internal/domain"
)

const maxNameLength = 40

// Lifecycle drives a session through draft, lobby, active and completed.
// Every transition is a single atomic update of the session document.
type Lifecycle struct {
	repo   *Repository
	bank   QuestionBank
	opts   Options
	logger *slog.Logger
	codes  func() (string, error)
}

func NewLifecycle(repo *Repository, bank QuestionBank, opts Options, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		repo:   repo,
		bank:   bank,
		opts:   opts.withDefaults(),
		logger: logger,
		codes:  generateCode,
	}
}

func (l *Lifecycle) nowMillis() int64 {
	return l.opts.Now().UnixMilli()
}

func (l *Lifecycle) CreateSession(ctx context.Context, ownerID, title, description string) (domain.Session, error) {
	title = strings.TrimSpace(title)
	if ownerID == "" {
		return domain.Session{}, domain.InvalidArgument("owner is required")
	}
	if title == "" {
		return domain.Session{}, domain.InvalidArgument("title is required")
	}

	code, err := l.allocateCode(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	now := l.nowMillis()
	session, err := l.repo.CreateSession(ctx, domain.Session{
		Title:                title,
		Description:          strings.TrimSpace(description),
		OwnerID:              ownerID,
		Code:                 code,
		Status:               domain.StatusDraft,
		CurrentQuestionIndex: -1,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	})
	if err != nil {
		return domain.Session{}, err
	}
	l.logger.Info("session created", "session_id", session.ID, "owner_id", ownerID)
	return session, nil
}

func (l *Lifecycle) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return l.repo.GetSession(ctx, sessionID)
}

func (l *Lifecycle) hostSession(ctx context.Context, sessionID, actor string) (domain.Session, error) {
	s, err := l.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := requireHost(s, actor); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

func requireHost(s domain.Session, actor string) error {
	if actor == "" || s.OwnerID != actor {
		return domain.ErrNotHost
	}
	return nil
}

func (l *Lifecycle) AddQuestion(ctx context.Context, sessionID, actor string, draft domain.QuestionDraft) (domain.Question, error) {
	s, err := l.hostSession(ctx, sessionID, actor)
	if err != nil {
		return domain.Question{}, err
	}
	if s.Status == domain.StatusActive {
		return domain.Question{}, domain.ErrQuestionsLocked
	}
	q, err := buildQuestion(draft)
	if err != nil {
		return domain.Question{}, err
	}
	existing, err := l.repo.ListQuestions(ctx, sessionID)
	if err != nil {
		return domain.Question{}, err
	}
	q.SessionID = sessionID
	q.Order = len(existing)
	return l.repo.AddQuestion(ctx, q)
}

// ImportQuestionSet appends every question of a bank set. The whole set is
// validated before anything is written.
func (l *Lifecycle) ImportQuestionSet(ctx context.Context, sessionID, actor, setID string) ([]domain.Question, error) {
	if l.bank == nil {
		return nil, fmt.Errorf("question bank not configured: %w", domain.ErrInternal)
	}
	if strings.TrimSpace(setID) == "" {
		return nil, domain.InvalidArgument("question set id is required")
	}
	s, err := l.hostSession(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	if s.Status == domain.StatusActive {
		return nil, domain.ErrQuestionsLocked
	}

	set, err := l.bank.LoadQuestionSet(ctx, setID)
	if err != nil {
		return nil, err
	}
	if len(set.Questions) == 0 {
		return nil, domain.InvalidArgument("question set %s is empty", setID)
	}
	built := make([]domain.Question, 0, len(set.Questions))
	for i, draft := range set.Questions {
		q, err := buildQuestion(draft)
		if err != nil {
			return nil, fmt.Errorf("question %d of set %s: %w", i, setID, err)
		}
		built = append(built, q)
	}

	existing, err := l.repo.ListQuestions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	added := make([]domain.Question, 0, len(built))
	for i, q := range built {
		q.SessionID = sessionID
		q.Order = len(existing) + i
		stored, err := l.repo.AddQuestion(ctx, q)
		if err != nil {
			return added, err
		}
		added = append(added, stored)
	}
	l.logger.Info("question set imported", "session_id", sessionID, "set_id", setID, "count", len(added))
	return added, nil
}

// RemoveQuestion deletes a question and closes the gap in ordering.
func (l *Lifecycle) RemoveQuestion(ctx context.Context, sessionID, actor, questionID string) error {
	s, err := l.hostSession(ctx, sessionID, actor)
	if err != nil {
		return err
	}
	if s.Status == domain.StatusActive {
		return domain.ErrQuestionsLocked
	}
	questions, err := l.repo.ListQuestions(ctx, sessionID)
	if err != nil {
		return err
	}
	removed := -1
	for i, q := range questions {
		if q.ID == questionID {
			removed = i
			break
		}
	}
	if removed < 0 {
		return domain.ErrQuestionNotFound
	}
	if err := l.repo.DeleteQuestion(ctx, sessionID, questionID); err != nil {
		return err
	}
	for _, q := range questions[removed+1:] {
		q.Order--
		if err := l.repo.SaveQuestion(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lifecycle) ListQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	if _, err := l.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return l.repo.ListQuestions(ctx, sessionID)
}

func buildQuestion(draft domain.QuestionDraft) (domain.Question, error) {
	text := strings.TrimSpace(draft.Text)
	if text == "" {
		return domain.Question{}, domain.InvalidArgument("question text is required")
	}
	if n := len(draft.Options); n < domain.MinOptions || n > domain.MaxOptions {
		return domain.Question{}, domain.InvalidArgument("question needs %d to %d options, got %d", domain.MinOptions, domain.MaxOptions, n)
	}
	options := make([]string, len(draft.Options))
	for i, opt := range draft.Options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return domain.Question{}, domain.InvalidArgument("option %d is empty", i)
		}
		options[i] = opt
	}
	if draft.CorrectOptionIndex < 0 || draft.CorrectOptionIndex >= len(options) {
		return domain.Question{}, domain.InvalidArgument("correct option index %d out of range", draft.CorrectOptionIndex)
	}
	if draft.TimeLimit < 0 {
		return domain.Question{}, domain.InvalidArgument("time limit must be positive")
	}
	if draft.Points < 0 {
		return domain.Question{}, domain.InvalidArgument("points must be positive")
	}
	q := domain.Question{
		Text:               text,
		Options:            options,
		CorrectOptionIndex: draft.CorrectOptionIndex,
		TimeLimit:          draft.TimeLimit,
		Points:             draft.Points,
	}
	if q.TimeLimit == 0 {
		q.TimeLimit = domain.DefaultTimeLimit
	}
	if q.Points == 0 {
		q.Points = domain.DefaultPoints
	}
	return q, nil
}

// OpenLobby moves a draft session into the lobby so participants can join.
func (l *Lifecycle) OpenLobby(ctx context.Context, sessionID, actor string) (domain.Session, error) {
	s, err := l.repo.UpdateSession(ctx, sessionID, func(s *domain.Session) error {
		if err := requireHost(*s, actor); err != nil {
			return err
		}
		if s.Status != domain.StatusDraft {
			return fmt.Errorf("cannot open lobby while %s: %w", s.Status, domain.ErrInvalidState)
		}
		s.Status = domain.StatusLobby
		s.UpdatedAt = l.nowMillis()
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	l.logger.Info("lobby opened", "session_id", sessionID, "code", s.Code)
	return s, nil
}

// StartQuestion opens question index. From the lobby only index 0 is valid;
// while active only the question after the current one is.
func (l *Lifecycle) StartQuestion(ctx context.Context, sessionID, actor string, index int) (domain.Session, error) {
	return l.moveTo(ctx, sessionID, index, "host", func(s *domain.Session) error {
		if err := requireHost(*s, actor); err != nil {
			return err
		}
		switch s.Status {
		case domain.StatusLobby:
			if index != 0 {
				return domain.InvalidArgument("the first question has index 0")
			}
		case domain.StatusActive:
			if index != s.CurrentQuestionIndex+1 {
				return domain.ErrStaleQuestion
			}
		default:
			return fmt.Errorf("cannot start a question while %s: %w", s.Status, domain.ErrInvalidState)
		}
		return nil
	})
}

// Advance moves past fromIndex. A fromIndex that is no longer current means
// another actor already advanced and yields ErrStaleQuestion.
func (l *Lifecycle) Advance(ctx context.Context, sessionID, actor string, fromIndex int) (domain.Session, error) {
	return l.moveTo(ctx, sessionID, fromIndex+1, "host", func(s *domain.Session) error {
		if err := requireHost(*s, actor); err != nil {
			return err
		}
		return requireCurrent(*s, fromIndex)
	})
}

// advanceFrom is the system-initiated variant used by early advance, skip
// votes and the watchdog.
func (l *Lifecycle) advanceFrom(ctx context.Context, sessionID string, fromIndex int, reason string) (domain.Session, error) {
	return l.moveTo(ctx, sessionID, fromIndex+1, reason, func(s *domain.Session) error {
		return requireCurrent(*s, fromIndex)
	})
}

func requireCurrent(s domain.Session, index int) error {
	if s.Status != domain.StatusActive {
		return domain.ErrNotActive
	}
	if s.CurrentQuestionIndex != index {
		return domain.ErrStaleQuestion
	}
	return nil
}

func (l *Lifecycle) moveTo(ctx context.Context, sessionID string, index int, reason string, guard func(*domain.Session) error) (domain.Session, error) {
	questions, err := l.repo.ListQuestions(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	count := len(questions)
	s, err := l.repo.UpdateSession(ctx, sessionID, func(s *domain.Session) error {
		if err := guard(s); err != nil {
			return err
		}
		now := l.nowMillis()
		if s.Status == domain.StatusLobby && count == 0 {
			return domain.ErrNoQuestions
		}
		if index >= count {
			complete(s, now)
			return nil
		}
		s.Status = domain.StatusActive
		s.CurrentQuestionIndex = index
		s.QuestionStartTime = now
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	if s.Status == domain.StatusCompleted {
		l.logger.Info("session completed", "session_id", sessionID, "reason", reason)
	} else {
		l.logger.Info("question started", "session_id", sessionID, "index", index, "reason", reason)
	}
	return s, nil
}

func complete(s *domain.Session, now int64) {
	s.Status = domain.StatusCompleted
	s.CurrentQuestionIndex = -1
	s.QuestionStartTime = 0
	s.UpdatedAt = now
}

// End completes the session immediately.
func (l *Lifecycle) End(ctx context.Context, sessionID, actor string) (domain.Session, error) {
	s, err := l.repo.UpdateSession(ctx, sessionID, func(s *domain.Session) error {
		if err := requireHost(*s, actor); err != nil {
			return err
		}
		if s.Status != domain.StatusLobby && s.Status != domain.StatusActive {
			return fmt.Errorf("cannot end a %s session: %w", s.Status, domain.ErrInvalidState)
		}
		complete(s, l.nowMillis())
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	l.logger.Info("session ended by host", "session_id", sessionID)
	return s, nil
}

// Restart reopens a completed session with every participant's progress
// cleared. With start set, the first question opens right away.
func (l *Lifecycle) Restart(ctx context.Context, sessionID, actor string, start bool) (domain.Session, error) {
	s, err := l.hostSession(ctx, sessionID, actor)
	if err != nil {
		return domain.Session{}, err
	}
	if s.Status != domain.StatusCompleted {
		return domain.Session{}, fmt.Errorf("cannot restart a %s session: %w", s.Status, domain.ErrInvalidState)
	}

	participants, err := l.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	for _, p := range participants {
		_, err := l.repo.UpdateParticipant(ctx, sessionID, p.ID, func(p *domain.Participant) error {
			p.Answers = map[string]domain.Answer{}
			p.TotalScore = 0
			p.CurrentStreak = 0
			p.SkipVote = ""
			return nil
		})
		if err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
			return domain.Session{}, err
		}
	}

	code, err := l.reclaimCode(ctx, s)
	if err != nil {
		return domain.Session{}, err
	}

	s, err = l.repo.UpdateSession(ctx, sessionID, func(s *domain.Session) error {
		if err := requireHost(*s, actor); err != nil {
			return err
		}
		if s.Status != domain.StatusCompleted {
			return fmt.Errorf("cannot restart a %s session: %w", s.Status, domain.ErrInvalidState)
		}
		s.Code = code
		s.Status = domain.StatusLobby
		s.CurrentQuestionIndex = -1
		s.QuestionStartTime = 0
		s.UpdatedAt = l.nowMillis()
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	l.logger.Info("session restarted", "session_id", sessionID, "participants", len(participants))
	if !start {
		return s, nil
	}
	return l.StartQuestion(ctx, sessionID, actor, 0)
}

// Purge deletes the session with its questions and participants.
func (l *Lifecycle) Purge(ctx context.Context, sessionID, actor string) error {
	if _, err := l.hostSession(ctx, sessionID, actor); err != nil {
		return err
	}
	if err := l.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	l.logger.Info("session purged", "session_id", sessionID)
	return nil
}

// Join adds a participant to the lobby session using code. When several
// sessions share the code, the newest one in the lobby wins.
func (l *Lifecycle) Join(ctx context.Context, code, userID, name string) (domain.Participant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Participant{}, domain.InvalidArgument("join code is required")
	}
	name, err := validateJoin(userID, name)
	if err != nil {
		return domain.Participant{}, err
	}
	sessions, err := l.repo.FindSessionsByCode(ctx, code)
	if err != nil {
		return domain.Participant{}, err
	}
	if len(sessions) == 0 {
		return domain.Participant{}, domain.ErrSessionNotFound
	}
	for _, s := range sessions {
		if s.Status == domain.StatusLobby {
			return l.addParticipant(ctx, s, userID, name)
		}
	}
	return domain.Participant{}, domain.ErrJoinClosed
}

func (l *Lifecycle) JoinSession(ctx context.Context, sessionID, userID, name string) (domain.Participant, error) {
	name, err := validateJoin(userID, name)
	if err != nil {
		return domain.Participant{}, err
	}
	s, err := l.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Participant{}, err
	}
	if s.Status != domain.StatusLobby {
		return domain.Participant{}, domain.ErrJoinClosed
	}
	return l.addParticipant(ctx, s, userID, name)
}

func validateJoin(userID, name string) (string, error) {
	if userID == "" {
		return "", domain.InvalidArgument("user is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.InvalidArgument("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", domain.InvalidArgument("name is longer than %d characters", maxNameLength)
	}
	return name, nil
}

// addParticipant is idempotent per user: joining again returns the
// participant created the first time.
func (l *Lifecycle) addParticipant(ctx context.Context, s domain.Session, userID, name string) (domain.Participant, error) {
	existing, err := l.repo.FindParticipantsByUser(ctx, s.ID, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}
	p, err := l.repo.AddParticipant(ctx, domain.Participant{
		SessionID: s.ID,
		UserID:    userID,
		Name:      name,
		JoinedAt:  l.nowMillis(),
		Answers:   map[string]domain.Answer{},
	})
	if err != nil {
		return domain.Participant{}, err
	}
	l.logger.Info("participant joined", "session_id", s.ID, "participant_id", p.ID)
	return p, nil
}

// Participants lists the session's participants in join order. Only the host
// and each participant's owner see recorded answers.
func (l *Lifecycle) Participants(ctx context.Context, sessionID, actor string) ([]domain.Participant, error) {
	s, err := l.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := l.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor == s.OwnerID {
		return participants, nil
	}
	for i := range participants {
		if participants[i].UserID != actor {
			participants[i].Answers = map[string]domain.Answer{}
			participants[i].SkipVote = ""
		}
	}
	return participants, nil
}

// View assembles the observer snapshot of a session.
func (l *Lifecycle) View(ctx context.Context, sessionID string) (domain.SessionView, error) {
	s, err := l.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	questions, err := l.repo.ListQuestions(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	participants, err := l.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return buildView(s, questions, participants, l.opts.Now()), nil
}

func buildView(s domain.Session, questions []domain.Question, participants []domain.Participant, now time.Time) domain.SessionView {
	view := domain.SessionView{
		Session:          s,
		QuestionCount:    len(questions),
		ParticipantCount: len(participants),
	}
	if s.Status != domain.StatusActive || s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(questions) {
		return view
	}
	q := questions[s.CurrentQuestionIndex]
	public := q.Public()
	view.CurrentQuestion = &public
	view.RemainingMs = RemainingMillis(s, q, now)
	for _, p := range participants {
		if p.HasAnswered(q.ID) {
			view.AnsweredCount++
		}
	}
	return view
}

// RemainingMillis is the time left to answer q, never negative and never
// more than the full time limit.
func RemainingMillis(s domain.Session, q domain.Question, now time.Time) int64 {
	if s.Status != domain.StatusActive {
		return 0
	}
	limit := q.TimeLimitMillis()
	remaining := limit - (now.UnixMilli() - s.QuestionStartTime)
	switch {
	case remaining < 0:
		return 0
	case remaining > limit:
		return limit
	default:
		return remaining
	}
}
