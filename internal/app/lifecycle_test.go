package app

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"live-quiz-service/internal/domain"
)

type mockBank struct {
	mock.Mock
}

func (m *mockBank) LoadQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error) {
	args := m.Called(ctx, setID)
	return args.Get(0).(domain.QuestionSet), args.Error(1)
}

func TestCreateSessionStartsInDraft(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)

	s, err := svc.CreateSession(context.Background(), host, "  Capitals ", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Status != domain.StatusDraft || s.CurrentQuestionIndex != -1 || s.Title != "Capitals" {
		t.Fatalf("unexpected session %+v", s)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(s.Code) {
		t.Fatalf("expected six digit code, got %q", s.Code)
	}

	if _, err := svc.CreateSession(context.Background(), host, " ", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for blank title, got %v", err)
	}
}

func TestCreateSessionRetriesOnCodeCollision(t *testing.T) {
	svc, _ := newTestService(t, Options{CodeAttempts: 3}, nil)
	codes := []string{"111111", "111111", "222222"}
	svc.Lifecycle.codes = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, host, "one", "")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.CreateSession(ctx, host, "two", "")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.Code != "111111" || second.Code != "222222" {
		t.Fatalf("expected collision to be skipped, got %s and %s", first.Code, second.Code)
	}
}

func TestCreateSessionCodeExhaustedUntilReleased(t *testing.T) {
	svc, _ := newTestService(t, Options{CodeAttempts: 3}, nil)
	svc.Lifecycle.codes = func() (string, error) { return "123456", nil }
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, host, "one", "")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	_, err = svc.CreateSession(ctx, host, "two", "")
	if !errors.Is(err, domain.ErrCodeExhausted) || domain.CodeOf(err) != domain.CodeInternal {
		t.Fatalf("expected exhausted internal error, got %v", err)
	}

	if _, err := svc.OpenLobby(ctx, first.ID, host); err != nil {
		t.Fatalf("open lobby: %v", err)
	}
	if _, err := svc.End(ctx, first.ID, host); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := svc.CreateSession(ctx, host, "two", ""); err != nil {
		t.Fatalf("completed session should release its code: %v", err)
	}
}

func TestLifecycleWalksThroughQuestions(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	ctx := context.Background()
	s := seedSession(t, svc, 2)

	if _, err := svc.StartQuestion(ctx, s.ID, host, 1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected lobby to require index 0, got %v", err)
	}
	s, err := svc.StartQuestion(ctx, s.ID, host, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Status != domain.StatusActive || s.CurrentQuestionIndex != 0 || s.QuestionStartTime == 0 {
		t.Fatalf("unexpected session after start %+v", s)
	}
	version := s.Version

	s, err = svc.Advance(ctx, s.ID, host, 0)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if s.CurrentQuestionIndex != 1 || s.Version <= version {
		t.Fatalf("expected question 1 with newer version, got %+v", s)
	}

	if _, err := svc.Advance(ctx, s.ID, host, 0); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected stale advance to fail, got %v", err)
	}

	s, err = svc.Advance(ctx, s.ID, host, 1)
	if err != nil {
		t.Fatalf("advance past last: %v", err)
	}
	if s.Status != domain.StatusCompleted || s.CurrentQuestionIndex != -1 {
		t.Fatalf("expected completed session, got %+v", s)
	}
	if _, err := svc.Advance(ctx, s.ID, host, 1); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state after completion, got %v", err)
	}
}

func TestStartQuestionRequiresQuestions(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	s := seedSession(t, svc, 0)

	if _, err := svc.StartQuestion(context.Background(), s.ID, host, 0); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected no questions error, got %v", err)
	}
}

func TestHostOnlyTransitions(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	ctx := context.Background()
	s, err := svc.CreateSession(ctx, host, "quiz", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.OpenLobby(ctx, s.ID, "intruder"); domain.CodeOf(err) != domain.CodePermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := svc.AddQuestion(ctx, s.ID, "intruder", sampleDraft("q", 0)); domain.CodeOf(err) != domain.CodePermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if err := svc.Purge(ctx, s.ID, "intruder"); domain.CodeOf(err) != domain.CodePermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := svc.OpenLobby(ctx, "missing", host); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestJoinOnlyWhileInLobby(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	svc.Lifecycle.codes = func() (string, error) { return "555555", nil }
	ctx := context.Background()
	s, err := svc.CreateSession(ctx, host, "quiz", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.AddQuestion(ctx, s.ID, host, sampleDraft("q", 0)); err != nil {
		t.Fatalf("add question: %v", err)
	}

	if _, err := svc.Join(ctx, s.Code, "u1", "Ann"); !errors.Is(err, domain.ErrJoinClosed) {
		t.Fatalf("expected draft session to reject joins, got %v", err)
	}
	if _, err := svc.OpenLobby(ctx, s.ID, host); err != nil {
		t.Fatalf("open lobby: %v", err)
	}
	p := join(t, svc, s, "u1", " Ann ")
	if p.Name != "Ann" || p.SessionID != s.ID || p.TotalScore != 0 {
		t.Fatalf("unexpected participant %+v", p)
	}

	if _, err := svc.StartQuestion(ctx, s.ID, host, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Join(ctx, s.Code, "u2", "Bob"); domain.CodeOf(err) != domain.CodeFailedPrecondition {
		t.Fatalf("expected active session to reject joins, got %v", err)
	}
	if _, err := svc.JoinSession(ctx, s.ID, "u2", "Bob"); !errors.Is(err, domain.ErrJoinClosed) {
		t.Fatalf("expected join by id to be rejected, got %v", err)
	}
	if _, err := svc.Join(ctx, "000000", "u2", "Bob"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected unknown code to be not found, got %v", err)
	}
	if _, err := svc.Join(ctx, s.Code, "u2", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected blank name to be rejected, got %v", err)
	}
}

func TestJoinPicksLobbySessionSharingCode(t *testing.T) {
	svc, clock := newTestService(t, Options{}, nil)
	svc.Lifecycle.codes = func() (string, error) { return "424242", nil }
	ctx := context.Background()

	old := seedSession(t, svc, 1)
	if _, err := svc.End(ctx, old.ID, host); err != nil {
		t.Fatalf("end old: %v", err)
	}
	clock.Advance(time.Minute)
	fresh := seedSession(t, svc, 1)

	p, err := svc.Join(ctx, "424242", "u1", "Ann")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.SessionID != fresh.ID {
		t.Fatalf("expected to join %s, joined %s", fresh.ID, p.SessionID)
	}
}

func TestQuestionsLockedWhileActive(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	ctx := context.Background()
	s := seedSession(t, svc, 1)
	if _, err := svc.StartQuestion(ctx, s.ID, host, 0); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.AddQuestion(ctx, s.ID, host, sampleDraft("late", 0)); !errors.Is(err, domain.ErrQuestionsLocked) {
		t.Fatalf("expected locked error, got %v", err)
	}
	questions, _ := svc.ListQuestions(ctx, s.ID)
	if err := svc.RemoveQuestion(ctx, s.ID, host, questions[0].ID); !errors.Is(err, domain.ErrQuestionsLocked) {
		t.Fatalf("expected locked error, got %v", err)
	}
}

func TestAddQuestionValidatesAndDefaults(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	ctx := context.Background()
	s, _ := svc.CreateSession(ctx, host, "quiz", "")

	bad := []domain.QuestionDraft{
		{Text: "", Options: []string{"a", "b"}},
		{Text: "one option", Options: []string{"a"}},
		{Text: "too many", Options: []string{"a", "b", "c", "d", "e", "f", "g"}},
		{Text: "blank option", Options: []string{"a", " "}},
		{Text: "bad index", Options: []string{"a", "b"}, CorrectOptionIndex: 2},
		{Text: "negative time", Options: []string{"a", "b"}, TimeLimit: -1},
	}
	for _, draft := range bad {
		if _, err := svc.AddQuestion(ctx, s.ID, host, draft); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected %q to be rejected, got %v", draft.Text, err)
		}
	}

	q, err := svc.AddQuestion(ctx, s.ID, host, sampleDraft("ok", 3))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if q.TimeLimit != domain.DefaultTimeLimit || q.Points != domain.DefaultPoints || q.Order != 0 {
		t.Fatalf("expected defaults, got %+v", q)
	}
}

func TestRemoveQuestionRenumbers(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	ctx := context.Background()
	s, _ := svc.CreateSession(ctx, host, "quiz", "")
	for _, text := range []string{"first", "second", "third"} {
		if _, err := svc.AddQuestion(ctx, s.ID, host, sampleDraft(text, 0)); err != nil {
			t.Fatalf("add %s: %v", text, err)
		}
	}
	questions, _ := svc.ListQuestions(ctx, s.ID)

	if err := svc.RemoveQuestion(ctx, s.ID, host, questions[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	remaining, err := svc.ListQuestions(ctx, s.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 2 || remaining[0].Text != "second" || remaining[0].Order != 0 || remaining[1].Order != 1 {
		t.Fatalf("expected gapless order, got %+v", remaining)
	}
	if err := svc.RemoveQuestion(ctx, s.ID, host, "nope"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestImportQuestionSet(t *testing.T) {
	bank := new(mockBank)
	bank.On("LoadQuestionSet", mock.Anything, "geo").Return(domain.QuestionSet{
		ID:    "geo",
		Title: "Geography",
		Questions: []domain.QuestionDraft{
			sampleDraft("Capital of France?", 1),
			sampleDraft("Capital of Spain?", 2),
		},
	}, nil)
	bank.On("LoadQuestionSet", mock.Anything, "broken").Return(domain.QuestionSet{
		ID:        "broken",
		Questions: []domain.QuestionDraft{sampleDraft("fine", 0), {Text: "no options"}},
	}, nil)
	bank.On("LoadQuestionSet", mock.Anything, "missing").Return(domain.QuestionSet{}, domain.ErrQuestionSetNotFound)

	svc, _ := newTestService(t, Options{}, bank)
	ctx := context.Background()
	s, _ := svc.CreateSession(ctx, host, "quiz", "")
	if _, err := svc.AddQuestion(ctx, s.ID, host, sampleDraft("warmup", 0)); err != nil {
		t.Fatalf("add: %v", err)
	}

	added, err := svc.ImportQuestionSet(ctx, s.ID, host, "geo")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(added) != 2 || added[0].Order != 1 || added[1].Order != 2 {
		t.Fatalf("expected appended questions, got %+v", added)
	}

	if _, err := svc.ImportQuestionSet(ctx, s.ID, host, "broken"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid set to be rejected, got %v", err)
	}
	if _, err := svc.ImportQuestionSet(ctx, s.ID, host, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected missing set, got %v", err)
	}
	questions, _ := svc.ListQuestions(ctx, s.ID)
	if len(questions) != 3 {
		t.Fatalf("failed imports must not write, have %d questions", len(questions))
	}
	bank.AssertExpectations(t)
}

func TestRestartClearsProgress(t *testing.T) {
	svc, clock := newTestService(t, Options{}, nil)
	ctx := context.Background()
	s := seedSession(t, svc, 1)
	p := join(t, svc, s, "u1", "Ann")
	if _, err := svc.StartQuestion(ctx, s.ID, host, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := svc.Submit(ctx, Submission{SessionID: s.ID, ParticipantID: p.ID, UserID: "u1", QuestionIndex: 0, SelectedOptionIndex: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := svc.Restart(ctx, s.ID, host, false); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected restart of active session to fail, got %v", err)
	}
	if _, err := svc.End(ctx, s.ID, host); err != nil {
		t.Fatalf("end: %v", err)
	}

	s, err := svc.Restart(ctx, s.ID, host, true)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s.Status != domain.StatusActive || s.CurrentQuestionIndex != 0 {
		t.Fatalf("expected first question open, got %+v", s)
	}
	participants, _ := svc.Participants(ctx, s.ID, host)
	if len(participants) != 1 || participants[0].TotalScore != 0 || len(participants[0].Answers) != 0 || participants[0].CurrentStreak != 0 {
		t.Fatalf("expected cleared participant, got %+v", participants)
	}
}

func TestRestartReassignsCodeTakenByAnotherSession(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	ctx := context.Background()
	codes := []string{"777777", "777777", "888888"}
	svc.Lifecycle.codes = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	first := seedSession(t, svc, 1)
	if _, err := svc.End(ctx, first.ID, host); err != nil {
		t.Fatalf("end: %v", err)
	}
	second := seedSession(t, svc, 1)
	if second.Code != "777777" {
		t.Fatalf("expected released code to be reused, got %s", second.Code)
	}

	restarted, err := svc.Restart(ctx, first.ID, host, false)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.Code != "888888" {
		t.Fatalf("expected a fresh code, got %s", restarted.Code)
	}
}

func TestJoinIsIdempotentPerUser(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	ctx := context.Background()
	s := seedSession(t, svc, 1)

	first := join(t, svc, s, "u1", "Ann")
	again := join(t, svc, s, "u1", "Ann again")
	if again.ID != first.ID || again.Name != "Ann" {
		t.Fatalf("expected the original participant back, got %+v", again)
	}
	byID, err := svc.JoinSession(ctx, s.ID, "u1", "Ann")
	if err != nil {
		t.Fatalf("join session: %v", err)
	}
	if byID.ID != first.ID {
		t.Fatalf("join by id created a second participant %s", byID.ID)
	}
	participants, err := svc.Participants(ctx, s.ID, host)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 1 {
		t.Fatalf("expected one participant, got %d", len(participants))
	}
}

func TestPurgeRemovesSessionTree(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	ctx := context.Background()
	s := seedSession(t, svc, 2)
	join(t, svc, s, "u1", "Ann")

	if err := svc.Purge(ctx, s.ID, host); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := svc.GetSession(ctx, s.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	questions, err := svc.Lifecycle.repo.ListQuestions(ctx, s.ID)
	if err != nil || len(questions) != 0 {
		t.Fatalf("expected questions gone, got %d (%v)", len(questions), err)
	}
}

func TestRemainingMillis(t *testing.T) {
	start := time.UnixMilli(1_000_000)
	s := domain.Session{Status: domain.StatusActive, QuestionStartTime: start.UnixMilli()}
	q := domain.Question{TimeLimit: 20}

	cases := []struct {
		name string
		now  time.Time
		want int64
	}{
		{"at start", start, 20000},
		{"midway", start.Add(5 * time.Second), 15000},
		{"expired", start.Add(time.Minute), 0},
		{"clock behind", start.Add(-time.Second), 20000},
	}
	for _, tc := range cases {
		if got := RemainingMillis(s, q, tc.now); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
	s.Status = domain.StatusLobby
	if got := RemainingMillis(s, q, start); got != 0 {
		t.Fatalf("expected 0 outside active, got %d", got)
	}
}

func TestViewAndWatch(t *testing.T) {
	svc, clock := newTestService(t, Options{}, nil)
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	s := seedSession(t, svc, 1)
	p := join(t, svc, s, "u1", "Ann")

	views, cancel, err := svc.Watch(ctx, s.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	first := <-views
	if first.Session.Status != domain.StatusLobby || first.ParticipantCount != 1 || first.CurrentQuestion != nil {
		t.Fatalf("unexpected initial view %+v", first)
	}

	if _, err := svc.StartQuestion(ctx, s.ID, host, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(3 * time.Second)
	if _, err := svc.Submit(ctx, Submission{SessionID: s.ID, ParticipantID: p.ID, UserID: "u1", QuestionIndex: 0, SelectedOptionIndex: 0}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case view := <-views:
			if view.AnsweredCount == 1 {
				if view.CurrentQuestion == nil || view.RemainingMs != 17000 {
					t.Fatalf("unexpected active view %+v", view)
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for answered view")
		}
	}
}

func TestWatchClosesWhenSessionPurged(t *testing.T) {
	svc, _ := newTestService(t, Options{}, nil)
	ctx := context.Background()
	s := seedSession(t, svc, 1)

	views, cancel, err := svc.Watch(ctx, s.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()
	<-views

	if err := svc.Purge(ctx, s.ID, host); err != nil {
		t.Fatalf("purge: %v", err)
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-views:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("expected view channel to close")
		}
	}
}

func TestWatchSeesWriteRacingTheFirstRead(t *testing.T) {
	svc, _, store := newHookedService(t, Options{})
	ctx := context.Background()
	s := seedSession(t, svc, 1)

	store.mu.Lock()
	store.beforeSubscribe = func() {
		if _, err := svc.StartQuestion(ctx, s.ID, host, 0); err != nil {
			t.Errorf("start: %v", err)
		}
	}
	store.mu.Unlock()

	views, cancel, err := svc.Watch(ctx, s.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case view := <-views:
			if view.Session.Status == domain.StatusActive {
				return
			}
		case <-timeout:
			t.Fatalf("watcher never observed the question start")
		}
	}
}
