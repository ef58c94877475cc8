package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
)

// Repository maps the quiz aggregates onto document store paths:
//
//	sessions/{sessionID}
//	sessions/{sessionID}/questions/{questionID}
//	sessions/{sessionID}/participants/{participantID}
type Repository struct {
	docs docstore.Store
}

func NewRepository(docs docstore.Store) *Repository {
	return &Repository{docs: docs}
}

const sessionsCollection = "sessions"

func sessionPath(sessionID string) string {
	return docstore.Join(sessionsCollection, sessionID)
}

func questionsCollection(sessionID string) string {
	return docstore.Join(sessionsCollection, sessionID, "questions")
}

func participantsCollection(sessionID string) string {
	return docstore.Join(sessionsCollection, sessionID, "participants")
}

func (r *Repository) CreateSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return domain.Session{}, err
	}
	id, err := r.docs.Create(ctx, sessionsCollection, data)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	s.ID = id
	return s, nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	if sessionID == "" {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	data, err := r.docs.Get(ctx, sessionPath(sessionID))
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(sessionID, data)
}

// UpdateSession applies fn atomically and bumps the session version.
func (r *Repository) UpdateSession(ctx context.Context, sessionID string, fn func(*domain.Session) error) (domain.Session, error) {
	var updated domain.Session
	err := r.docs.Update(ctx, sessionPath(sessionID), func(current []byte) ([]byte, error) {
		s, err := decodeSession(sessionID, current)
		if err != nil {
			return nil, err
		}
		if err := fn(&s); err != nil {
			return nil, err
		}
		s.Version++
		updated = s
		return json.Marshal(s)
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	return updated, nil
}

// DeleteSession removes the session and every child document.
func (r *Repository) DeleteSession(ctx context.Context, sessionID string) error {
	for _, collection := range []string{questionsCollection(sessionID), participantsCollection(sessionID)} {
		snaps, err := r.docs.Query(ctx, collection, docstore.Query{})
		if err != nil {
			return fmt.Errorf("list %s: %w", collection, err)
		}
		for _, snap := range snaps {
			if err := r.docs.Delete(ctx, snap.Path); err != nil {
				return fmt.Errorf("delete %s: %w", snap.Path, err)
			}
		}
	}
	return r.docs.Delete(ctx, sessionPath(sessionID))
}

// FindSessionsByCode returns sessions using code, newest first.
func (r *Repository) FindSessionsByCode(ctx context.Context, code string) ([]domain.Session, error) {
	snaps, err := r.docs.Query(ctx, sessionsCollection, docstore.Query{
		Filters: []docstore.Filter{{Field: "code", Value: code}},
		OrderBy: "createdAt",
		Desc:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("find sessions by code: %w", err)
	}
	return decodeSessions(snaps)
}

func (r *Repository) ListSessionsByStatus(ctx context.Context, status domain.Status) ([]domain.Session, error) {
	snaps, err := r.docs.Query(ctx, sessionsCollection, docstore.Where("status", status))
	if err != nil {
		return nil, fmt.Errorf("list %s sessions: %w", status, err)
	}
	return decodeSessions(snaps)
}

func (r *Repository) AddQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return domain.Question{}, err
	}
	id, err := r.docs.Create(ctx, questionsCollection(q.SessionID), data)
	if err != nil {
		return domain.Question{}, fmt.Errorf("add question: %w", err)
	}
	q.ID = id
	return q, nil
}

func (r *Repository) SaveQuestion(ctx context.Context, q domain.Question) error {
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return r.docs.Set(ctx, docstore.Join(questionsCollection(q.SessionID), q.ID), data)
}

func (r *Repository) DeleteQuestion(ctx context.Context, sessionID, questionID string) error {
	return r.docs.Delete(ctx, docstore.Join(questionsCollection(sessionID), questionID))
}

// ListQuestions returns the session's questions in presentation order.
func (r *Repository) ListQuestions(ctx context.Context, sessionID string) ([]domain.Question, error) {
	snaps, err := r.docs.Query(ctx, questionsCollection(sessionID), docstore.Query{OrderBy: "order"})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	questions := make([]domain.Question, 0, len(snaps))
	for _, snap := range snaps {
		var q domain.Question
		if err := json.Unmarshal(snap.Data, &q); err != nil {
			return nil, fmt.Errorf("decode question %s: %w", snap.ID, err)
		}
		q.ID = snap.ID
		q.SessionID = sessionID
		questions = append(questions, q)
	}
	return questions, nil
}

func (r *Repository) AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	if p.Answers == nil {
		p.Answers = map[string]domain.Answer{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return domain.Participant{}, err
	}
	id, err := r.docs.Create(ctx, participantsCollection(p.SessionID), data)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("add participant: %w", err)
	}
	p.ID = id
	return p, nil
}

func (r *Repository) GetParticipant(ctx context.Context, sessionID, participantID string) (domain.Participant, error) {
	if participantID == "" {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	data, err := r.docs.Get(ctx, docstore.Join(participantsCollection(sessionID), participantID))
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return decodeParticipant(sessionID, participantID, data)
}

// UpdateParticipant applies fn atomically to one participant document.
// fn may run more than once when the backend retries on contention.
func (r *Repository) UpdateParticipant(ctx context.Context, sessionID, participantID string, fn func(*domain.Participant) error) (domain.Participant, error) {
	if participantID == "" {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	var updated domain.Participant
	path := docstore.Join(participantsCollection(sessionID), participantID)
	err := r.docs.Update(ctx, path, func(current []byte) ([]byte, error) {
		p, err := decodeParticipant(sessionID, participantID, current)
		if err != nil {
			return nil, err
		}
		if err := fn(&p); err != nil {
			return nil, err
		}
		updated = p
		return json.Marshal(p)
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return updated, nil
}

// FindParticipantsByUser returns the participants userID owns in a session, oldest first.
func (r *Repository) FindParticipantsByUser(ctx context.Context, sessionID, userID string) ([]domain.Participant, error) {
	snaps, err := r.docs.Query(ctx, participantsCollection(sessionID), docstore.Query{
		Filters: []docstore.Filter{{Field: "userId", Value: userID}},
		OrderBy: "joinedAt",
	})
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	participants := make([]domain.Participant, 0, len(snaps))
	for _, snap := range snaps {
		p, err := decodeParticipant(sessionID, snap.ID, snap.Data)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// ListParticipants returns participants in join order.
func (r *Repository) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	snaps, err := r.docs.Query(ctx, participantsCollection(sessionID), docstore.Query{OrderBy: "joinedAt"})
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	participants := make([]domain.Participant, 0, len(snaps))
	for _, snap := range snaps {
		p, err := decodeParticipant(sessionID, snap.ID, snap.Data)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, nil
}

func decodeSession(id string, data []byte) (domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	s.ID = id
	return s, nil
}

func decodeSessions(snaps []docstore.Snapshot) ([]domain.Session, error) {
	sessions := make([]domain.Session, 0, len(snaps))
	for _, snap := range snaps {
		s, err := decodeSession(snap.ID, snap.Data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func decodeParticipant(sessionID, id string, data []byte) (domain.Participant, error) {
	var p domain.Participant
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Participant{}, fmt.Errorf("decode participant %s: %w", id, err)
	}
	p.ID = id
	p.SessionID = sessionID
	if p.Answers == nil {
		p.Answers = map[string]domain.Answer{}
	}
	return p, nil
}
