package sqlite

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/glebk/herb-bot/internal/domain"
)

// SessionsKey is the fixed key of the sessions document
const SessionsKey = "herb_sessions"

// SessionRepository implements domain.SessionRepository on the kv table
type SessionRepository struct {
	db *Database
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *Database) *SessionRepository {
	return &SessionRepository{db: db}
}

// Load returns the stored sessions, newest first. A missing or malformed
// document yields an empty list.
func (r *SessionRepository) Load(scope string) ([]domain.Session, error) {
	raw, ok, err := r.db.get(scope, SessionsKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Session{}, nil
	}

	var sessions []domain.Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		log.Printf("Discarding malformed sessions for %s: %v", scope, err)
		return []domain.Session{}, nil
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}

	return sessions, nil
}

// Prepend stores a new session in front of the existing ones
func (r *SessionRepository) Prepend(scope string, session domain.Session) ([]domain.Session, error) {
	sessions, err := r.Load(scope)
	if err != nil {
		return nil, err
	}

	updated := make([]domain.Session, 0, len(sessions)+1)
	updated = append(updated, session)
	updated = append(updated, sessions...)

	return r.Overwrite(scope, updated)
}

// Overwrite replaces the whole sessions document
func (r *SessionRepository) Overwrite(scope string, sessions []domain.Session) ([]domain.Session, error) {
	if sessions == nil {
		sessions = []domain.Session{}
	}

	raw, err := json.Marshal(sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sessions: %w", err)
	}

	if err := r.db.put(scope, SessionsKey, raw); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Clear removes the sessions document
func (r *SessionRepository) Clear(scope string) error {
	return r.db.remove(scope, SessionsKey)
}
