package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/pakornv/refund-returns-agent/agent/contract"
)

// sessionRow is the bun mapping for one persisted session. The variant fields
// travel as JSONB so the row alone can rebuild the full Session.
type sessionRow struct {
	bun.BaseModel `bun:"table:sessions"`

	SessionID   string    `bun:"session_id,pk"`
	CaseID      string    `bun:"case_id,notnull"`
	Status      string    `bun:"status,notnull"`
	ContextJSON []byte    `bun:"context,type:jsonb,notnull"`
	Messages    []byte    `bun:"messages,type:jsonb"`
	Timeline    []byte    `bun:"timeline,type:jsonb"`
	FinalAction string    `bun:"final_action"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
	Version     int64     `bun:"version,notnull"`
}

// PostgresStore persists sessions through bun.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(db *bun.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates the sessions table. Safe to call on every start.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.NewCreateTable().
		Model((*sessionRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	row := new(sessionRow)
	err := p.db.NewSelect().
		Model(row).
		Where("session_id = ?", sessionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	s := &Session{
		SessionID:   row.SessionID,
		CaseID:      row.CaseID,
		Status:      SessionStatus(row.Status),
		FinalAction: contractx.FinalAction(row.FinalAction),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		Version:     row.Version,
	}
	if err := json.Unmarshal(row.ContextJSON, &s.Context); err != nil {
		return nil, fmt.Errorf("decode session context: %w", err)
	}
	if len(row.Messages) > 0 {
		if err := json.Unmarshal(row.Messages, &s.Messages); err != nil {
			return nil, fmt.Errorf("decode session messages: %w", err)
		}
	}
	if len(row.Timeline) > 0 {
		if err := json.Unmarshal(row.Timeline, &s.Timeline); err != nil {
			return nil, fmt.Errorf("decode session timeline: %w", err)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session loaded from store: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if s.Version <= 0 {
		s.Version = 1
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	contextJSON, err := json.Marshal(s.Context)
	if err != nil {
		return fmt.Errorf("marshal session context: %w", err)
	}
	messages, err := json.Marshal(s.Messages)
	if err != nil {
		return fmt.Errorf("marshal session messages: %w", err)
	}
	timeline, err := json.Marshal(s.Timeline)
	if err != nil {
		return fmt.Errorf("marshal session timeline: %w", err)
	}

	row := &sessionRow{
		SessionID:   s.SessionID,
		CaseID:      s.CaseID,
		Status:      string(s.Status),
		ContextJSON: contextJSON,
		Messages:    messages,
		Timeline:    timeline,
		FinalAction: string(s.FinalAction),
		CreatedAt:   s.CreatedAt.UTC(),
		UpdatedAt:   s.UpdatedAt.UTC(),
		Version:     s.Version + 1,
	}

	_, err = p.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("context = EXCLUDED.context").
		Set("messages = EXCLUDED.messages").
		Set("timeline = EXCLUDED.timeline").
		Set("final_action = EXCLUDED.final_action").
		Set("updated_at = EXCLUDED.updated_at").
		Set("version = sessions.version + 1").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.SessionID, err)
	}
	s.Version = row.Version
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	_, err := p.db.NewDelete().
		Model((*sessionRow)(nil)).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}
