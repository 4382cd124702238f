package api

import (
	"time"

	"github.com/loomworklabs/parley/internal/core/domain"
)

// SessionView is the read-side shape of a session.
type SessionView struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Name      string    `json:"name"`
	Type      string    `json:"session_type"`
	Mode      string    `json:"session_mode"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionMessageView is the read-side shape of one persisted exchange.
type SessionMessageView struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Query     string       `json:"query"`
	Answer    string       `json:"answer"`
	Usage     domain.Usage `json:"usage"`
	CreatedAt time.Time    `json:"created_at"`
}

// GenerateResponse is the blocking-path result envelope.
type GenerateResponse struct {
	Model   string             `json:"model"`
	Message SessionMessageView `json:"message"`
}

func NewSessionView(s *domain.Session) SessionView {
	return SessionView{
		ID:        s.ID,
		TeamID:    s.TeamID,
		Name:      s.Name,
		Type:      string(s.Type),
		Mode:      string(s.Mode),
		CreatedAt: s.CreatedAt,
	}
}

func NewSessionMessageView(m *domain.SessionMessage) SessionMessageView {
	return SessionMessageView{
		ID:        m.ID,
		SessionID: m.SessionID,
		Query:     m.Query,
		Answer:    m.Answer,
		Usage:     m.Usage,
		CreatedAt: m.CreatedAt,
	}
}
