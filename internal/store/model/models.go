// Package model holds the database row shapes. Conversion to and from
// domain entities happens at the repository boundary so sqlx tags never
// leak upward.
package model

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/loomworklabs/parley/internal/core/domain"
)

type Team struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	OwnerID      string    `db:"owner_id"`
	PublicKeyPEM string    `db:"public_key_pem"`
	CreatedAt    time.Time `db:"created_at"`
}

func (t *Team) ToDomain() *domain.Team {
	return &domain.Team{
		ID:           t.ID,
		Name:         t.Name,
		OwnerID:      t.OwnerID,
		PublicKeyPEM: t.PublicKeyPEM,
		CreatedAt:    t.CreatedAt,
	}
}

type User struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	TokenHash string    `db:"token_hash"`
	CreatedAt time.Time `db:"created_at"`
}

func (u *User) ToDomain() *domain.User {
	return &domain.User{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}

type Session struct {
	ID          string         `db:"id"`
	TeamID      string         `db:"team_id"`
	OwnerID     string         `db:"owner_id"`
	Name        string         `db:"name"`
	Type        string         `db:"session_type"`
	Mode        string         `db:"session_mode"`
	ModelJSON   sql.NullString `db:"model_json"`
	PromptID    sql.NullString `db:"prompt_id"`
	AssistantID sql.NullString `db:"assistant_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (s *Session) ToDomain() (*domain.Session, error) {
	out := &domain.Session{
		ID:          s.ID,
		TeamID:      s.TeamID,
		OwnerID:     s.OwnerID,
		Name:        s.Name,
		Type:        domain.SessionType(s.Type),
		Mode:        domain.SessionMode(s.Mode),
		PromptID:    s.PromptID.String,
		AssistantID: s.AssistantID.String,
		CreatedAt:   s.CreatedAt,
	}
	if s.ModelJSON.Valid && s.ModelJSON.String != "" {
		var mc domain.ProviderModelConfig
		if err := json.Unmarshal([]byte(s.ModelJSON.String), &mc); err != nil {
			return nil, err
		}
		out.ModelConfig = &mc
	}
	return out, nil
}

func SessionFromDomain(s *domain.Session) (*Session, error) {
	row := &Session{
		ID:        s.ID,
		TeamID:    s.TeamID,
		OwnerID:   s.OwnerID,
		Name:      s.Name,
		Type:      string(s.Type),
		Mode:      string(s.Mode),
		CreatedAt: s.CreatedAt,
	}
	if s.PromptID != "" {
		row.PromptID = sql.NullString{String: s.PromptID, Valid: true}
	}
	if s.AssistantID != "" {
		row.AssistantID = sql.NullString{String: s.AssistantID, Valid: true}
	}
	if s.ModelConfig != nil {
		raw, err := json.Marshal(s.ModelConfig)
		if err != nil {
			return nil, err
		}
		row.ModelJSON = sql.NullString{String: string(raw), Valid: true}
	}
	return row, nil
}

type SessionMessage struct {
	ID        string    `db:"id"`
	SessionID string    `db:"session_id"`
	OwnerID   string    `db:"owner_id"`
	Query     string    `db:"query"`
	Answer    string    `db:"answer"`
	UsageJSON string    `db:"usage_json"`
	CreatedAt time.Time `db:"created_at"`
}

func (m *SessionMessage) ToDomain() (*domain.SessionMessage, error) {
	out := &domain.SessionMessage{
		ID:        m.ID,
		SessionID: m.SessionID,
		OwnerID:   m.OwnerID,
		Query:     m.Query,
		Answer:    m.Answer,
		CreatedAt: m.CreatedAt,
	}
	if m.UsageJSON != "" {
		if err := json.Unmarshal([]byte(m.UsageJSON), &out.Usage); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func SessionMessageFromDomain(m *domain.SessionMessage) (*SessionMessage, error) {
	raw, err := json.Marshal(m.Usage)
	if err != nil {
		return nil, err
	}
	return &SessionMessage{
		ID:        m.ID,
		SessionID: m.SessionID,
		OwnerID:   m.OwnerID,
		Query:     m.Query,
		Answer:    m.Answer,
		UsageJSON: string(raw),
		CreatedAt: m.CreatedAt,
	}, nil
}

type TenantCredential struct {
	ID              string    `db:"id"`
	TeamID          string    `db:"team_id"`
	ProviderName    string    `db:"provider_name"`
	EncryptedConfig string    `db:"encrypted_config"`
	IsValid         bool      `db:"is_valid"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (c *TenantCredential) ToDomain() *domain.TenantCredential {
	return &domain.TenantCredential{
		ID:              c.ID,
		TeamID:          c.TeamID,
		ProviderName:    c.ProviderName,
		EncryptedConfig: c.EncryptedConfig,
		IsValid:         c.IsValid,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

type Prompt struct {
	ID        string         `db:"id"`
	TeamID    string         `db:"team_id"`
	Name      string         `db:"name"`
	Type      string         `db:"prompt_type"`
	PrePrompt string         `db:"pre_prompt"`
	ModelJSON sql.NullString `db:"model_json"`
	CreatedAt time.Time      `db:"created_at"`
}

func (p *Prompt) ToDomain() (*domain.Prompt, error) {
	out := &domain.Prompt{
		ID:        p.ID,
		TeamID:    p.TeamID,
		Name:      p.Name,
		Type:      domain.PromptType(p.Type),
		PrePrompt: p.PrePrompt,
		CreatedAt: p.CreatedAt,
	}
	if p.ModelJSON.Valid && p.ModelJSON.String != "" {
		var mc domain.ProviderModelConfig
		if err := json.Unmarshal([]byte(p.ModelJSON.String), &mc); err != nil {
			return nil, err
		}
		out.ModelConfig = &mc
	}
	return out, nil
}

type Assistant struct {
	ID               string         `db:"id"`
	TeamID           string         `db:"team_id"`
	Name             string         `db:"name"`
	PrePrompt        string         `db:"pre_prompt"`
	ContextSource    string         `db:"context_source"`
	CollectionConfig sql.NullString `db:"collection_config"`
	ModelJSON        sql.NullString `db:"model_json"`
	CreatedAt        time.Time      `db:"created_at"`
}

func (a *Assistant) ToDomain() (*domain.Assistant, error) {
	out := &domain.Assistant{
		ID:               a.ID,
		TeamID:           a.TeamID,
		Name:             a.Name,
		PrePrompt:        a.PrePrompt,
		ContextSource:    domain.ContextSource(a.ContextSource),
		CollectionConfig: a.CollectionConfig.String,
		CreatedAt:        a.CreatedAt,
	}
	if a.ModelJSON.Valid && a.ModelJSON.String != "" {
		var mc domain.ProviderModelConfig
		if err := json.Unmarshal([]byte(a.ModelJSON.String), &mc); err != nil {
			return nil, err
		}
		out.ModelConfig = &mc
	}
	return out, nil
}

type Limit struct {
	ID     string         `db:"id"`
	Key    string         `db:"limit_key"`
	Value  int64          `db:"limit_value"`
	UserID sql.NullString `db:"user_id"`
	TeamID sql.NullString `db:"team_id"`
}

func (l *Limit) ToDomain() *domain.Limit {
	return &domain.Limit{
		ID:     l.ID,
		Key:    l.Key,
		Value:  l.Value,
		UserID: l.UserID.String,
		TeamID: l.TeamID.String,
	}
}
