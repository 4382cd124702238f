package store

import (
	"context"
	"errors"

	"github.com/loomworklabs/parley/internal/core/domain"
)

// ErrNotFound is returned by every repository when a row is missing.
var ErrNotFound = errors.New("not found")

// Repository is the main contract for the data layer.
type Repository interface {
	Teams() TeamRepository
	Users() UserRepository
	Sessions() SessionRepository
	Credentials() CredentialRepository
	Prompts() PromptRepository
	Assistants() AssistantRepository
	Limits() LimitRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type TeamRepository interface {
	Get(ctx context.Context, id string) (*domain.Team, error)
	Create(ctx context.Context, team *domain.Team) error
	Delete(ctx context.Context, id string) error
	// MemberRole returns the user's role in the team, or ErrNotFound.
	MemberRole(ctx context.Context, userID, teamID string) (domain.Role, error)
	AddMember(ctx context.Context, teamID, userID string, role domain.Role) error
}

type UserRepository interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	// GetByTokenHash resolves a bearer token (stored hashed) to its user.
	GetByTokenHash(ctx context.Context, hash string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User, tokenHash string) error
}

type SessionRepository interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	ListByOwner(ctx context.Context, teamID, ownerID string) ([]*domain.Session, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error

	// CountMessages returns the number of exchanges stored for a session.
	CountMessages(ctx context.Context, sessionID string) (int64, error)
	// CountTeamMessages counts exchanges across all of a team's sessions.
	CountTeamMessages(ctx context.Context, teamID string) (int64, error)
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]*domain.SessionMessage, error)
	AppendMessage(ctx context.Context, m *domain.SessionMessage) error
}

type CredentialRepository interface {
	Get(ctx context.Context, teamID, providerName string) (*domain.TenantCredential, error)
	Upsert(ctx context.Context, c *domain.TenantCredential) error
	Delete(ctx context.Context, teamID, providerName string) error
}

type PromptRepository interface {
	Get(ctx context.Context, id string) (*domain.Prompt, error)
	Create(ctx context.Context, p *domain.Prompt) error
}

type AssistantRepository interface {
	Get(ctx context.Context, id string) (*domain.Assistant, error)
	Create(ctx context.Context, a *domain.Assistant) error
}

type LimitRepository interface {
	// Find returns every limit row matching the key for the given user
	// and team scopes plus the global scope. Precedence is applied by
	// the quota service.
	Find(ctx context.Context, key, userID, teamID string) ([]*domain.Limit, error)
	Upsert(ctx context.Context, l *domain.Limit) error
}
