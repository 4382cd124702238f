package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/store"
	"github.com/loomworklabs/parley/internal/store/files"
)

// CreateSessionOptions mirrors the create-session form. Exactly one
// generation source is bound depending on Type.
type CreateSessionOptions struct {
	Name         string
	Type         domain.SessionType
	Mode         domain.SessionMode
	ProviderName string
	ModelName    string
	Parameters   map[string]interface{}
	PromptID     string
	AssistantID  string
}

// SessionService owns the session lifecycle around the generator.
type SessionService struct {
	repo     store.Repository
	registry ports.Registry
	files    files.Store
}

func NewSessionService(repo store.Repository, registry ports.Registry, fileStore files.Store) *SessionService {
	return &SessionService{repo: repo, registry: registry, files: fileStore}
}

// Create validates the generation source and opens the session under the
// default name.
func (s *SessionService) Create(ctx context.Context, user *domain.User, teamID string, opts CreateSessionOptions) (*domain.Session, error) {
	session := &domain.Session{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		OwnerID:   user.ID,
		Name:      opts.Name,
		Type:      opts.Type,
		Mode:      opts.Mode,
		CreatedAt: time.Now().UTC(),
	}
	if session.Name == "" {
		session.Name = domain.DefaultSessionName
	}

	switch opts.Type {
	case domain.SessionTypeLLM:
		if _, err := s.registry.ModelSchema(opts.ProviderName, opts.ModelName, domain.ModelTypeLLM); err != nil {
			return nil, err
		}
		session.ModelConfig = &domain.ProviderModelConfig{
			ProviderName: opts.ProviderName,
			ModelName:    opts.ModelName,
			Parameters:   opts.Parameters,
		}

	case domain.SessionTypePrompt:
		if _, err := s.repo.Prompts().Get(ctx, opts.PromptID); err != nil {
			return nil, s.notFound(err, "prompt %s not found", opts.PromptID)
		}
		session.PromptID = opts.PromptID

	case domain.SessionTypeAssistant:
		if _, err := s.repo.Assistants().Get(ctx, opts.AssistantID); err != nil {
			return nil, s.notFound(err, "assistant %s not found", opts.AssistantID)
		}
		session.AssistantID = opts.AssistantID

	default:
		return nil, domain.E(domain.CodeParameterInvalid, "unknown session type %q", opts.Type)
	}

	if err := s.repo.Sessions().Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get enforces ownership before returning the session.
func (s *SessionService) Get(ctx context.Context, user *domain.User, id string) (*domain.Session, error) {
	session, err := s.repo.Sessions().Get(ctx, id)
	if err != nil {
		return nil, s.notFound(err, "session %s not found", id)
	}
	if session.OwnerID != user.ID {
		return nil, domain.E(domain.CodeForbidden, "session belongs to another user")
	}
	return session, nil
}

func (s *SessionService) List(ctx context.Context, user *domain.User, teamID string) ([]*domain.Session, error) {
	return s.repo.Sessions().ListByOwner(ctx, teamID, user.ID)
}

func (s *SessionService) Rename(ctx context.Context, user *domain.User, id, name string) error {
	if _, err := s.Get(ctx, user, id); err != nil {
		return err
	}
	return s.repo.Sessions().Rename(ctx, id, name)
}

// Delete removes the session and its sidecar files.
func (s *SessionService) Delete(ctx context.Context, user *domain.User, id string) error {
	if _, err := s.Get(ctx, user, id); err != nil {
		return err
	}
	if err := s.repo.Sessions().Delete(ctx, id); err != nil {
		return err
	}
	if s.files != nil {
		_ = s.files.Remove(id)
	}
	return nil
}

// Messages returns up to limit stored exchanges, oldest first.
func (s *SessionService) Messages(ctx context.Context, user *domain.User, id string, limit int) ([]*domain.SessionMessage, error) {
	if _, err := s.Get(ctx, user, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > historyFetchCap {
		limit = historyFetchCap
	}
	recent, err := s.repo.Sessions().RecentMessages(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	return reverseMessages(recent), nil
}

// AttachFile stores one sidecar upload for later use as context.
func (s *SessionService) AttachFile(ctx context.Context, user *domain.User, id, name string, content []byte) error {
	if _, err := s.Get(ctx, user, id); err != nil {
		return err
	}
	if s.files == nil {
		return domain.E(domain.CodeParameterInvalid, "file uploads are not enabled")
	}
	return s.files.Save(id, name, content)
}

func (s *SessionService) notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.E(domain.CodeNotFound, format, args...)
	}
	return err
}
