package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/secrets"
	"github.com/loomworklabs/parley/internal/store"
)

// TeamService creates tenants together with their credential keypair and
// tears both down on delete.
type TeamService struct {
	repo store.Repository
	keys secrets.KeyStore
}

func NewTeamService(repo store.Repository, keys secrets.KeyStore) *TeamService {
	return &TeamService{repo: repo, keys: keys}
}

// Create generates the team's RSA keypair, stores the public half on the
// row and enrolls the owner as a member. Key generation and row creation
// run inside one transaction; a failed insert destroys the fresh keys.
func (s *TeamService) Create(ctx context.Context, name string, owner *domain.User) (*domain.Team, error) {
	team := &domain.Team{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   owner.ID,
		CreatedAt: time.Now().UTC(),
	}

	publicPEM, err := s.keys.Generate(team.ID)
	if err != nil {
		return nil, err
	}
	team.PublicKeyPEM = publicPEM

	err = s.repo.WithTx(ctx, func(repo store.Repository) error {
		if err := repo.Teams().Create(ctx, team); err != nil {
			return err
		}
		return repo.Teams().AddMember(ctx, team.ID, owner.ID, domain.RoleOwner)
	})
	if err != nil {
		_ = s.keys.Destroy(team.ID)
		return nil, err
	}
	return team, nil
}

func (s *TeamService) Get(ctx context.Context, id string) (*domain.Team, error) {
	team, err := s.repo.Teams().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.E(domain.CodeNotFound, "team %s not found", id)
		}
		return nil, err
	}
	return team, nil
}

// Authorize fails with forbidden unless the user is a member of the team.
func (s *TeamService) Authorize(ctx context.Context, userID, teamID string) (domain.Role, error) {
	role, err := s.repo.Teams().MemberRole(ctx, userID, teamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.E(domain.CodeForbidden, "not a member of team %s", teamID)
		}
		return "", err
	}
	return role, nil
}

// Delete removes the team row and destroys its key material. Stored
// credentials become undecryptable once the keys are gone.
func (s *TeamService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Teams().Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.E(domain.CodeNotFound, "team %s not found", id)
		}
		return err
	}
	return s.keys.Destroy(id)
}
