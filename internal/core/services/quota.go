package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/platform/logger"
	"github.com/loomworklabs/parley/internal/store"
)

const limitCacheTTLSeconds = 60

// QuotaService resolves message limits and enforces them before a
// generation is allowed to start. Limit rows are scoped; a user row wins
// over a team row, a team row over the global row. No row means no limit.
type QuotaService struct {
	repo  store.Repository
	cache ports.Cache
	log   *zap.Logger
}

func NewQuotaService(repo store.Repository, cache ports.Cache) *QuotaService {
	return &QuotaService{repo: repo, cache: cache, log: logger.Get()}
}

// CheckMessage fails with quota_exceeded when the team's stored message
// count has reached the applicable MESSAGE limit.
func (s *QuotaService) CheckMessage(ctx context.Context, userID, teamID string) error {
	limit, err := s.resolve(ctx, domain.LimitKeyMessage, userID, teamID)
	if err != nil {
		return err
	}
	if limit == nil || limit.Value < 0 {
		return nil
	}

	used, err := s.repo.Sessions().CountTeamMessages(ctx, teamID)
	if err != nil {
		return err
	}
	if used >= limit.Value {
		return domain.E(domain.CodeQuotaExceeded, "message limit of %d reached", limit.Value)
	}
	return nil
}

// resolve returns the winning limit row for the key, or nil when none is
// configured for any scope.
func (s *QuotaService) resolve(ctx context.Context, key, userID, teamID string) (*domain.Limit, error) {
	cacheKey := fmt.Sprintf("limits:%s:%s:%s", key, userID, teamID)

	var rows []*domain.Limit
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &rows); err == nil {
			return pickLimit(rows, userID, teamID), nil
		}
	}

	rows, err := s.repo.Limits().Find(ctx, key, userID, teamID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, rows, limitCacheTTLSeconds); err != nil {
			s.log.Debug("limit cache write failed", zap.Error(err))
		}
	}
	return pickLimit(rows, userID, teamID), nil
}

func pickLimit(rows []*domain.Limit, userID, teamID string) *domain.Limit {
	var team, global *domain.Limit
	for _, row := range rows {
		switch {
		case row.UserID == userID && row.UserID != "":
			return row
		case row.TeamID == teamID && row.TeamID != "" && row.UserID == "":
			team = row
		case row.UserID == "" && row.TeamID == "":
			global = row
		}
	}
	if team != nil {
		return team
	}
	return global
}
