package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/store"
	"github.com/loomworklabs/parley/internal/store/model"
)

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // Used for actual queries (can be *sqlx.DB or *sqlx.Tx)
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{db: db, executor: db}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &SqliteRepository{db: r.db, executor: tx}

	if err := fn(txRepo); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SqliteRepository) Teams() store.TeamRepository {
	return &teamRepo{db: r.executor}
}

func (r *SqliteRepository) Users() store.UserRepository {
	return &userRepo{db: r.executor}
}

func (r *SqliteRepository) Sessions() store.SessionRepository {
	return &sessionRepo{db: r.executor}
}

func (r *SqliteRepository) Credentials() store.CredentialRepository {
	return &credentialRepo{db: r.executor}
}

func (r *SqliteRepository) Prompts() store.PromptRepository {
	return &promptRepo{db: r.executor}
}

func (r *SqliteRepository) Assistants() store.AssistantRepository {
	return &assistantRepo{db: r.executor}
}

func (r *SqliteRepository) Limits() store.LimitRepository {
	return &limitRepo{db: r.executor}
}

func jsonMarshal(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	return string(raw), err
}

func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

type teamRepo struct {
	db DB
}

func (r *teamRepo) Get(ctx context.Context, id string) (*domain.Team, error) {
	var row model.Team
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM teams WHERE id = ?`, id); err != nil {
		return nil, mapErr(err)
	}
	return row.ToDomain(), nil
}

func (r *teamRepo) Create(ctx context.Context, team *domain.Team) error {
	row := model.Team{
		ID:           team.ID,
		Name:         team.Name,
		OwnerID:      team.OwnerID,
		PublicKeyPEM: team.PublicKeyPEM,
		CreatedAt:    team.CreatedAt,
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO teams (id, name, owner_id, public_key_pem, created_at)
		VALUES (:id, :name, :owner_id, :public_key_pem, :created_at)`, row)
	return err
}

func (r *teamRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	return err
}

func (r *teamRepo) MemberRole(ctx context.Context, userID, teamID string) (domain.Role, error) {
	var role string
	err := r.db.GetContext(ctx, &role,
		`SELECT role FROM team_members WHERE team_id = ? AND user_id = ?`, teamID, userID)
	if err != nil {
		return "", mapErr(err)
	}
	return domain.Role(role), nil
}

func (r *teamRepo) AddMember(ctx context.Context, teamID, userID string, role domain.Role) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT(team_id, user_id) DO UPDATE SET role = excluded.role`,
		teamID, userID, string(role))
	return err
}

type userRepo struct {
	db DB
}

func (r *userRepo) Get(ctx context.Context, id string) (*domain.User, error) {
	var row model.User
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, mapErr(err)
	}
	return row.ToDomain(), nil
}

func (r *userRepo) GetByTokenHash(ctx context.Context, hash string) (*domain.User, error) {
	var row model.User
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM users WHERE token_hash = ?`, hash); err != nil {
		return nil, mapErr(err)
	}
	return row.ToDomain(), nil
}

func (r *userRepo) Create(ctx context.Context, user *domain.User, tokenHash string) error {
	row := model.User{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		TokenHash: tokenHash,
		CreatedAt: user.CreatedAt,
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, name, token_hash, created_at)
		VALUES (:id, :email, :name, :token_hash, :created_at)`, row)
	return err
}

type sessionRepo struct {
	db DB
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	var row model.Session
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM sessions WHERE id = ?`, id); err != nil {
		return nil, mapErr(err)
	}
	return row.ToDomain()
}

func (r *sessionRepo) Create(ctx context.Context, s *domain.Session) error {
	row, err := model.SessionFromDomain(s)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO sessions (id, team_id, owner_id, name, session_type, session_mode, model_json, prompt_id, assistant_id, created_at)
		VALUES (:id, :team_id, :owner_id, :name, :session_type, :session_mode, :model_json, :prompt_id, :assistant_id, :created_at)`, row)
	return err
}

func (r *sessionRepo) ListByOwner(ctx context.Context, teamID, ownerID string) ([]*domain.Session, error) {
	var rows []model.Session
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM sessions WHERE team_id = ? AND owner_id = ?
		ORDER BY created_at DESC`, teamID, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Session, 0, len(rows))
	for i := range rows {
		s, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *sessionRepo) Rename(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET name = ? WHERE id = ?`, name, id)
	return err
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (r *sessionRepo) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM session_messages WHERE session_id = ?`, sessionID)
	return n, err
}

func (r *sessionRepo) CountTeamMessages(ctx context.Context, teamID string) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM session_messages m
		JOIN sessions s ON s.id = m.session_id
		WHERE s.team_id = ?`, teamID)
	return n, err
}

func (r *sessionRepo) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*domain.SessionMessage, error) {
	var rows []model.SessionMessage
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM session_messages WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.SessionMessage, 0, len(rows))
	for i := range rows {
		m, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *sessionRepo) AppendMessage(ctx context.Context, m *domain.SessionMessage) error {
	row, err := model.SessionMessageFromDomain(m)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO session_messages (id, session_id, owner_id, query, answer, usage_json, created_at)
		VALUES (:id, :session_id, :owner_id, :query, :answer, :usage_json, :created_at)`, row)
	return err
}

type credentialRepo struct {
	db DB
}

func (r *credentialRepo) Get(ctx context.Context, teamID, providerName string) (*domain.TenantCredential, error) {
	var row model.TenantCredential
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM tenant_credentials WHERE team_id = ? AND provider_name = ?`,
		teamID, providerName)
	if err != nil {
		return nil, mapErr(err)
	}
	return row.ToDomain(), nil
}

func (r *credentialRepo) Upsert(ctx context.Context, c *domain.TenantCredential) error {
	row := model.TenantCredential{
		ID:              c.ID,
		TeamID:          c.TeamID,
		ProviderName:    c.ProviderName,
		EncryptedConfig: c.EncryptedConfig,
		IsValid:         c.IsValid,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO tenant_credentials (id, team_id, provider_name, encrypted_config, is_valid, created_at, updated_at)
		VALUES (:id, :team_id, :provider_name, :encrypted_config, :is_valid, :created_at, :updated_at)
		ON CONFLICT(team_id, provider_name) DO UPDATE SET
			encrypted_config = excluded.encrypted_config,
			is_valid = excluded.is_valid,
			updated_at = excluded.updated_at`, row)
	return err
}

func (r *credentialRepo) Delete(ctx context.Context, teamID, providerName string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tenant_credentials WHERE team_id = ? AND provider_name = ?`,
		teamID, providerName)
	return err
}

type promptRepo struct {
	db DB
}

func (r *promptRepo) Get(ctx context.Context, id string) (*domain.Prompt, error) {
	var row model.Prompt
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM prompts WHERE id = ?`, id); err != nil {
		return nil, mapErr(err)
	}
	return row.ToDomain()
}

func (r *promptRepo) Create(ctx context.Context, p *domain.Prompt) error {
	var modelJSON sql.NullString
	if p.ModelConfig != nil {
		raw, err := jsonMarshal(p.ModelConfig)
		if err != nil {
			return err
		}
		modelJSON = sql.NullString{String: raw, Valid: true}
	}
	row := model.Prompt{
		ID:        p.ID,
		TeamID:    p.TeamID,
		Name:      p.Name,
		Type:      string(p.Type),
		PrePrompt: p.PrePrompt,
		ModelJSON: modelJSON,
		CreatedAt: p.CreatedAt,
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO prompts (id, team_id, name, prompt_type, pre_prompt, model_json, created_at)
		VALUES (:id, :team_id, :name, :prompt_type, :pre_prompt, :model_json, :created_at)`, row)
	return err
}

type assistantRepo struct {
	db DB
}

func (r *assistantRepo) Get(ctx context.Context, id string) (*domain.Assistant, error) {
	var row model.Assistant
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM assistants WHERE id = ?`, id); err != nil {
		return nil, mapErr(err)
	}
	return row.ToDomain()
}

func (r *assistantRepo) Create(ctx context.Context, a *domain.Assistant) error {
	var modelJSON sql.NullString
	if a.ModelConfig != nil {
		raw, err := jsonMarshal(a.ModelConfig)
		if err != nil {
			return err
		}
		modelJSON = sql.NullString{String: raw, Valid: true}
	}
	var collection sql.NullString
	if a.CollectionConfig != "" {
		collection = sql.NullString{String: a.CollectionConfig, Valid: true}
	}
	row := model.Assistant{
		ID:               a.ID,
		TeamID:           a.TeamID,
		Name:             a.Name,
		PrePrompt:        a.PrePrompt,
		ContextSource:    string(a.ContextSource),
		CollectionConfig: collection,
		ModelJSON:        modelJSON,
		CreatedAt:        a.CreatedAt,
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO assistants (id, team_id, name, pre_prompt, context_source, collection_config, model_json, created_at)
		VALUES (:id, :team_id, :name, :pre_prompt, :context_source, :collection_config, :model_json, :created_at)`, row)
	return err
}

type limitRepo struct {
	db DB
}

func (r *limitRepo) Find(ctx context.Context, key, userID, teamID string) ([]*domain.Limit, error) {
	var rows []model.Limit
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM limits WHERE limit_key = ? AND (
			(user_id = ? AND team_id = ?) OR
			(user_id IS NULL AND team_id = ?) OR
			(user_id IS NULL AND team_id IS NULL)
		)`, key, userID, teamID, teamID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Limit, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

func (r *limitRepo) Upsert(ctx context.Context, l *domain.Limit) error {
	var userID, teamID sql.NullString
	if l.UserID != "" {
		userID = sql.NullString{String: l.UserID, Valid: true}
	}
	if l.TeamID != "" {
		teamID = sql.NullString{String: l.TeamID, Valid: true}
	}
	row := model.Limit{ID: l.ID, Key: l.Key, Value: l.Value, UserID: userID, TeamID: teamID}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO limits (id, limit_key, limit_value, user_id, team_id)
		VALUES (:id, :limit_key, :limit_value, :user_id, :team_id)
		ON CONFLICT(limit_key, user_id, team_id) DO UPDATE SET
			limit_value = excluded.limit_value`, row)
	return err
}
