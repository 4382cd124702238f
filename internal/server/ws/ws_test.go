package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/core/services"
	"github.com/loomworklabs/parley/internal/server/middleware"
	"github.com/loomworklabs/parley/internal/store"
	"github.com/loomworklabs/parley/pkg/api"
)

// stubRepo serves exactly one user, one team membership and one session.
type stubRepo struct {
	user    *domain.User
	session *domain.Session
	msgs    int64
	limit   int64
}

func (r *stubRepo) Teams() store.TeamRepository             { return stubTeams{r} }
func (r *stubRepo) Users() store.UserRepository             { return stubUsers{r} }
func (r *stubRepo) Sessions() store.SessionRepository       { return stubSessions{r} }
func (r *stubRepo) Credentials() store.CredentialRepository { return nil }
func (r *stubRepo) Prompts() store.PromptRepository         { return nil }
func (r *stubRepo) Assistants() store.AssistantRepository   { return nil }
func (r *stubRepo) Limits() store.LimitRepository           { return stubLimits{r} }
func (r *stubRepo) Close() error                            { return nil }
func (r *stubRepo) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	return fn(r)
}

type stubTeams struct{ *stubRepo }

func (s stubTeams) Get(context.Context, string) (*domain.Team, error) { return nil, store.ErrNotFound }
func (s stubTeams) Create(context.Context, *domain.Team) error        { return nil }
func (s stubTeams) Delete(context.Context, string) error              { return nil }
func (s stubTeams) MemberRole(_ context.Context, userID, teamID string) (domain.Role, error) {
	if s.user != nil && userID == s.user.ID && teamID == "team1" {
		return domain.RoleMember, nil
	}
	return "", store.ErrNotFound
}
func (s stubTeams) AddMember(context.Context, string, string, domain.Role) error { return nil }

type stubUsers struct{ *stubRepo }

func (s stubUsers) Get(context.Context, string) (*domain.User, error) { return nil, store.ErrNotFound }
func (s stubUsers) GetByTokenHash(_ context.Context, hash string) (*domain.User, error) {
	if s.user != nil && hash == middleware.HashToken("good-token") {
		return s.user, nil
	}
	return nil, store.ErrNotFound
}
func (s stubUsers) Create(context.Context, *domain.User, string) error { return nil }

type stubSessions struct{ *stubRepo }

func (s stubSessions) Get(_ context.Context, id string) (*domain.Session, error) {
	if s.session != nil && id == s.session.ID {
		return s.session, nil
	}
	return nil, store.ErrNotFound
}
func (s stubSessions) Create(context.Context, *domain.Session) error { return nil }
func (s stubSessions) ListByOwner(context.Context, string, string) ([]*domain.Session, error) {
	return nil, nil
}
func (s stubSessions) Rename(context.Context, string, string) error { return nil }
func (s stubSessions) Delete(context.Context, string) error         { return nil }
func (s stubSessions) CountMessages(context.Context, string) (int64, error) {
	return s.msgs, nil
}
func (s stubSessions) CountTeamMessages(context.Context, string) (int64, error) {
	return s.msgs, nil
}
func (s stubSessions) RecentMessages(context.Context, string, int) ([]*domain.SessionMessage, error) {
	return nil, nil
}
func (s stubSessions) AppendMessage(context.Context, *domain.SessionMessage) error { return nil }

type stubLimits struct{ *stubRepo }

func (s stubLimits) Find(context.Context, string, string, string) ([]*domain.Limit, error) {
	if s.limit == 0 {
		return nil, nil
	}
	return []*domain.Limit{{Key: domain.LimitKeyMessage, Value: s.limit}}, nil
}
func (s stubLimits) Upsert(context.Context, *domain.Limit) error { return nil }

// stubStreamer replays a scripted chunk sequence for every request.
type stubStreamer struct {
	chunks []ports.ChunkResult
}

func (s stubStreamer) GenerateStream(context.Context, *domain.User, services.GenerateOptions) (<-chan ports.ChunkResult, error) {
	ch := make(chan ports.ChunkResult, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func newTestServer(repo *stubRepo, streamer Streamer) *httptest.Server {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handler := NewHandler(repo, streamer, services.NewQuotaService(repo, nil))
	engine.GET("/v1/sessions/:id/generate", handler.Serve)
	return httptest.NewServer(engine)
}

func baseRepo() *stubRepo {
	return &stubRepo{
		user: &domain.User{ID: "u1"},
		session: &domain.Session{
			ID:      "s1",
			TeamID:  "team1",
			OwnerID: "u1",
		},
	}
}

func dialWS(t *testing.T, server *httptest.Server, sessionID string, subprotocols []string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/sessions/" + sessionID + "/generate"
	dialer := websocket.Dialer{Subprotocols: subprotocols, HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// dial opens a connection, waits for the server to close it and returns
// the close code and reason.
func dial(t *testing.T, server *httptest.Server, sessionID string, subprotocols []string) (int, string) {
	t.Helper()

	conn := dialWS(t, server, sessionID, subprotocols)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	return closeErr.Code, closeErr.Text
}

// wsFrame mirrors the server frame with the payload kept raw.
type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHandshakeInvalidToken(t *testing.T) {
	server := newTestServer(baseRepo(), nil)
	defer server.Close()

	code, _ := dial(t, server, "s1", []string{api.SubprotocolJSON, "bad-token", "team1"})
	assert.Equal(t, api.CloseUnauthorized, code)
}

func TestHandshakeUnknownSession(t *testing.T) {
	server := newTestServer(baseRepo(), nil)
	defer server.Close()

	code, _ := dial(t, server, "missing", []string{api.SubprotocolJSON, "good-token", "team1"})
	assert.Equal(t, api.CloseNotFound, code)
}

func TestHandshakeWrongTeam(t *testing.T) {
	server := newTestServer(baseRepo(), nil)
	defer server.Close()

	code, _ := dial(t, server, "s1", []string{api.SubprotocolJSON, "good-token", "team2"})
	assert.Equal(t, api.CloseInternalError, code)
}

func TestHandshakeQuotaExceeded(t *testing.T) {
	repo := baseRepo()
	repo.msgs = 10
	repo.limit = 10
	server := newTestServer(repo, nil)
	defer server.Close()

	code, reason := dial(t, server, "s1", []string{api.SubprotocolJSON, "good-token", "team1"})
	assert.Equal(t, api.CloseInternalError, code)
	assert.Contains(t, reason, "quota")
}

func TestHandshakeMissingSubprotocols(t *testing.T) {
	server := newTestServer(baseRepo(), nil)
	defer server.Close()

	code, _ := dial(t, server, "s1", []string{api.SubprotocolJSON})
	assert.Equal(t, websocket.ClosePolicyViolation, code)
}

func TestFrameLoopStreamsChunksThenMessage(t *testing.T) {
	usage := domain.Usage{InputTokens: 5, OutputTokens: 7}
	streamer := stubStreamer{chunks: []ports.ChunkResult{
		{Chunk: &domain.ResultChunk{Delta: domain.PromptMessage{Role: domain.RoleAssistant, Content: "Hel"}}},
		{Chunk: &domain.ResultChunk{Delta: domain.PromptMessage{Role: domain.RoleAssistant, Content: "lo"}}},
		{Chunk: &domain.ResultChunk{
			Delta:        domain.PromptMessage{Role: domain.RoleAssistant, Content: "!"},
			FinishReason: "stop",
			Usage:        &usage,
		}},
	}}
	server := newTestServer(baseRepo(), streamer)
	defer server.Close()

	conn := dialWS(t, server, "s1", []string{api.SubprotocolJSON, "good-token", "team1"})
	require.NoError(t, conn.WriteJSON(api.GenerateRequest{Query: "hi"}))

	var streamed string
	for i := 0; i < 2; i++ {
		frame := readFrame(t, conn)
		require.Equal(t, api.FrameChunk, frame.Type)

		var text string
		require.NoError(t, json.Unmarshal(frame.Data, &text))
		streamed += text
	}
	assert.Equal(t, "Hello", streamed)

	final := readFrame(t, conn)
	require.Equal(t, api.FrameMessage, final.Type)

	var view struct {
		Query  string       `json:"query"`
		Answer string       `json:"answer"`
		Usage  domain.Usage `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(final.Data, &view))
	assert.Equal(t, "hi", view.Query)
	// the terminal chunk's text is part of the answer even though it was
	// never sent as a chunk frame
	assert.Equal(t, "Hello!", view.Answer)
	assert.True(t, strings.HasPrefix(view.Answer, streamed))
	assert.Equal(t, 7, view.Usage.OutputTokens)
}

func TestFrameLoopErrorFrameKeepsConnection(t *testing.T) {
	streamer := stubStreamer{chunks: []ports.ChunkResult{
		{Chunk: &domain.ResultChunk{
			Delta:        domain.PromptMessage{Role: domain.RoleAssistant, Content: "ok"},
			FinishReason: "stop",
		}},
	}}
	server := newTestServer(baseRepo(), streamer)
	defer server.Close()

	conn := dialWS(t, server, "s1", []string{api.SubprotocolJSON, "good-token", "team1"})

	require.NoError(t, conn.WriteJSON(api.GenerateRequest{Query: "   "}))
	frame := readFrame(t, conn)
	assert.Equal(t, api.FrameError, frame.Type)

	require.NoError(t, conn.WriteJSON(api.GenerateRequest{Query: "try again"}))
	frame = readFrame(t, conn)
	assert.Equal(t, api.FrameMessage, frame.Type)
}
