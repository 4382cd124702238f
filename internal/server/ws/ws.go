// Package ws is the WebSocket streaming transport. The client opens one
// connection per session and drives generation turns over it; credentials
// for the handshake ride in the subprotocol list because browsers cannot
// set headers on WebSocket dials.
package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
	"github.com/loomworklabs/parley/internal/core/services"
	"github.com/loomworklabs/parley/internal/platform/logger"
	"github.com/loomworklabs/parley/internal/server/middleware"
	"github.com/loomworklabs/parley/internal/store"
	"github.com/loomworklabs/parley/pkg/api"
)

const writeTimeout = 10 * time.Second

// Streamer is the generation capability the transport drives.
type Streamer interface {
	GenerateStream(ctx context.Context, user *domain.User, opts services.GenerateOptions) (<-chan ports.ChunkResult, error)
}

// Handler upgrades session connections and runs the frame loop.
type Handler struct {
	repo      store.Repository
	generator Streamer
	quota     *services.QuotaService
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

func NewHandler(repo store.Repository, generator Streamer, quota *services.QuotaService) *Handler {
	return &Handler{
		repo:      repo,
		generator: generator,
		quota:     quota,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{api.SubprotocolJSON},
			// cross-origin dials are expected, auth rides in the
			// subprotocol list
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.Get(),
	}
}

// Serve performs the handshake for GET /sessions/:id/generate. The client
// offers three subprotocols: the frame format, a bearer token and the
// team ID. Authentication failures close the fresh connection with a
// policy code instead of failing the HTTP upgrade, so clients can read
// the close reason.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	offers := websocket.Subprotocols(c.Request)
	if len(offers) < 3 || offers[0] != api.SubprotocolJSON {
		h.closeWith(conn, websocket.ClosePolicyViolation, "expected subprotocols [format, token, team]")
		return
	}
	token, teamID := offers[1], offers[2]

	user, err := h.repo.Users().GetByTokenHash(c.Request.Context(), middleware.HashToken(token))
	if err != nil {
		h.closeWith(conn, api.CloseUnauthorized, "invalid token")
		return
	}
	if _, err := h.repo.Teams().MemberRole(c.Request.Context(), user.ID, teamID); err != nil {
		h.closeWith(conn, api.CloseInternalError, "not a member of the team")
		return
	}

	session, err := h.repo.Sessions().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.closeWith(conn, api.CloseNotFound, "session not found")
		return
	}
	if session.OwnerID != user.ID || session.TeamID != teamID {
		h.closeWith(conn, api.CloseInternalError, "session belongs to another user")
		return
	}

	// reject exhausted tenants before any frame is accepted
	if err := h.quota.CheckMessage(c.Request.Context(), user.ID, session.TeamID); err != nil {
		h.closeWith(conn, closeCodeFor(err), "message quota exceeded")
		return
	}

	h.frameLoop(c, conn, user, session)
}

// frameLoop reads one GenerateRequest per client frame and streams the
// turn back. A failed turn emits an error frame and keeps the
// connection; only transport failures end the loop.
func (h *Handler) frameLoop(c *gin.Context, conn *websocket.Conn, user *domain.User, session *domain.Session) {
	for {
		var req api.GenerateRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket closed", zap.String("session_id", session.ID), zap.Error(err))
			}
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			if !h.writeError(conn, domain.E(domain.CodeParameterInvalid, "query must not be empty")) {
				return
			}
			continue
		}

		ch, err := h.generator.GenerateStream(c.Request.Context(), user, services.GenerateOptions{
			SessionID:  session.ID,
			Query:      req.Query,
			Files:      req.Files,
			Parameters: req.Parameters,
		})
		if err != nil {
			if !h.writeError(conn, err) {
				return
			}
			continue
		}

		if !h.streamTurn(conn, req.Query, ch) {
			return
		}
	}
}

// streamTurn forwards one generation's chunks, then the terminal message
// frame. Chunk frames carry only the incremental text; the message frame
// carries the full answer, including any text on the terminal chunk.
// Returns false when the connection is no longer writable.
func (h *Handler) streamTurn(conn *websocket.Conn, query string, ch <-chan ports.ChunkResult) bool {
	var answer strings.Builder
	for res := range ch {
		if res.Err != nil {
			return h.writeError(conn, res.Err)
		}
		chunk := res.Chunk
		answer.WriteString(chunk.Delta.Content)

		if chunk.FinishReason != "" {
			view := api.SessionMessageView{
				Query:  query,
				Answer: answer.String(),
			}
			if chunk.Usage != nil {
				view.Usage = *chunk.Usage
			}
			return h.writeFrame(conn, api.Frame{Type: api.FrameMessage, Data: view})
		}

		if !h.writeFrame(conn, api.Frame{Type: api.FrameChunk, Data: chunk.Delta.Content}) {
			return false
		}
	}
	return true
}

func (h *Handler) writeFrame(conn *websocket.Conn, frame api.Frame) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		h.log.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}

func (h *Handler) writeError(conn *websocket.Conn, err error) bool {
	return h.writeFrame(conn, api.Frame{Type: api.FrameError, Data: api.FromDomain(err)})
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

func closeCodeFor(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeNotFound:
		return api.CloseNotFound
	case domain.CodeUnauthenticated:
		return api.CloseUnauthorized
	default:
		return api.CloseInternalError
	}
}
