package v1

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/services"
	"github.com/loomworklabs/parley/internal/server/middleware"
	"github.com/loomworklabs/parley/internal/server/validator"
	"github.com/loomworklabs/parley/pkg/api"
)

// maxUploadBytes caps one sidecar file upload.
const maxUploadBytes = 1 << 20

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req api.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), middleware.UserFrom(c), middleware.TeamIDFrom(c), services.CreateSessionOptions{
		Name:         req.Name,
		Type:         domain.SessionType(req.Type),
		Mode:         domain.SessionMode(req.Mode),
		ProviderName: req.ProviderName,
		ModelName:    req.ModelName,
		Parameters:   req.Parameters,
		PromptID:     req.PromptID,
		AssistantID:  req.AssistantID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, api.NewSessionView(session))
}

func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context(), middleware.UserFrom(c), middleware.TeamIDFrom(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	views := make([]api.SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, api.NewSessionView(s))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), middleware.UserFrom(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, api.NewSessionView(session))
}

func (h *SessionHandler) Rename(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	if err := h.sessions.Rename(c.Request.Context(), middleware.UserFrom(c), c.Param("id"), req.Name); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), middleware.UserFrom(c), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) Messages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.sessions.Messages(c.Request.Context(), middleware.UserFrom(c), c.Param("id"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	views := make([]api.SessionMessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, api.NewSessionMessageView(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": views})
}

// AttachFile accepts one multipart upload and stores it as session
// context material.
func (h *SessionHandler) AttachFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		_ = c.Error(api.ValidationError(map[string]string{"file": "a file upload is required"}))
		return
	}
	if fileHeader.Size > maxUploadBytes {
		_ = c.Error(api.ValidationError(map[string]string{"file": "file exceeds the 1MiB limit"}))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer func() {
		_ = f.Close()
	}()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.sessions.AttachFile(c.Request.Context(), middleware.UserFrom(c), c.Param("id"), fileHeader.Filename, content); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
