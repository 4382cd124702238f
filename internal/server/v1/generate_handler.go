package v1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loomworklabs/parley/internal/core/services"
	"github.com/loomworklabs/parley/internal/server/middleware"
	"github.com/loomworklabs/parley/internal/server/validator"
	"github.com/loomworklabs/parley/pkg/api"
)

// GenerateHandler drives one generation turn over HTTP, blocking or SSE.
type GenerateHandler struct {
	generator *services.Generator
}

func NewGenerateHandler(generator *services.Generator) *GenerateHandler {
	return &GenerateHandler{generator: generator}
}

func (h *GenerateHandler) Generate(c *gin.Context) {
	var req api.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}
	if req.Query == "" {
		_ = c.Error(api.ValidationError(map[string]string{"query": "query must not be empty"}))
		return
	}

	opts := services.GenerateOptions{
		SessionID:  c.Param("id"),
		Query:      req.Query,
		Files:      req.Files,
		Parameters: req.Parameters,
	}

	if req.Stream {
		h.stream(c, opts)
		return
	}

	result, err := h.generator.Generate(c.Request.Context(), middleware.UserFrom(c), opts)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, api.GenerateResponse{
		Model: result.Model,
		Message: api.SessionMessageView{
			Query:  req.Query,
			Answer: result.Message.Content,
			Usage:  result.Usage,
		},
	})
}

func (h *GenerateHandler) stream(c *gin.Context, opts services.GenerateOptions) {
	ch, err := h.generator.GenerateStream(c.Request.Context(), middleware.UserFrom(c), opts)
	if err != nil {
		problem := api.FromDomain(err)
		c.JSON(problem.Status, problem)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		res, ok := <-ch
		if !ok {
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			return false
		}

		if res.Err != nil {
			problem := api.FromDomain(res.Err)
			data, _ := json.Marshal(gin.H{"error": problem})
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			return false
		}

		data, err := json.Marshal(res.Chunk)
		if err != nil {
			return false
		}
		_, err = fmt.Fprintf(w, "data: %s\n\n", data)
		return err == nil
	})
}
