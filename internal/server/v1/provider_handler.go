package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/ports"
)

// ProviderHandler serves the read-only provider catalog.
type ProviderHandler struct {
	registry ports.Registry
}

func NewProviderHandler(registry ports.Registry) *ProviderHandler {
	return &ProviderHandler{registry: registry}
}

func (h *ProviderHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.registry.List()})
}

func (h *ProviderHandler) Get(c *gin.Context) {
	schema, err := h.registry.Get(c.Param("provider"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, schema)
}

func (h *ProviderHandler) ListModels(c *gin.Context) {
	schema, err := h.registry.Get(c.Param("provider"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": schema.Models})
}

func (h *ProviderHandler) GetModel(c *gin.Context) {
	model, err := h.registry.ModelSchema(c.Param("provider"), c.Param("model"), domain.ModelTypeLLM)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model)
}
