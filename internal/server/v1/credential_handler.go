package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loomworklabs/parley/internal/core/services"
	"github.com/loomworklabs/parley/internal/server/middleware"
	"github.com/loomworklabs/parley/internal/server/validator"
	"github.com/loomworklabs/parley/pkg/api"
)

// CredentialHandler exposes the enroll/read/delete surface for tenant
// provider credentials. Responses never contain plaintext secrets.
type CredentialHandler struct {
	credentials *services.CredentialService
}

func NewCredentialHandler(credentials *services.CredentialService) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

func (h *CredentialHandler) Enroll(c *gin.Context) {
	var req api.EnrollCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	teamID := middleware.TeamIDFrom(c)
	if err := h.credentials.Enroll(c.Request.Context(), teamID, c.Param("provider"), req.Credentials); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CredentialHandler) Get(c *gin.Context) {
	values, err := h.credentials.Get(c.Request.Context(), middleware.TeamIDFrom(c), c.Param("provider"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": values})
}

func (h *CredentialHandler) Delete(c *gin.Context) {
	if err := h.credentials.Delete(c.Request.Context(), middleware.TeamIDFrom(c), c.Param("provider")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
