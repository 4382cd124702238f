package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loomworklabs/parley/internal/core/domain"
	"github.com/loomworklabs/parley/internal/core/services"
	"github.com/loomworklabs/parley/internal/server/middleware"
	"github.com/loomworklabs/parley/internal/server/validator"
	"github.com/loomworklabs/parley/pkg/api"
)

type TeamHandler struct {
	teams *services.TeamService
}

func NewTeamHandler(teams *services.TeamService) *TeamHandler {
	return &TeamHandler{teams: teams}
}

func (h *TeamHandler) Create(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	team, err := h.teams.Create(c.Request.Context(), req.Name, middleware.UserFrom(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         team.ID,
		"name":       team.Name,
		"created_at": team.CreatedAt,
	})
}

func (h *TeamHandler) Delete(c *gin.Context) {
	teamID := c.Param("id")
	user := middleware.UserFrom(c)

	role, err := h.teams.Authorize(c.Request.Context(), user.ID, teamID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if role != domain.RoleOwner {
		_ = c.Error(domain.E(domain.CodeForbidden, "only the owner may delete a team"))
		return
	}

	if err := h.teams.Delete(c.Request.Context(), teamID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
