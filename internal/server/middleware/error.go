package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/loomworklabs/parley/pkg/api"
)

// ErrorHandler drains errors attached by handlers and renders them as
// RFC 9457 problems. Domain errors are translated first; anything else
// collapses into an opaque 500.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		problem, ok := err.(*api.Problem)
		if !ok {
			problem = api.FromDomain(err)
		}

		if problem.Log != nil {
			logger.Error("request failed",
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", problem.Status),
				zap.Error(problem.Log))
		}

		c.JSON(problem.Status, problem)
		c.Abort()
	}
}

func abortProblem(c *gin.Context, err error) {
	problem := api.FromDomain(err)
	c.AbortWithStatusJSON(problem.Status, problem)
}
