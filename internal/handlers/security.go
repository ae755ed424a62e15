package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/licensewatch/internal/security"
	"github.com/charlesng35/licensewatch/pkg/response"
)

// SecurityPosture reports configuration and account hygiene checks.
// GET /api/security/posture
func SecurityPosture(svc *security.PostureService) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, svc.Run(requestContext(c)))
	}
}
