package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/licensewatch/internal/services"
)

func exportFormat(c *gin.Context) string {
	return strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", services.ExportFormatExcel)))
}

// writeExport streams a rendered document as an attachment.
func writeExport(c *gin.Context, file *services.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
