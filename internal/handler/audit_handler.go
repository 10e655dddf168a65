package handler

import (
	"net/http"

	"waterworks/internal/middleware"
	"waterworks/internal/model"
	"waterworks/internal/service"
	"waterworks/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AuditHandler struct {
	auditService service.AuditService
	log          *logrus.Logger
}

func NewAuditHandler(auditService service.AuditService, log *logrus.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, log: log}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup, access *service.AccessEvaluator) {
	// Change history is readable by whoever can view valves
	router.GET("/api/valves/:id/logs", middleware.RequireAccess(access.ViewGuard(), model.PageValves), h.GetValveLogs)
}

// GetValveLogs returns one entry per changed field, oldest first
// @Summary      Get valve change log
// @Description  Entries whose author was removed are attributed to System
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Valve ID"
// @Success      200  {object}  response.Response{data=[]service.ValveLogResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/valves/{id}/logs [get]
func (h *AuditHandler) GetValveLogs(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	logs, err := h.auditService.ListValveLogs(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, logs))
}
