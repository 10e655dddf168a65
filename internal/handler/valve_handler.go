package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"waterworks/internal/middleware"
	"waterworks/internal/model"
	"waterworks/internal/repository"
	"waterworks/internal/service"
	"waterworks/pkg/pagination"
	"waterworks/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ValveHandler struct {
	valveService service.ValveService
	log          *logrus.Logger
}

func NewValveHandler(valveService service.ValveService, log *logrus.Logger) *ValveHandler {
	return &ValveHandler{valveService: valveService, log: log}
}

func (h *ValveHandler) RegisterRoutes(router *gin.RouterGroup, access *service.AccessEvaluator) {
	view := middleware.RequireAccess(access.ViewGuard(), model.PageValves)
	add := middleware.RequireAccess(access.AddGuard(), model.PageValves)
	edit := middleware.RequireAccess(access.EditGuard(), model.PageValves)
	del := middleware.RequireAccess(access.DeleteGuard(), model.PageValves)

	valves := router.Group("/api/valves")
	{
		valves.GET("", view, h.ListValves)
		valves.GET("/:id", view, h.GetValve)
		valves.POST("", add, h.CreateValve)
		valves.PUT("/:id", edit, h.UpdateValve)
		valves.PATCH("/:id", edit, h.UpdateValve)
		valves.DELETE("/:id", del, h.DeleteValve)
	}
}

// ListValves returns valves filtered by name and area
// @Summary      List valves
// @Tags         valves
// @Security     BearerAuth
// @Produce      json
// @Param        name   query     string  false  "Name contains"
// @Param        area   query     string  false  "Provide area contains"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=pagination.Page[model.Valve]}
// @Router       /api/valves [get]
func (h *ValveHandler) ListValves(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.ValveFilter{Name: c.Query("name"), Area: c.Query("area")}

	valves, total, err := h.valveService.ListValves(c.Request.Context(), filter, p.Page, p.Limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(valves, total, p)))
}

// GetValve returns a single valve
// @Summary      Get valve
// @Tags         valves
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Valve ID"
// @Success      200  {object}  response.Response{data=model.Valve}
// @Failure      404  {object}  response.Response
// @Router       /api/valves/{id} [get]
func (h *ValveHandler) GetValve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	valve, err := h.valveService.GetValve(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, valve))
}

// CreateValve registers a new valve
// @Summary      Create valve
// @Tags         valves
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateValveRequest  true  "Valve"
// @Success      201      {object}  response.Response{data=model.Valve}
// @Failure      400      {object}  response.Response
// @Router       /api/valves [post]
func (h *ValveHandler) CreateValve(c *gin.Context) {
	var req service.CreateValveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	valve, err := h.valveService.CreateValve(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, valve))
}

// UpdateValve applies a partial, audited update; only changed fields are logged
// @Summary      Update valve
// @Tags         valves
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Valve ID"
// @Param        payload  body      object  true  "Fields to change"
// @Success      200      {object}  response.Response{data=service.ValveChangeResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/valves/{id} [patch]
func (h *ValveHandler) UpdateValve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}
	// Numbers stay json.Number so decimals keep their exact text.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var proposed map[string]any
	if err := dec.Decode(&proposed); err != nil || proposed == nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: expected a JSON object"))
		return
	}

	res, err := h.valveService.UpdateValve(c.Request.Context(), id, proposed)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// DeleteValve removes a valve and its change history
// @Summary      Delete valve
// @Tags         valves
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Valve ID"
// @Success      200  {object}  response.Response
// @Router       /api/valves/{id} [delete]
func (h *ValveHandler) DeleteValve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.valveService.DeleteValve(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Valve deleted successfully"}))
}
