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

type RoleHandler struct {
	roleService service.RoleService
	permService service.PermissionService
	log         *logrus.Logger
}

func NewRoleHandler(roleService service.RoleService, permService service.PermissionService, log *logrus.Logger) *RoleHandler {
	return &RoleHandler{roleService: roleService, permService: permService, log: log}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup, access *service.AccessEvaluator) {
	view := middleware.RequireAccess(access.ViewGuard(), model.PageRoles)
	add := middleware.RequireAccess(access.AddGuard(), model.PageRoles)
	edit := middleware.RequireAccess(access.EditGuard(), model.PageRoles)
	del := middleware.RequireAccess(access.DeleteGuard(), model.PageRoles)

	roles := router.Group("/api/roles")
	{
		roles.GET("", view, h.ListRoles)
		roles.GET("/:id", view, h.GetRole)
		roles.POST("", add, h.CreateRole)
		roles.PUT("/:id", edit, h.UpdateRole)
		roles.DELETE("/:id", del, h.DeleteRole)

		roles.GET("/:id/login-page", view, h.GetLoginPage)
		roles.GET("/:id/permissions", view, h.ListPermissions)
		roles.POST("/:id/permissions", edit, h.CreatePermission)
		roles.GET("/:id/permissions/:page", view, h.GetPermission)
		roles.PUT("/:id/permissions/:page", edit, h.SetPermission)
		roles.DELETE("/:id/permissions/:page", edit, h.RevokePermission)
	}
}

// ListRoles returns all roles with their permissions
// @Summary      List roles
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.RoleResponse}
// @Router       /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roleService.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, roles))
}

// GetRole returns a single role by ID
// @Summary      Get role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response{data=service.RoleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/roles/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	role, err := h.roleService.GetRole(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// CreateRole creates a custom role seeded with the default permissions
// @Summary      Create role
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRoleRequest  true  "Role"
// @Success      201      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req service.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	role, err := h.roleService.CreateRole(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, role))
}

// UpdateRole updates a role's name and description
// @Summary      Update role
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Role ID"
// @Param        payload  body      service.UpdateRoleRequest  true  "Role"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/roles/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	role, err := h.roleService.UpdateRole(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// DeleteRole deletes a non-system role together with its permissions
// @Summary      Delete role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.roleService.DeleteRole(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Role deleted successfully"}))
}

// GetLoginPage returns the page the role lands on after sign-in
// @Summary      Role login page
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response
// @Router       /api/roles/{id}/login-page [get]
func (h *RoleHandler) GetLoginPage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	page, err := h.permService.LoginPage(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"login_page": page}))
}

// ListPermissions returns every permission row of a role
// @Summary      List role permissions
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response{data=[]model.Permission}
// @Router       /api/roles/{id}/permissions [get]
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	perms, err := h.permService.ListPermissions(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}

// CreatePermission inserts a permission row; an existing (role, page) pair is a conflict
// @Summary      Create permission
// @Tags         permissions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true  "Role ID"
// @Param        payload  body      service.CreatePermissionRequest  true  "Permission"
// @Success      201      {object}  response.Response{data=model.Permission}
// @Failure      409      {object}  response.Response
// @Router       /api/roles/{id}/permissions [post]
func (h *RoleHandler) CreatePermission(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.CreatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	perm, err := h.permService.CreatePermission(c.Request.Context(), id, req.Page, req.PermissionFlags, req.IsLoginPage)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, perm))
}

// GetPermission returns one permission row
// @Summary      Get permission
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        id    path      string  true  "Role ID"
// @Param        page  path      string  true  "Page"
// @Success      200   {object}  response.Response{data=model.Permission}
// @Failure      404   {object}  response.Response
// @Router       /api/roles/{id}/permissions/{page} [get]
func (h *RoleHandler) GetPermission(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	perm, err := h.permService.GetPermission(c.Request.Context(), id, c.Param("page"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if perm == nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "Permission not found"))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perm))
}

// SetPermission creates or replaces the row for (role, page)
// @Summary      Set permission
// @Tags         permissions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Role ID"
// @Param        page     path      string                        true  "Page"
// @Param        payload  body      service.SetPermissionRequest  true  "Flags"
// @Success      200      {object}  response.Response{data=model.Permission}
// @Router       /api/roles/{id}/permissions/{page} [put]
func (h *RoleHandler) SetPermission(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.SetPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	perm, err := h.permService.SetPermission(c.Request.Context(), id, c.Param("page"), req.PermissionFlags, req.IsLoginPage)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perm))
}

// RevokePermission removes the row for (role, page)
// @Summary      Revoke permission
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        id    path      string  true  "Role ID"
// @Param        page  path      string  true  "Page"
// @Success      200   {object}  response.Response
// @Router       /api/roles/{id}/permissions/{page} [delete]
func (h *RoleHandler) RevokePermission(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.permService.RevokePermission(c.Request.Context(), id, c.Param("page")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Permission revoked"}))
}
