package service

import (
	"context"
	"errors"
	"strings"

	"waterworks/internal/apperr"
	"waterworks/internal/cache"
	"waterworks/internal/metrics"
	"waterworks/internal/model"
	"waterworks/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SuperadminRole is the built-in role holding every grant.
const SuperadminRole = "superadmin"

// defaultPermissions are seeded onto every new role: view-only dashboard and profile.
var defaultPermissions = []struct {
	Page  string
	Flags PermissionFlags
}{
	{Page: model.PageDashboard, Flags: PermissionFlags{CanView: true}},
	{Page: model.PageProfile, Flags: PermissionFlags{CanView: true}},
}

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateRoleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type RoleResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	IsSystem    bool               `json:"is_system"`
	LoginPage   string             `json:"login_page"`
	Permissions []model.Permission `json:"permissions"`
	CreatedAt   string             `json:"created_at"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id uuid.UUID) (*RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id uuid.UUID, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	SeedSystemRoles(ctx context.Context) error
}

type roleService struct {
	roleRepo      repository.RoleRepository
	permRepo      repository.PermissionRepository
	permissions   PermissionService
	txManager     repository.TransactionManager
	grants        cache.GrantCache
	metrics       *metrics.Metrics
	log           *logrus.Logger
	strictSeeding bool
}

// NewRoleService wires the role registry. With strictSeeding a failing default
// permission aborts role creation; otherwise it is logged and skipped.
func NewRoleService(
	roleRepo repository.RoleRepository,
	permRepo repository.PermissionRepository,
	permissions PermissionService,
	txManager repository.TransactionManager,
	grants cache.GrantCache,
	m *metrics.Metrics,
	log *logrus.Logger,
	strictSeeding bool,
) RoleService {
	if grants == nil {
		grants = cache.Noop{}
	}
	return &roleService{
		roleRepo:      roleRepo,
		permRepo:      permRepo,
		permissions:   permissions,
		txManager:     txManager,
		grants:        grants,
		metrics:       m,
		log:           log,
		strictSeeding: strictSeeding,
	}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roleRepo.ListAll(ctx)
	if err != nil {
		return nil, apperr.Storage("list roles", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id uuid.UUID) (*RoleResponse, error) {
	role, err := s.roleRepo.FindByIDWithPermissions(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get role", err)
	}
	resp := toRoleResponse(*role)
	return &resp, nil
}

// CreateRole inserts the role and seeds its default permissions in the same transaction.
func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &apperr.ValidationError{Field: "name", Message: "role name is required"}
	}

	role := model.Role{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureNameFree(txCtx, name, uuid.Nil); err != nil {
			return err
		}
		if err := s.roleRepo.Create(txCtx, &role); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &apperr.DuplicateNameError{Name: name}
			}
			return apperr.Storage("create role", err)
		}
		return s.seedDefaults(txCtx, role.ID)
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, role.ID)
}

// seedDefaults writes each default row in its own savepoint so a failure can be skipped
// without poisoning the enclosing transaction.
func (s *roleService) seedDefaults(ctx context.Context, roleID uuid.UUID) error {
	for _, seed := range defaultPermissions {
		_, err := s.permissions.CreatePermission(ctx, roleID, seed.Page, seed.Flags, false)
		if err == nil {
			continue
		}

		warning := &apperr.SeedingWarning{Page: seed.Page, Err: err}
		if s.strictSeeding {
			return warning
		}
		s.metrics.SeedingFailure()
		if s.log != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"role_id": roleID,
				"page":    seed.Page,
			}).Warn("default permission not seeded")
		}
	}
	return nil
}

func (s *roleService) UpdateRole(ctx context.Context, id uuid.UUID, req UpdateRoleRequest) (*RoleResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &apperr.ValidationError{Field: "name", Message: "role name is required"}
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roleRepo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return apperr.Storage("lock role", err)
		}
		if role.Name != name {
			if err := s.ensureNameFree(txCtx, name, id); err != nil {
				return err
			}
		}

		role.Name = name
		role.Description = strings.TrimSpace(req.Description)
		if err := s.roleRepo.Update(txCtx, role); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &apperr.DuplicateNameError{Name: name}
			}
			return apperr.Storage("update role", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, id)
}

// DeleteRole removes the role's permissions, detaches users and valves, then the role.
func (s *roleService) DeleteRole(ctx context.Context, id uuid.UUID) error {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roleRepo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return apperr.Storage("lock role", err)
		}
		if role.IsSystem {
			return apperr.ErrSystemRole
		}

		if err := s.permRepo.DeleteByRole(txCtx, id); err != nil {
			return apperr.Storage("delete role permissions", err)
		}
		if err := s.roleRepo.ClearReferences(txCtx, id); err != nil {
			return apperr.Storage("clear role references", err)
		}
		return apperr.Storage("delete role", s.roleRepo.Delete(txCtx, id))
	})
	if err != nil {
		return err
	}

	s.grants.InvalidateRole(ctx, id)
	return nil
}

// SeedSystemRoles makes sure the superadmin role exists with full grants on every known page.
func (s *roleService) SeedSystemRoles(ctx context.Context) error {
	role, err := s.roleRepo.FindByName(ctx, SuperadminRole)
	if errors.Is(err, apperr.ErrNotFound) {
		role = &model.Role{
			Name:        SuperadminRole,
			Description: "Built-in role with every capability",
			IsSystem:    true,
		}
		if err := s.roleRepo.Create(ctx, role); err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return apperr.Storage("seed superadmin", err)
		}
		if role.ID == uuid.Nil {
			// Lost a creation race with another process.
			if role, err = s.roleRepo.FindByName(ctx, SuperadminRole); err != nil {
				return apperr.Storage("find superadmin", err)
			}
		}
	} else if err != nil {
		return apperr.Storage("find superadmin", err)
	}

	full := PermissionFlags{CanView: true, CanAdd: true, CanEdit: true, CanDelete: true}
	for _, page := range model.KnownPages {
		if _, err := s.permissions.SetPermission(ctx, role.ID, page, full, page == model.PageDashboard); err != nil {
			return err
		}
	}

	if s.log != nil {
		s.log.WithField("role_id", role.ID).Info("system roles seeded")
	}
	return nil
}

// --- Helpers ---

func (s *roleService) ensureNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.roleRepo.FindByName(ctx, name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	case err != nil:
		return apperr.Storage("find role", err)
	case existing.ID != self:
		return &apperr.DuplicateNameError{Name: name}
	}
	return nil
}

func toRoleResponse(r model.Role) RoleResponse {
	perms := r.Permissions
	if perms == nil {
		perms = []model.Permission{}
	}

	loginPage := ""
	for _, p := range perms {
		if p.IsLoginPage {
			loginPage = p.Page
			break
		}
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		LoginPage:   loginPage,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
