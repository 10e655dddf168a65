package service

import (
	"context"
	"errors"
	"strings"

	"waterworks/internal/apperr"
	"waterworks/internal/cache"
	"waterworks/internal/model"
	"waterworks/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// --- DTOs ---

// PermissionFlags are the four page capabilities.
type PermissionFlags struct {
	CanView   bool `json:"can_view"`
	CanAdd    bool `json:"can_add"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

type CreatePermissionRequest struct {
	Page string `json:"page" binding:"required"`
	PermissionFlags
	IsLoginPage bool `json:"is_login_page"`
}

type SetPermissionRequest struct {
	PermissionFlags
	IsLoginPage bool `json:"is_login_page"`
}

// --- Interface ---

// PermissionService owns per-(role, page) grants and the one-login-page-per-role rule.
type PermissionService interface {
	// SetPermission upserts the row for (roleID, page).
	SetPermission(ctx context.Context, roleID uuid.UUID, page string, flags PermissionFlags, isLoginPage bool) (*model.Permission, error)
	// CreatePermission inserts the row and fails with DuplicateKeyError if it exists.
	CreatePermission(ctx context.Context, roleID uuid.UUID, page string, flags PermissionFlags, isLoginPage bool) (*model.Permission, error)
	// GetPermission returns nil without error when the row is absent.
	GetPermission(ctx context.Context, roleID uuid.UUID, page string) (*model.Permission, error)
	ListPermissions(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error)
	RevokePermission(ctx context.Context, roleID uuid.UUID, page string) error
	// LoginPage returns the role's landing page, or "" when none is flagged.
	LoginPage(ctx context.Context, roleID uuid.UUID) (string, error)
}

type permissionService struct {
	roleRepo  repository.RoleRepository
	permRepo  repository.PermissionRepository
	txManager repository.TransactionManager
	grants    cache.GrantCache
	log       *logrus.Logger
}

func NewPermissionService(
	roleRepo repository.RoleRepository,
	permRepo repository.PermissionRepository,
	txManager repository.TransactionManager,
	grants cache.GrantCache,
	log *logrus.Logger,
) PermissionService {
	if grants == nil {
		grants = cache.Noop{}
	}
	return &permissionService{
		roleRepo:  roleRepo,
		permRepo:  permRepo,
		txManager: txManager,
		grants:    grants,
		log:       log,
	}
}

// --- Implementation ---

func (s *permissionService) SetPermission(ctx context.Context, roleID uuid.UUID, page string, flags PermissionFlags, isLoginPage bool) (*model.Permission, error) {
	return s.write(ctx, roleID, page, flags, isLoginPage, false)
}

func (s *permissionService) CreatePermission(ctx context.Context, roleID uuid.UUID, page string, flags PermissionFlags, isLoginPage bool) (*model.Permission, error) {
	return s.write(ctx, roleID, page, flags, isLoginPage, true)
}

// write locks the role row first so concurrent writers of one role serialize, then
// clears sibling login flags and writes the row, all in one transaction.
func (s *permissionService) write(ctx context.Context, roleID uuid.UUID, page string, flags PermissionFlags, isLoginPage, insertOnly bool) (*model.Permission, error) {
	page = strings.TrimSpace(page)
	if page == "" {
		return nil, &apperr.ValidationError{Field: "page", Message: "page is required"}
	}

	var saved model.Permission
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.roleRepo.FindByIDForUpdate(txCtx, roleID); err != nil {
			return apperr.Storage("lock role", err)
		}

		existing, err := s.permRepo.FindByRoleAndPage(txCtx, roleID, page)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return apperr.Storage("find permission", err)
		}
		if existing != nil && insertOnly {
			return &apperr.DuplicateKeyError{RoleID: roleID.String(), Page: page}
		}

		if isLoginPage {
			cleared, err := s.permRepo.ClearLoginPage(txCtx, roleID, page)
			if err != nil {
				return apperr.Storage("clear login page", err)
			}
			if cleared > 0 && s.log != nil {
				s.log.WithFields(logrus.Fields{"role_id": roleID, "page": page}).Debug("login page moved")
			}
		}

		if existing == nil {
			saved = model.Permission{RoleID: roleID, Page: page}
			applyFlags(&saved, flags, isLoginPage)
			if err := s.permRepo.Create(txCtx, &saved); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return &apperr.DuplicateKeyError{RoleID: roleID.String(), Page: page}
				}
				return apperr.Storage("create permission", err)
			}
			return nil
		}

		saved = *existing
		applyFlags(&saved, flags, isLoginPage)
		return apperr.Storage("update permission", s.permRepo.Update(txCtx, &saved))
	})
	if err != nil {
		return nil, err
	}

	s.grants.InvalidateRole(ctx, roleID)
	return &saved, nil
}

func (s *permissionService) GetPermission(ctx context.Context, roleID uuid.UUID, page string) (*model.Permission, error) {
	perm, err := s.permRepo.FindByRoleAndPage(ctx, roleID, strings.TrimSpace(page))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("get permission", err)
	}
	return perm, nil
}

func (s *permissionService) ListPermissions(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error) {
	if _, err := s.roleRepo.FindByID(ctx, roleID); err != nil {
		return nil, apperr.Storage("find role", err)
	}
	perms, err := s.permRepo.ListByRole(ctx, roleID)
	if err != nil {
		return nil, apperr.Storage("list permissions", err)
	}
	return perms, nil
}

func (s *permissionService) RevokePermission(ctx context.Context, roleID uuid.UUID, page string) error {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.roleRepo.FindByIDForUpdate(txCtx, roleID); err != nil {
			return apperr.Storage("lock role", err)
		}
		return apperr.Storage("delete permission", s.permRepo.Delete(txCtx, roleID, strings.TrimSpace(page)))
	})
	if err != nil {
		return err
	}
	s.grants.InvalidateRole(ctx, roleID)
	return nil
}

func (s *permissionService) LoginPage(ctx context.Context, roleID uuid.UUID) (string, error) {
	perm, err := s.permRepo.FindLoginPage(ctx, roleID)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Storage("find login page", err)
	}
	return perm.Page, nil
}

// --- Helpers ---

func applyFlags(p *model.Permission, flags PermissionFlags, isLoginPage bool) {
	p.CanView = flags.CanView
	p.CanAdd = flags.CanAdd
	p.CanEdit = flags.CanEdit
	p.CanDelete = flags.CanDelete
	p.IsLoginPage = isLoginPage
}
