package repository

import (
	"context"

	"waterworks/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PermissionRepository interface {
	Create(ctx context.Context, perm *model.Permission) error
	Update(ctx context.Context, perm *model.Permission) error
	FindByRoleAndPage(ctx context.Context, roleID uuid.UUID, page string) (*model.Permission, error)
	FindLoginPage(ctx context.Context, roleID uuid.UUID) (*model.Permission, error)
	ListByRole(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error)
	ClearLoginPage(ctx context.Context, roleID uuid.UUID, exceptPage string) (int64, error)
	Delete(ctx context.Context, roleID uuid.UUID, page string) error
	DeleteByRole(ctx context.Context, roleID uuid.UUID) error
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Create(ctx context.Context, perm *model.Permission) error {
	return translate(GetDB(ctx, r.db).Create(perm).Error)
}

func (r *permissionRepository) Update(ctx context.Context, perm *model.Permission) error {
	return translate(GetDB(ctx, r.db).Save(perm).Error)
}

func (r *permissionRepository) FindByRoleAndPage(ctx context.Context, roleID uuid.UUID, page string) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).Where("role_id = ? AND page = ?", roleID, page).First(&perm).Error; err != nil {
		return nil, translate(err)
	}
	return &perm, nil
}

func (r *permissionRepository) FindLoginPage(ctx context.Context, roleID uuid.UUID) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).Where("role_id = ? AND is_login_page = ?", roleID, true).First(&perm).Error; err != nil {
		return nil, translate(err)
	}
	return &perm, nil
}

func (r *permissionRepository) ListByRole(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error) {
	var perms []model.Permission
	if err := GetDB(ctx, r.db).Where("role_id = ?", roleID).Order("page asc").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

// ClearLoginPage drops the login flag from every row of the role except exceptPage.
func (r *permissionRepository) ClearLoginPage(ctx context.Context, roleID uuid.UUID, exceptPage string) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Permission{}).
		Where("role_id = ? AND is_login_page = ? AND page <> ?", roleID, true, exceptPage).
		Update("is_login_page", false)
	return res.RowsAffected, res.Error
}

func (r *permissionRepository) Delete(ctx context.Context, roleID uuid.UUID, page string) error {
	res := GetDB(ctx, r.db).Where("role_id = ? AND page = ?", roleID, page).Delete(&model.Permission{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *permissionRepository) DeleteByRole(ctx context.Context, roleID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("role_id = ?", roleID).Delete(&model.Permission{}).Error
}
