package repository

import (
	"context"

	"waterworks/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ValveFilter narrows valve listings; empty fields are ignored.
type ValveFilter struct {
	Name string
	Area string
}

type ValveRepository interface {
	Create(ctx context.Context, valve *model.Valve) error
	Update(ctx context.Context, valve *model.Valve) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Valve, error)
	List(ctx context.Context, filter ValveFilter, page, limit int) ([]model.Valve, int64, error)
}

type valveRepository struct {
	db *gorm.DB
}

func NewValveRepository(db *gorm.DB) ValveRepository {
	return &valveRepository{db: db}
}

func (r *valveRepository) Create(ctx context.Context, valve *model.Valve) error {
	return translate(GetDB(ctx, r.db).Omit("ResponsibleRole", "Logs").Create(valve).Error)
}

func (r *valveRepository) Update(ctx context.Context, valve *model.Valve) error {
	return translate(GetDB(ctx, r.db).Omit("ResponsibleRole", "Logs").Save(valve).Error)
}

func (r *valveRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Valve{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *valveRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Valve, error) {
	var valve model.Valve
	if err := GetDB(ctx, r.db).First(&valve, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &valve, nil
}

func (r *valveRepository) List(ctx context.Context, filter ValveFilter, page, limit int) ([]model.Valve, int64, error) {
	var valves []model.Valve
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Valve{})
	if filter.Name != "" {
		db = db.Where("name ILIKE ?", "%"+filter.Name+"%")
	}
	if filter.Area != "" {
		db = db.Where("provide_area ILIKE ?", "%"+filter.Area+"%")
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("provide_area asc nulls last, name asc").Offset(offset).Limit(limit).Find(&valves).Error; err != nil {
		return nil, 0, err
	}

	return valves, total, nil
}
