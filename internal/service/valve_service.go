package service

import (
	"context"
	"errors"
	"strings"

	"waterworks/internal/apperr"
	"waterworks/internal/model"
	"waterworks/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Events pushed to live clients.
const (
	EventValveCreated = "valve.created"
	EventValveUpdated = "valve.updated"
	EventValveDeleted = "valve.deleted"
)

// EventPublisher fans out domain events; implementations must not block.
type EventPublisher interface {
	Publish(event string, data any)
}

// --- DTOs ---

type CreateValveRequest struct {
	Name              string               `json:"name" binding:"required"`
	Size              string               `json:"size" binding:"required"`
	FullOpenCondition decimal.Decimal      `json:"full_open_condition"`
	CurrentCondition  decimal.Decimal      `json:"current_condition"`
	MidPoint          *decimal.NullDecimal `json:"mid_point"`
	Steepness         *decimal.NullDecimal `json:"steepness"`
	Remarks           string               `json:"remarks"`
	Latitude          *float64             `json:"latitude"`
	Longitude         *float64             `json:"longitude"`
	ProvideArea       *string              `json:"provide_area"`
	ResponsibleRoleID *uuid.UUID           `json:"responsible_role_id"`
}

// ValveChangeResponse is the outcome of an audited update.
type ValveChangeResponse struct {
	Valve   *model.Valve     `json:"valve"`
	Changes []model.ValveLog `json:"changes"`
}

// --- Interface ---

type ValveService interface {
	ListValves(ctx context.Context, filter repository.ValveFilter, page, limit int) ([]model.Valve, int64, error)
	GetValve(ctx context.Context, id uuid.UUID) (*model.Valve, error)
	CreateValve(ctx context.Context, req CreateValveRequest) (*model.Valve, error)
	// UpdateValve applies a partial update as the actor carried by ctx.
	UpdateValve(ctx context.Context, id uuid.UUID, proposed map[string]any) (*ValveChangeResponse, error)
	DeleteValve(ctx context.Context, id uuid.UUID) error
}

type valveService struct {
	valveRepo repository.ValveRepository
	roleRepo  repository.RoleRepository
	auditor   *ChangeAuditor
	events    EventPublisher
	log       *logrus.Logger
}

func NewValveService(
	valveRepo repository.ValveRepository,
	roleRepo repository.RoleRepository,
	auditor *ChangeAuditor,
	events EventPublisher,
	log *logrus.Logger,
) ValveService {
	return &valveService{
		valveRepo: valveRepo,
		roleRepo:  roleRepo,
		auditor:   auditor,
		events:    events,
		log:       log,
	}
}

// --- Implementation ---

func (s *valveService) ListValves(ctx context.Context, filter repository.ValveFilter, page, limit int) ([]model.Valve, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	filter.Name = strings.TrimSpace(filter.Name)
	filter.Area = strings.TrimSpace(filter.Area)

	valves, total, err := s.valveRepo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, apperr.Storage("list valves", err)
	}
	if valves == nil {
		valves = []model.Valve{}
	}
	return valves, total, nil
}

func (s *valveService) GetValve(ctx context.Context, id uuid.UUID) (*model.Valve, error) {
	valve, err := s.valveRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get valve", err)
	}
	return valve, nil
}

func (s *valveService) CreateValve(ctx context.Context, req CreateValveRequest) (*model.Valve, error) {
	valve := &model.Valve{
		Name:              strings.TrimSpace(req.Name),
		Size:              strings.TrimSpace(req.Size),
		FullOpenCondition: req.FullOpenCondition,
		CurrentCondition:  req.CurrentCondition,
		MidPoint:          decimal.NewNullDecimal(model.DefaultMidPoint),
		Steepness:         decimal.NewNullDecimal(model.DefaultSteepness),
		Remarks:           req.Remarks,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		ProvideArea:       req.ProvideArea,
		ResponsibleRoleID: req.ResponsibleRoleID,
	}
	if req.MidPoint != nil {
		valve.MidPoint = *req.MidPoint
	}
	if req.Steepness != nil {
		valve.Steepness = *req.Steepness
	}

	if err := validateNewValve(valve); err != nil {
		return nil, err
	}
	if err := s.ensureRoleExists(ctx, valve.ResponsibleRoleID); err != nil {
		return nil, err
	}

	if err := s.valveRepo.Create(ctx, valve); err != nil {
		return nil, apperr.Storage("create valve", err)
	}

	s.publish(EventValveCreated, valve)
	return valve, nil
}

func (s *valveService) UpdateValve(ctx context.Context, id uuid.UUID, proposed map[string]any) (*ValveChangeResponse, error) {
	if raw, ok := proposed[model.ValveFieldResponsibleRoleID]; ok {
		roleID, err := toOptionalUUID(raw)
		if err != nil {
			return nil, &apperr.ValidationError{Field: model.ValveFieldResponsibleRoleID, Message: err.Error()}
		}
		if err := s.ensureRoleExists(ctx, roleID); err != nil {
			return nil, err
		}
	}

	updated, changes, err := s.auditor.UpdateByID(ctx, id, ActorFromContext(ctx), proposed)
	if err != nil {
		return nil, err
	}
	if changes == nil {
		changes = []model.ValveLog{}
	}

	if len(changes) > 0 {
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"valve_id": id,
				"changes":  len(changes),
			}).Info("valve updated")
		}
		s.publish(EventValveUpdated, ValveChangeResponse{Valve: updated, Changes: changes})
	}
	return &ValveChangeResponse{Valve: updated, Changes: changes}, nil
}

func (s *valveService) DeleteValve(ctx context.Context, id uuid.UUID) error {
	if err := s.valveRepo.Delete(ctx, id); err != nil {
		return apperr.Storage("delete valve", err)
	}
	s.publish(EventValveDeleted, map[string]string{"id": id.String()})
	return nil
}

// --- Helpers ---

func (s *valveService) ensureRoleExists(ctx context.Context, roleID *uuid.UUID) error {
	if roleID == nil {
		return nil
	}
	_, err := s.roleRepo.FindByID(ctx, *roleID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &apperr.ValidationError{Field: model.ValveFieldResponsibleRoleID, Message: "role does not exist"}
	}
	return apperr.Storage("find role", err)
}

func (s *valveService) publish(event string, data any) {
	if s.events != nil {
		s.events.Publish(event, data)
	}
}

func validateNewValve(v *model.Valve) error {
	if v.Name == "" {
		return &apperr.ValidationError{Field: model.ValveFieldName, Message: "name is required"}
	}
	if v.Size == "" {
		return &apperr.ValidationError{Field: model.ValveFieldSize, Message: "size is required"}
	}
	if err := checkBounds(model.ValveFieldFullOpenCondition, v.FullOpenCondition, conditionMax); err != nil {
		return err
	}
	if err := checkBounds(model.ValveFieldCurrentCondition, v.CurrentCondition, conditionMax); err != nil {
		return err
	}
	if err := checkNullBounds(model.ValveFieldMidPoint, v.MidPoint, midPointMax); err != nil {
		return err
	}
	if err := checkNullBounds(model.ValveFieldSteepness, v.Steepness, steepnessMax); err != nil {
		return err
	}
	if v.CurrentCondition.GreaterThan(v.FullOpenCondition) {
		return &apperr.RangeViolationError{
			Field:   model.ValveFieldCurrentCondition,
			Message: rangeMessage,
		}
	}
	return nil
}
