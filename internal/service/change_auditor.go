package service

import (
	"context"
	"errors"

	"waterworks/internal/apperr"
	"waterworks/internal/metrics"
	"waterworks/internal/model"
	"waterworks/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const rangeMessage = "Current condition must be less than or equal to full open condition."

var (
	conditionMax = decimal.NewFromInt(1000)
	midPointMax  = decimal.NewFromInt(1)
	steepnessMax = decimal.NewFromInt(100)
)

// valveFields is the audited surface of a valve.
var valveFields = NewTracker[model.Valve](
	StringField(model.ValveFieldName,
		func(v *model.Valve) string { return v.Name },
		func(v *model.Valve, s string) { v.Name = s }),
	StringField(model.ValveFieldSize,
		func(v *model.Valve) string { return v.Size },
		func(v *model.Valve, s string) { v.Size = s }),
	DecimalField(model.ValveFieldFullOpenCondition,
		func(v *model.Valve) decimal.Decimal { return v.FullOpenCondition },
		func(v *model.Valve, d decimal.Decimal) { v.FullOpenCondition = d }),
	DecimalField(model.ValveFieldCurrentCondition,
		func(v *model.Valve) decimal.Decimal { return v.CurrentCondition },
		func(v *model.Valve, d decimal.Decimal) { v.CurrentCondition = d }),
	NullDecimalField(model.ValveFieldMidPoint,
		func(v *model.Valve) decimal.NullDecimal { return v.MidPoint },
		func(v *model.Valve, d decimal.NullDecimal) { v.MidPoint = d }),
	NullDecimalField(model.ValveFieldSteepness,
		func(v *model.Valve) decimal.NullDecimal { return v.Steepness },
		func(v *model.Valve, d decimal.NullDecimal) { v.Steepness = d }),
	StringField(model.ValveFieldRemarks,
		func(v *model.Valve) string { return v.Remarks },
		func(v *model.Valve, s string) { v.Remarks = s }),
	OptionalFloatField(model.ValveFieldLatitude,
		func(v *model.Valve) *float64 { return v.Latitude },
		func(v *model.Valve, f *float64) { v.Latitude = f }),
	OptionalFloatField(model.ValveFieldLongitude,
		func(v *model.Valve) *float64 { return v.Longitude },
		func(v *model.Valve, f *float64) { v.Longitude = f }),
	OptionalStringField(model.ValveFieldProvideArea,
		func(v *model.Valve) *string { return v.ProvideArea },
		func(v *model.Valve, s *string) { v.ProvideArea = s }),
	OptionalUUIDField(model.ValveFieldResponsibleRoleID,
		func(v *model.Valve) *uuid.UUID { return v.ResponsibleRoleID },
		func(v *model.Valve, id *uuid.UUID) { v.ResponsibleRoleID = id }),
)

// ChangeAuditor applies field updates to valves and records one log entry per changed field.
//
// Concurrent updates of the same valve are not serialized: each diff is computed against
// the row its transaction read, and the last commit wins on the valve itself.
type ChangeAuditor struct {
	valveRepo repository.ValveRepository
	logRepo   repository.ValveLogRepository
	txManager repository.TransactionManager
	metrics   *metrics.Metrics
}

func NewChangeAuditor(valveRepo repository.ValveRepository, logRepo repository.ValveLogRepository, txManager repository.TransactionManager, m *metrics.Metrics) *ChangeAuditor {
	return &ChangeAuditor{valveRepo: valveRepo, logRepo: logRepo, txManager: txManager, metrics: m}
}

// ApplyUpdate validates proposed against valve, then in one transaction writes a log entry
// per changed field, snapshots previous_position when current_condition changes, and saves
// the valve once. valve itself is left untouched; the updated copy is returned.
// Proposals that change nothing write nothing.
func (a *ChangeAuditor) ApplyUpdate(ctx context.Context, valve *model.Valve, actor *Actor, proposed map[string]any) (*model.Valve, []model.ValveLog, error) {
	proposal, err := valveFields.Parse(proposed)
	if err != nil {
		return nil, nil, err
	}

	var (
		updated *model.Valve
		entries []model.ValveLog
	)
	err = a.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var applyErr error
		updated, entries, applyErr = a.apply(txCtx, valve, actor, proposal)
		return applyErr
	})
	if err != nil {
		return nil, nil, err
	}
	a.countChanges(entries)
	return updated, entries, nil
}

// UpdateByID is ApplyUpdate against the row read inside the update's own transaction.
func (a *ChangeAuditor) UpdateByID(ctx context.Context, id uuid.UUID, actor *Actor, proposed map[string]any) (*model.Valve, []model.ValveLog, error) {
	proposal, err := valveFields.Parse(proposed)
	if err != nil {
		return nil, nil, err
	}

	var (
		updated *model.Valve
		entries []model.ValveLog
	)
	err = a.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		valve, loadErr := a.valveRepo.FindByID(txCtx, id)
		if loadErr != nil {
			return apperr.Storage("get valve", loadErr)
		}
		var applyErr error
		updated, entries, applyErr = a.apply(txCtx, valve, actor, proposal)
		return applyErr
	})
	if err != nil {
		return nil, nil, err
	}
	a.countChanges(entries)
	return updated, entries, nil
}

// apply must run inside a transaction.
func (a *ChangeAuditor) apply(ctx context.Context, valve *model.Valve, actor *Actor, proposal *Proposal[model.Valve]) (*model.Valve, []model.ValveLog, error) {
	if err := validateValveProposal(valve, proposal); err != nil {
		var outRange *apperr.RangeViolationError
		if errors.As(err, &outRange) {
			a.metrics.RangeRejection()
		}
		return nil, nil, err
	}

	updated := *valve
	changes := proposal.Diff(valve)
	if len(changes) == 0 {
		return &updated, nil, nil
	}

	var userID *uuid.UUID
	if actor != nil {
		id := actor.ID
		userID = &id
	}

	entries := make([]model.ValveLog, 0, len(changes))
	for _, c := range changes {
		entries = append(entries, model.ValveLog{
			ValveID:      valve.ID,
			UserID:       userID,
			ChangedField: c.Field,
			OldValue:     c.OldValue,
			NewValue:     c.NewValue,
		})
		if c.Field == model.ValveFieldCurrentCondition {
			updated.PreviousPosition = c.OldValue
		}
	}
	proposal.ApplyTo(&updated)

	if err := a.logRepo.Append(ctx, entries); err != nil {
		return nil, nil, apperr.Storage("append valve log", err)
	}
	if err := a.valveRepo.Update(ctx, &updated); err != nil {
		return nil, nil, apperr.Storage("update valve", err)
	}
	return &updated, entries, nil
}

func (a *ChangeAuditor) countChanges(entries []model.ValveLog) {
	for _, e := range entries {
		a.metrics.ValveChange(e.ChangedField)
	}
}

// validateValveProposal runs before any diffing so a rejected update writes nothing.
func validateValveProposal(valve *model.Valve, p *Proposal[model.Valve]) error {
	if p.Has(model.ValveFieldName) && p.Value(model.ValveFieldName).(string) == "" {
		return &apperr.ValidationError{Field: model.ValveFieldName, Message: "name is required"}
	}
	if p.Has(model.ValveFieldSize) && p.Value(model.ValveFieldSize).(string) == "" {
		return &apperr.ValidationError{Field: model.ValveFieldSize, Message: "size is required"}
	}

	fullOpen := valve.FullOpenCondition
	if p.Has(model.ValveFieldFullOpenCondition) {
		fullOpen = p.Value(model.ValveFieldFullOpenCondition).(decimal.Decimal)
		if err := checkBounds(model.ValveFieldFullOpenCondition, fullOpen, conditionMax); err != nil {
			return err
		}
	}
	current := valve.CurrentCondition
	if p.Has(model.ValveFieldCurrentCondition) {
		current = p.Value(model.ValveFieldCurrentCondition).(decimal.Decimal)
		if err := checkBounds(model.ValveFieldCurrentCondition, current, conditionMax); err != nil {
			return err
		}
	}
	if p.Has(model.ValveFieldMidPoint) {
		if err := checkNullBounds(model.ValveFieldMidPoint, p.Value(model.ValveFieldMidPoint).(decimal.NullDecimal), midPointMax); err != nil {
			return err
		}
	}
	if p.Has(model.ValveFieldSteepness) {
		if err := checkNullBounds(model.ValveFieldSteepness, p.Value(model.ValveFieldSteepness).(decimal.NullDecimal), steepnessMax); err != nil {
			return err
		}
	}

	if !p.Has(model.ValveFieldCurrentCondition) && !p.Has(model.ValveFieldFullOpenCondition) {
		return nil
	}
	if current.GreaterThan(fullOpen) {
		field := model.ValveFieldCurrentCondition
		if !p.Has(field) {
			field = model.ValveFieldFullOpenCondition
		}
		return &apperr.RangeViolationError{
			Field:   field,
			Message: rangeMessage,
		}
	}
	return nil
}

func checkBounds(field string, v, max decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(max) {
		return &apperr.ValidationError{Field: field, Message: "must be between 0 and " + max.String()}
	}
	return nil
}

func checkNullBounds(field string, v decimal.NullDecimal, max decimal.Decimal) error {
	if !v.Valid {
		return nil
	}
	return checkBounds(field, v.Decimal, max)
}
