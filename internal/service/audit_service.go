package service

import (
	"context"

	"waterworks/internal/apperr"
	"waterworks/internal/repository"

	"github.com/google/uuid"
)

type ValveLogResponse struct {
	ID           string `json:"id"`
	ValveID      string `json:"valve_id"`
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	ChangedField string `json:"changed_field"`
	OldValue     string `json:"old_value"`
	NewValue     string `json:"new_value"`
	Timestamp    string `json:"timestamp"`
}

type AuditService interface {
	// ListValveLogs returns a valve's change history, oldest first.
	ListValveLogs(ctx context.Context, valveID uuid.UUID) ([]ValveLogResponse, error)
}

type auditService struct {
	valveRepo repository.ValveRepository
	logRepo   repository.ValveLogRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(valveRepo repository.ValveRepository, logRepo repository.ValveLogRepository) AuditService {
	return &auditService{valveRepo: valveRepo, logRepo: logRepo}
}

func (s *auditService) ListValveLogs(ctx context.Context, valveID uuid.UUID) ([]ValveLogResponse, error) {
	if _, err := s.valveRepo.FindByID(ctx, valveID); err != nil {
		return nil, apperr.Storage("get valve", err)
	}

	logs, err := s.logRepo.ListByValve(ctx, valveID)
	if err != nil {
		return nil, apperr.Storage("list valve logs", err)
	}

	res := make([]ValveLogResponse, 0, len(logs))
	for _, l := range logs {
		// Entries outlive their author; those show as System.
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, ValveLogResponse{
			ID:           l.ID.String(),
			ValveID:      l.ValveID.String(),
			UserID:       userID,
			Username:     username,
			ChangedField: l.ChangedField,
			OldValue:     l.OldValue,
			NewValue:     l.NewValue,
			Timestamp:    l.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}

	return res, nil
}
