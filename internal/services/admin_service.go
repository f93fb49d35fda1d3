package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/parishworks/lychgate/internal/models"
	pkglogger "github.com/parishworks/lychgate/pkg/logger"
)

// LockoutAdminRepository is the record access the admin service needs.
type LockoutAdminRepository interface {
	GetRecord(ctx context.Context, email string) (*models.LockoutRecord, error)
	DeleteRecord(ctx context.Context, email string) error
}

// AdminService exposes the support operations on lockout records. Clearing
// a record here is the only way a permanent block is ever lifted.
type AdminService struct {
	repo        LockoutAdminRepository
	engine      *LockoutEngine
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAdminService creates a new AdminService
func NewAdminService(repo LockoutAdminRepository, engine *LockoutEngine, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AdminService {
	return &AdminService{
		repo:        repo,
		engine:      engine,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// LockoutView is the admin dashboard projection of one record.
type LockoutView struct {
	Email  string                `json:"email"`
	Record *models.LockoutRecord `json:"record"`
	Status models.LockoutStatus  `json:"status"`
}

// GetLockout returns the stored record alongside its evaluated status.
func (s *AdminService) GetLockout(ctx context.Context, email string) (*LockoutView, error) {
	email = models.NormalizeEmail(email)

	record, err := s.repo.GetRecord(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to get lockout record", slog.String("email", email), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	status, _ := s.engine.Evaluate(record, time.Now())
	return &LockoutView{
		Email:  email,
		Record: record,
		Status: status,
	}, nil
}

// UnlockAccount deletes the lockout record for an email, clearing temporary
// and permanent blocks alike and zeroing the escalation count.
func (s *AdminService) UnlockAccount(ctx context.Context, email, adminID string) error {
	email = models.NormalizeEmail(email)

	if err := s.repo.DeleteRecord(ctx, email); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to delete lockout record", slog.String("email", email), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("lockout cleared", slog.String("email", email), slog.String("admin_id", adminID))
	s.auditLogger.LogLockoutEvent("lockout_cleared", email, map[string]string{
		"cleared_by": adminID,
	})
	return nil
}
