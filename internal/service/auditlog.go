package service

import (
	"context"
	"strings"

	"github.com/ukydev/fleet-logbook/internal/models"
)

// AuditService lists recorded audit entries.
type AuditService struct {
	d Deps
}

// NewAuditService creates an AuditService.
func NewAuditService(d Deps) *AuditService {
	return &AuditService{d: d}
}

// List pages entries newest first, optionally for one action.
func (s *AuditService) List(ctx context.Context, action string, page int) (models.AuditPage, error) {
	page, skip, limit, err := window(page, s.d.Settings.HistoryPageSize)
	if err != nil {
		return models.AuditPage{}, err
	}
	entries, total, err := s.d.AuditLog.FindAudit(ctx, strings.TrimSpace(action), skip, limit)
	if err != nil {
		return models.AuditPage{}, storeError("audit entry", err)
	}
	return models.AuditPage{Items: entries, Total: total, Page: page, PageSize: int(limit)}, nil
}
