package mysql

import (
	"context"

	auditDomain "loan-lifecycle-bridge/internal/domain/audit"

	"gorm.io/gorm"
)

type AuditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) *AuditRepository { return &AuditRepository{db: db} }

// Migrate creates the loan_events table when missing.
func (r *AuditRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&auditDomain.Event{})
}

func (r *AuditRepository) Create(ctx context.Context, e *auditDomain.Event) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *AuditRepository) ListByLoanID(ctx context.Context, loanID uint64) ([]auditDomain.Event, error) {
	var out []auditDomain.Event
	res := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("created_at ASC, id ASC").
		Find(&out)
	return out, res.Error
}
