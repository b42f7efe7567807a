package audit

import (
	"time"

	"github.com/shopspring/decimal"
)

type Operation string

const (
	OpCreate   Operation = "create"
	OpFund     Operation = "fund"
	OpDisburse Operation = "disburse"
	OpRepay    Operation = "repay"
)

// Table: loan_events
type Event struct {
	// Internal numeric PK
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	// Public identifier (32-char lowercase hex)
	EventID   string          `gorm:"column:event_id;size:32;not null;uniqueIndex:ux_loan_events_event_id" json:"event_id"`
	LoanID    uint64          `gorm:"column:loan_id;not null;index:idx_loan_events_loan" json:"loan_id"`
	Operation Operation       `gorm:"column:operation;size:16;not null" json:"operation"`
	Actor     string          `gorm:"column:actor;size:42" json:"actor"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(36,18)" json:"amount"`
	TxRef     string          `gorm:"column:tx_ref;size:66" json:"tx_ref,omitempty"`
	Backend   string          `gorm:"column:backend;size:8;not null" json:"backend"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Event) TableName() string { return "loan_events" }
