package model

import "time"

// ExchangeOutcome state of an exchange record.
type ExchangeOutcome string

const (
	OutcomePending  ExchangeOutcome = "pending"
	OutcomeApproved ExchangeOutcome = "approved"
	OutcomeRejected ExchangeOutcome = "rejected"
)

// ExchangeRecord immutable audit of one completed swap, table shift_exchanges
type ExchangeRecord struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"                    json:"id"`
	FromShiftID   int64           `gorm:"not null"                                    json:"from_shift_id"`
	ToShiftID     int64           `gorm:"not null"                                    json:"to_shift_id"`
	RequestedByID *int64          `json:"requested_by_id,omitempty"`
	Outcome       ExchangeOutcome `gorm:"type:varchar(10);not null;default:'pending'" json:"outcome"`
	Comment       string          `gorm:"type:text;not null;default:''"               json:"comment"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"          json:"created_at"`

	FromShift *Shift `gorm:"foreignKey:FromShiftID;references:ID" json:"from_shift,omitempty"`
	ToShift   *Shift `gorm:"foreignKey:ToShiftID;references:ID"   json:"to_shift,omitempty"`
}

func (ExchangeRecord) TableName() string { return "shift_exchanges" }

// ShiftChangeLog ownership change of one shift (interactive path only), table shift_change_logs
type ShiftChangeLog struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement"           json:"id"`
	ShiftID            int64     `gorm:"not null"                           json:"shift_id"`
	OriginalIdentityID int64     `gorm:"not null"                           json:"original_identity_id"`
	NewIdentityID      int64     `gorm:"not null"                           json:"new_identity_id"`
	ChangeType         string    `gorm:"type:varchar(20);not null"          json:"change_type"` // exchange
	Reason             string    `gorm:"type:varchar(500)"                  json:"reason,omitempty"`
	OperatorID         *int64    `json:"operator_id,omitempty"`
	CreatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ShiftChangeLog) TableName() string { return "shift_change_logs" }

// ChangeTypeExchange is written for both rows of a swap.
const ChangeTypeExchange = "exchange"
