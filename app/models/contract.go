package models

import (
	"time"

	"github.com/google/uuid"
)

// Billing alignments a contract can be scoped to. Only per-subscription
// alignment is supported; bundle and account alignments are rejected during
// negotiation.
const (
	AlignmentSubscription = "SUBSCRIPTION"
	AlignmentBundle       = "BUNDLE"
	AlignmentAccount      = "ACCOUNT"
)

// Contract is a negotiated recurring-payment agreement for one billed entity.
// Start and end dates are inclusive bounds on the billing periods covered.
// Contracts are immutable; a plan change produces a new contract whose start
// date equals the superseded contract's end date.
type Contract struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	EntityID   uuid.UUID  `gorm:"type:char(36);not null;index" json:"entity_id"`
	ObjectType string     `gorm:"type:varchar(32);not null" json:"object_type"`
	ContractID uuid.UUID  `gorm:"type:char(36);not null;uniqueIndex" json:"contract_id"`
	StartDate  time.Time  `gorm:"type:date;not null" json:"start_date"`
	EndDate    *time.Time `gorm:"type:date;default:null" json:"end_date,omitempty"`
	CreatedAt  time.Time  `gorm:"column:created_date;autoCreateTime" json:"created_date"`
}

// TableName overrides the default GORM table name.
func (Contract) TableName() string {
	return "contracts"
}
