package models

import (
	"time"

	"github.com/google/uuid"
)

// Negotiation protocol calls recorded in the audit trail.
const (
	APICallCreateContract = "createContract"
	APICallPollForPayment = "pollForPayment"
	APICallCreatePayment  = "createPayment"
)

// TransactionLog is an append-only audit record of a negotiation protocol
// call. Rows are never updated or deleted.
type TransactionLog struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	AccountID      uuid.UUID  `gorm:"type:char(36);not null;index" json:"account_id"`
	SubscriptionID *uuid.UUID `gorm:"type:char(36);default:null" json:"subscription_id,omitempty"`
	ContractID     uuid.UUID  `gorm:"type:char(36);not null;index" json:"contract_id"`
	APICall        string     `gorm:"column:api_call;type:varchar(32);not null" json:"api_call"`
	CreatedAt      time.Time  `gorm:"column:created_date;autoCreateTime" json:"created_date"`
}

// TableName overrides the default GORM table name.
func (TransactionLog) TableName() string {
	return "transaction_logs"
}
