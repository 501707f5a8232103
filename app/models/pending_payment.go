package models

import (
	"time"

	"github.com/google/uuid"
)

// PendingPayment tracks a billing payment that is waiting for its bitcoin
// transaction to reach the configured confidence depth. BtcTxHash stays NULL
// until the payer submits a transaction through the payment endpoint; once the
// transaction is confirmed deep enough the record is deleted, whether or not
// the billing platform accepted the notification.
type PendingPayment struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	PaymentID     uuid.UUID  `gorm:"type:char(36);not null;index" json:"payment_id"`
	AccountID     uuid.UUID  `gorm:"type:char(36);not null" json:"account_id"`
	TenantID      *uuid.UUID `gorm:"type:char(36);default:null" json:"tenant_id,omitempty"`
	BtcTxHash     *string    `gorm:"column:btc_tx;type:varchar(64);default:null;index" json:"btc_tx,omitempty"`
	BtcContractID uuid.UUID  `gorm:"type:char(36);not null;index" json:"btc_contract_id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName overrides the default GORM table name.
func (PendingPayment) TableName() string {
	return "pending_payments"
}

// Submitted reports whether a transaction has already been attached to this
// record. An unsubmitted record is still awaiting payment from the payer.
func (p *PendingPayment) Submitted() bool {
	return p.BtcTxHash != nil && *p.BtcTxHash != ""
}
