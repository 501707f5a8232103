package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockbill/blockbill/app/models"
)

// PendingPaymentRepository defines the interface for pending-payment store
// operations. Each operation is individually atomic; that is the only
// concurrency guarantee the reconciliation engine relies on.
type PendingPaymentRepository interface {
	Create(payment *models.PendingPayment) error
	// GetByTxHash returns nil (and no error) when no record matches; an absent
	// record is a normal outcome for duplicate confirmation events.
	GetByTxHash(txHash string) (*models.PendingPayment, error)
	// GetUnsubmittedByContractID returns the pending payments for a contract
	// that have no transaction attached yet, oldest first by record id.
	GetUnsubmittedByContractID(contractID uuid.UUID) ([]models.PendingPayment, error)
	// ListSubmittedTxHashes returns the transaction hashes of every pending
	// payment awaiting confirmation. The chain client polls exactly this set.
	ListSubmittedTxHashes() ([]string, error)
	AttachTxHash(recordID uint, txHash string) error
	Delete(recordID uint) error
	List() ([]models.PendingPayment, error)
}

// ContractRepository defines the interface for contract store operations.
// Contracts are insert-only; plan changes supersede, never mutate.
type ContractRepository interface {
	Create(contract *models.Contract) error
	GetByContractID(contractID uuid.UUID) (*models.Contract, error)
	GetByEntityID(entityID uuid.UUID) ([]models.Contract, error)
}

// TransactionLogRepository defines the interface for the append-only audit trail.
type TransactionLogRepository interface {
	Create(entry *models.TransactionLog) error
	GetByContractID(contractID uuid.UUID) ([]models.TransactionLog, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	PendingPayment PendingPaymentRepository
	Contract       ContractRepository
	TransactionLog TransactionLogRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		PendingPayment: NewPendingPaymentRepository(db),
		Contract:       NewContractRepository(db),
		TransactionLog: NewTransactionLogRepository(db),
	}
}
