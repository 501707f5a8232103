package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockbill/blockbill/app/models"
)

// transactionLogRepository implements the TransactionLogRepository interface
type transactionLogRepository struct {
	db *gorm.DB
}

// NewTransactionLogRepository creates a new transaction log repository instance
func NewTransactionLogRepository(db *gorm.DB) TransactionLogRepository {
	return &transactionLogRepository{db: db}
}

// Create appends an audit record. There is deliberately no update or delete.
func (r *transactionLogRepository) Create(entry *models.TransactionLog) error {
	return r.db.Create(entry).Error
}

// GetByContractID returns the audit trail for a contract, oldest first.
func (r *transactionLogRepository) GetByContractID(contractID uuid.UUID) ([]models.TransactionLog, error) {
	var entries []models.TransactionLog
	err := r.db.Where("contract_id = ?", contractID).Order("id asc").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
