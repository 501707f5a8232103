package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockbill/blockbill/app/models"
)

// pendingPaymentRepository implements the PendingPaymentRepository interface
type pendingPaymentRepository struct {
	db *gorm.DB
}

// NewPendingPaymentRepository creates a new pending payment repository instance
func NewPendingPaymentRepository(db *gorm.DB) PendingPaymentRepository {
	return &pendingPaymentRepository{db: db}
}

// Create inserts a new pending payment record
func (r *pendingPaymentRepository) Create(payment *models.PendingPayment) error {
	return r.db.Create(payment).Error
}

// GetByTxHash retrieves the pending payment carrying the given transaction
// hash, or nil when no record matches.
func (r *pendingPaymentRepository) GetByTxHash(txHash string) (*models.PendingPayment, error) {
	var payment models.PendingPayment
	err := r.db.Where("btc_tx = ?", txHash).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetUnsubmittedByContractID retrieves the pending payments for a contract
// that still have no transaction attached, oldest record first. Callers take
// the head of the list as the payment currently due.
func (r *pendingPaymentRepository) GetUnsubmittedByContractID(contractID uuid.UUID) ([]models.PendingPayment, error) {
	var payments []models.PendingPayment
	err := r.db.
		Where("btc_contract_id = ? AND btc_tx IS NULL", contractID).
		Order("id asc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// ListSubmittedTxHashes returns the hashes of all records whose transaction
// is submitted but not yet resolved.
func (r *pendingPaymentRepository) ListSubmittedTxHashes() ([]string, error) {
	var hashes []string
	err := r.db.Model(&models.PendingPayment{}).
		Where("btc_tx IS NOT NULL").
		Pluck("btc_tx", &hashes).Error
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// AttachTxHash sets the transaction hash on a record. The hash is written at
// most once per record, by the payment-submission step.
func (r *pendingPaymentRepository) AttachTxHash(recordID uint, txHash string) error {
	return r.db.Model(&models.PendingPayment{}).
		Where("id = ?", recordID).
		Update("btc_tx", txHash).Error
}

// Delete removes a pending payment record
func (r *pendingPaymentRepository) Delete(recordID uint) error {
	return r.db.Delete(&models.PendingPayment{}, recordID).Error
}

// List returns all pending payments, oldest first
func (r *pendingPaymentRepository) List() ([]models.PendingPayment, error) {
	var payments []models.PendingPayment
	err := r.db.Order("id asc").Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
