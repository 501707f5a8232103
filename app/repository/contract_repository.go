package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockbill/blockbill/app/models"
)

// contractRepository implements the ContractRepository interface
type contractRepository struct {
	db *gorm.DB
}

// NewContractRepository creates a new contract repository instance
func NewContractRepository(db *gorm.DB) ContractRepository {
	return &contractRepository{db: db}
}

// Create inserts a new contract record
func (r *contractRepository) Create(contract *models.Contract) error {
	return r.db.Create(contract).Error
}

// GetByContractID retrieves a contract by its negotiated contract id, or nil
// when none exists.
func (r *contractRepository) GetByContractID(contractID uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	err := r.db.Where("contract_id = ?", contractID).First(&contract).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// GetByEntityID retrieves the contract chain for a billed entity, oldest first.
func (r *contractRepository) GetByEntityID(entityID uuid.UUID) ([]models.Contract, error) {
	var contracts []models.Contract
	err := r.db.Where("entity_id = ?", entityID).Order("id asc").Find(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}
