package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/nurpe/marketplace-ledger/internal/model"
)

type ContractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

func contractsForClient(profileID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("contracts.client_id = ?", profileID)
	}
}

func contractsForContractor(profileID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("contracts.contractor_id = ?", profileID)
	}
}

// ownedBy picks the ownership filter that matches the profile type.
func ownedBy(profile model.Profile) (func(*gorm.DB) *gorm.DB, error) {
	switch profile.Type {
	case model.ProfileTypeClient:
		return contractsForClient(profile.ID), nil
	case model.ProfileTypeContractor:
		return contractsForContractor(profile.ID), nil
	default:
		return nil, fmt.Errorf("unknown profile type %q", profile.Type)
	}
}

// ListActive returns the profile's contracts that are not terminated.
func (r *ContractRepository) ListActive(ctx context.Context, profile model.Profile) ([]model.Contract, error) {
	scope, err := ownedBy(profile)
	if err != nil {
		return nil, err
	}
	contracts := []model.Contract{}
	err = r.db.WithContext(ctx).
		Scopes(scope).
		Where("contracts.status <> ?", model.ContractStatusTerminated).
		Order("contracts.id ASC").
		Find(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *ContractRepository) GetForProfile(ctx context.Context, profile model.Profile, id uint) (*model.Contract, error) {
	scope, err := ownedBy(profile)
	if err != nil {
		return nil, err
	}
	var contract model.Contract
	err = r.db.WithContext(ctx).
		Scopes(scope).
		Where("contracts.id = ?", id).
		Take(&contract).Error
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// ListUnpaidJobs returns unpaid jobs under the profile's in-progress contracts.
func (r *ContractRepository) ListUnpaidJobs(ctx context.Context, profile model.Profile) ([]model.Job, error) {
	scope, err := ownedBy(profile)
	if err != nil {
		return nil, err
	}
	jobs := []model.Job{}
	err = r.db.WithContext(ctx).
		Select("jobs.*").
		Joins("JOIN contracts ON contracts.id = jobs.contract_id").
		Scopes(scope).
		Where("contracts.status = ?", model.ContractStatusInProgress).
		Where("jobs.paid IS NULL").
		Order("jobs.id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetReceipt loads a paid job and both parties, provided the profile is one
// of them.
func (r *ContractRepository) GetReceipt(ctx context.Context, profile model.Profile, jobID uint) (*model.PaymentReceipt, error) {
	scope, err := ownedBy(profile)
	if err != nil {
		return nil, err
	}
	db := r.db.WithContext(ctx)

	var job model.Job
	err = db.
		Select("jobs.*").
		Joins("JOIN contracts ON contracts.id = jobs.contract_id").
		Scopes(scope).
		Where("jobs.id = ?", jobID).
		Where("jobs.paid = ?", true).
		Take(&job).Error
	if err != nil {
		return nil, err
	}

	receipt := model.PaymentReceipt{Job: job}
	if err := db.Where("id = ?", job.ContractID).Take(&receipt.Contract).Error; err != nil {
		return nil, err
	}
	if err := db.Where("id = ?", receipt.Contract.ClientID).Take(&receipt.Client).Error; err != nil {
		return nil, err
	}
	if err := db.Where("id = ?", receipt.Contract.ContractorID).Take(&receipt.Contractor).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}
