package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nurpe/marketplace-ledger/internal/model"
)

// LedgerRepository runs balance mutations. Every read inside WithinTx takes a
// row lock, so two transactions touching the same profile or job serialize.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (r *LedgerRepository) WithinTx(ctx context.Context, fn func(tx *LedgerTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&LedgerTx{db: tx})
	})
}

type LedgerTx struct {
	db *gorm.DB
}

func (t *LedgerTx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// LockProfile returns gorm.ErrRecordNotFound when the profile does not exist.
func (t *LedgerTx) LockProfile(id uint) (*model.Profile, error) {
	var profile model.Profile
	if err := t.forUpdate().Where("id = ?", id).Take(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// LockPayableJob loads an unpaid job of an in-progress contract owned by
// clientID. Anything else is gorm.ErrRecordNotFound.
func (t *LedgerTx) LockPayableJob(jobID, clientID uint) (*model.Job, error) {
	var job model.Job
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "jobs"}}).
		Select("jobs.*").
		Joins("JOIN contracts ON contracts.id = jobs.contract_id").
		Where("jobs.id = ?", jobID).
		Where("contracts.client_id = ?", clientID).
		Where("contracts.status = ?", model.ContractStatusInProgress).
		Where("jobs.paid IS NULL").
		Take(&job).Error
	if err != nil {
		return nil, err
	}

	var contract model.Contract
	if err := t.db.Where("id = ?", job.ContractID).Take(&contract).Error; err != nil {
		return nil, err
	}
	job.Contract = &contract
	return &job, nil
}

// MarkJobPaid only touches a job that is still unpaid; a job paid in the
// meantime yields gorm.ErrRecordNotFound.
func (t *LedgerTx) MarkJobPaid(jobID uint, at time.Time) error {
	res := t.db.Model(&model.Job{}).
		Where("id = ? AND paid IS NULL", jobID).
		Updates(map[string]interface{}{
			"paid":         true,
			"payment_date": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetBalance writes an absolute balance; callers compute it from a locked row.
func (t *LedgerTx) SetBalance(profileID uint, balance decimal.Decimal) error {
	res := t.db.Model(&model.Profile{}).
		Where("id = ?", profileID).
		Update("balance", balance)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UnpaidTotal sums the prices of every unpaid job across the client's
// contracts, whatever their status.
func (t *LedgerTx) UnpaidTotal(clientID uint) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := t.db.Raw(`
		SELECT COALESCE(SUM(j.price), 0) AS total
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		WHERE c.client_id = ?
			AND j.paid IS NULL
	`, clientID).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}
