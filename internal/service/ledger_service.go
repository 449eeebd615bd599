package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/marketplace-ledger/internal/model"
	"github.com/nurpe/marketplace-ledger/internal/repository"
)

// ReportCache stores computed reports. Invalidate drops every cached report.
type ReportCache interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Invalidate(ctx context.Context) error
}

// LedgerService moves money between profile balances.
type LedgerService struct {
	ledger   *repository.LedgerRepository
	cache    ReportCache
	capRatio decimal.Decimal
	log      zerolog.Logger
	now      func() time.Time
}

func NewLedgerService(ledger *repository.LedgerRepository, cache ReportCache, capRatio decimal.Decimal, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		ledger:   ledger,
		cache:    cache,
		capRatio: capRatio,
		log:      log,
		now:      time.Now,
	}
}

// PayJob transfers job.price from the paying client to the contractor of the
// job's contract and marks the job paid, all in one transaction.
//
// The job must be unpaid and belong to an in_progress contract of the payer;
// otherwise ErrNotFound is returned whatever the actual reason, so a caller
// cannot probe contracts it is not party to.
func (s *LedgerService) PayJob(ctx context.Context, payer model.Profile, jobID uint, amount decimal.Decimal) (*model.Job, error) {
	if !payer.IsClient() {
		return nil, ErrForbidden
	}
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	var paid *model.Job
	err := s.ledger.WithinTx(ctx, func(tx *repository.LedgerTx) error {
		// client row first, then job, then contractor
		client, err := tx.LockProfile(payer.ID)
		if err != nil {
			return notFound(err)
		}

		job, err := tx.LockPayableJob(jobID, client.ID)
		if err != nil {
			return notFound(err)
		}
		if job.Contract.ContractorID == client.ID {
			return fmt.Errorf("%w: contract %d has the same profile on both sides", ErrNotFound, job.ContractID)
		}

		if client.Balance.LessThan(amount) || !amount.Equal(job.Price) {
			return ErrInsufficientFundsOrPriceMismatch
		}

		paidAt := s.now().UTC()
		if err := tx.MarkJobPaid(job.ID, paidAt); err != nil {
			return notFound(err)
		}
		if err := tx.SetBalance(client.ID, client.Balance.Sub(amount)); err != nil {
			return err
		}

		contractor, err := tx.LockProfile(job.Contract.ContractorID)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(contractor.ID, contractor.Balance.Add(amount)); err != nil {
			return err
		}

		isPaid := true
		job.Paid = &isPaid
		job.PaymentDate = &paidAt
		paid = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("job_id", paid.ID).
		Uint("client_id", payer.ID).
		Uint("contractor_id", paid.Contract.ContractorID).
		Str("amount", amount.String()).
		Msg("job paid")

	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("invalidate report cache")
	}
	return paid, nil
}

// Deposit credits a profile, capped at capRatio of the client's unpaid job
// total. A profile without unpaid jobs therefore cannot receive deposits.
func (s *LedgerService) Deposit(ctx context.Context, recipientID uint, amount decimal.Decimal) (*model.Profile, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	var updated *model.Profile
	err := s.ledger.WithinTx(ctx, func(tx *repository.LedgerTx) error {
		recipient, err := tx.LockProfile(recipientID)
		if err != nil {
			return notFound(err)
		}

		unpaid, err := tx.UnpaidTotal(recipient.ID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(unpaid.Mul(s.capRatio)) {
			return ErrDepositExceedsCap
		}

		recipient.Balance = recipient.Balance.Add(amount)
		if err := tx.SetBalance(recipient.ID, recipient.Balance); err != nil {
			return err
		}
		updated = recipient
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("profile_id", recipientID).
		Str("amount", amount.String()).
		Msg("deposit accepted")
	return updated, nil
}

// validAmount accepts positive amounts in whole cents, the precision balances
// are stored with.
func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
