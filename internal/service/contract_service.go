package service

import (
	"context"
	"fmt"

	"github.com/nurpe/marketplace-ledger/internal/model"
	"github.com/nurpe/marketplace-ledger/internal/repository"
)

type ReceiptGenerator interface {
	Generate(receipt model.PaymentReceipt) ([]byte, error)
}

type ContractService struct {
	repo     *repository.ContractRepository
	receipts ReceiptGenerator
}

type FileResult struct {
	FileName string
	Content  []byte
}

func NewContractService(repo *repository.ContractRepository, receipts ReceiptGenerator) *ContractService {
	return &ContractService{repo: repo, receipts: receipts}
}

func (s *ContractService) ListContracts(ctx context.Context, profile model.Profile) ([]model.Contract, error) {
	return s.repo.ListActive(ctx, profile)
}

func (s *ContractService) GetContract(ctx context.Context, profile model.Profile, id uint) (*model.Contract, error) {
	contract, err := s.repo.GetForProfile(ctx, profile, id)
	if err != nil {
		return nil, notFound(err)
	}
	return contract, nil
}

func (s *ContractService) ListUnpaidJobs(ctx context.Context, profile model.Profile) ([]model.Job, error) {
	return s.repo.ListUnpaidJobs(ctx, profile)
}

// PaymentReceipt renders a PDF for a paid job the profile is party to.
func (s *ContractService) PaymentReceipt(ctx context.Context, profile model.Profile, jobID uint) (*FileResult, error) {
	receipt, err := s.repo.GetReceipt(ctx, profile, jobID)
	if err != nil {
		return nil, notFound(err)
	}

	content, err := s.receipts.Generate(*receipt)
	if err != nil {
		return nil, err
	}
	return &FileResult{
		FileName: fmt.Sprintf("receipt-job-%d.pdf", receipt.Job.ID),
		Content:  content,
	}, nil
}
