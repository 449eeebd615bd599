package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nurpe/marketplace-ledger/internal/model"
	"github.com/nurpe/marketplace-ledger/internal/repository"
)

const DefaultBestClientsLimit = 2

type ExcelGenerator interface {
	Generate(report model.ClientReport) ([]byte, error)
}

type ReportService struct {
	repo  *repository.ReportRepository
	cache ReportCache
	excel ExcelGenerator
	log   zerolog.Logger
}

func NewReportService(repo *repository.ReportRepository, cache ReportCache, excel ExcelGenerator, log zerolog.Logger) *ReportService {
	return &ReportService{
		repo:  repo,
		cache: cache,
		excel: excel,
		log:   log,
	}
}

// BestProfession returns the contractor profession with the highest paid
// total in the range. On equal totals the alphabetically first profession
// wins.
func (s *ReportService) BestProfession(ctx context.Context, rng model.ReportRange) (*model.ProfessionEarnings, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}

	key := "best-profession:" + rangeKey(rng)
	var cached model.ProfessionEarnings
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := s.repo.EarningsByProfession(ctx, rng)
	if err != nil {
		return nil, err
	}

	var best *model.ProfessionEarnings
	for i := range rows {
		if best == nil || rows[i].TotalEarned.GreaterThan(best.TotalEarned) {
			best = &rows[i]
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no paid jobs in range", ErrNotFound)
	}

	s.toCache(ctx, key, best)
	return best, nil
}

// BestClients returns up to limit clients ordered by paid total.
func (s *ReportService) BestClients(ctx context.Context, rng model.ReportRange, limit int) ([]model.ClientTotal, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	key := fmt.Sprintf("best-clients:%s:%d", rangeKey(rng), limit)
	cached := []model.ClientTotal{}
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	clients, err := s.repo.TopClients(ctx, rng, limit)
	if err != nil {
		return nil, err
	}

	s.toCache(ctx, key, clients)
	return clients, nil
}

func (s *ReportService) ExportBestClients(ctx context.Context, rng model.ReportRange, limit int) (*FileResult, error) {
	clients, err := s.BestClients(ctx, rng, limit)
	if err != nil {
		return nil, err
	}

	content, err := s.excel.Generate(model.ClientReport{
		Range:   rng,
		Limit:   limit,
		Clients: clients,
	})
	if err != nil {
		return nil, err
	}
	return &FileResult{
		FileName: fmt.Sprintf("best-clients-%s.xlsx", rangeKey(rng)),
		Content:  content,
	}, nil
}

func (s *ReportService) fromCache(ctx context.Context, key string, dst interface{}) bool {
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("read report cache")
		return false
	}
	return ok
}

// toCache may store a report computed before a concurrent payment committed,
// after that payment's Invalidate. Such an entry is stale for at most the TTL.
func (s *ReportService) toCache(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("write report cache")
	}
}

func validateRange(rng model.ReportRange) error {
	if rng.From != nil && rng.To != nil && !rng.From.Before(*rng.To) {
		return fmt.Errorf("%w: start must be before or equal to end", ErrInvalidInput)
	}
	return nil
}

func rangeKey(rng model.ReportRange) string {
	return formatBound(rng.From) + "-" + formatBound(rng.To)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "any"
	}
	return t.UTC().Format("20060102T150405")
}
