package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/marketplace-ledger/internal/model"
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// EarningsByProfession returns paid totals per contractor profession ordered
// by profession name.
func (r *ReportRepository) EarningsByProfession(ctx context.Context, rng model.ReportRange) ([]model.ProfessionEarnings, error) {
	baseQuery := `
		SELECT
			p.profession AS profession,
			SUM(j.price) AS total_earned
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.contractor_id
		WHERE p.type = ?
			AND j.paid = ?
	`
	args := []interface{}{model.ProfileTypeContractor, true}
	baseQuery, args = appendPaymentDateFilter(baseQuery, args, rng)
	baseQuery += " GROUP BY p.profession ORDER BY p.profession ASC"

	rows := []model.ProfessionEarnings{}
	if err := r.db.WithContext(ctx).Raw(baseQuery, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TopClients returns clients ordered by paid total, highest first, with the
// lower id winning ties.
func (r *ReportRepository) TopClients(ctx context.Context, rng model.ReportRange, limit int) ([]model.ClientTotal, error) {
	baseQuery := `
		SELECT
			p.id AS id,
			p.first_name AS first_name,
			p.last_name AS last_name,
			SUM(j.price) AS total_paid
		FROM jobs j
		JOIN contracts c ON c.id = j.contract_id
		JOIN profiles p ON p.id = c.client_id
		WHERE p.type = ?
			AND j.paid = ?
	`
	args := []interface{}{model.ProfileTypeClient, true}
	baseQuery, args = appendPaymentDateFilter(baseQuery, args, rng)
	baseQuery += " GROUP BY p.id, p.first_name, p.last_name ORDER BY total_paid DESC, p.id ASC LIMIT ?"
	args = append(args, limit)

	var rows []struct {
		ID        uint
		FirstName string
		LastName  string
		TotalPaid decimal.Decimal
	}
	if err := r.db.WithContext(ctx).Raw(baseQuery, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]model.ClientTotal, 0, len(rows))
	for _, row := range rows {
		result = append(result, model.ClientTotal{
			UserID:    row.ID,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			TotalPaid: row.TotalPaid,
		})
	}
	return result, nil
}

func appendPaymentDateFilter(baseQuery string, args []interface{}, rng model.ReportRange) (string, []interface{}) {
	if rng.From != nil {
		baseQuery += " AND j.payment_date >= ?"
		args = append(args, rng.From.UTC())
	}
	if rng.To != nil {
		baseQuery += " AND j.payment_date < ?"
		args = append(args, rng.To.UTC())
	}
	return baseQuery, args
}
