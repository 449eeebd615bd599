package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/nurpe/marketplace-ledger/internal/model"
)

// postgresStatements add what AutoMigrate cannot express: foreign keys,
// value checks and partial indexes.
var postgresStatements = []string{
	addConstraint("profiles", "chk_profiles_type", `CHECK (type IN ('client', 'contractor'))`),
	addConstraint("profiles", "chk_profiles_balance_non_negative", `CHECK (balance >= 0)`),
	addConstraint("contracts", "chk_contracts_status", `CHECK (status IN ('new', 'in_progress', 'terminated'))`),
	addConstraint("contracts", "fk_contracts_client", `FOREIGN KEY (client_id) REFERENCES profiles(id)`),
	addConstraint("contracts", "fk_contracts_contractor", `FOREIGN KEY (contractor_id) REFERENCES profiles(id)`),
	addConstraint("contracts", "chk_contracts_distinct_parties", `CHECK (client_id <> contractor_id)`),
	addConstraint("jobs", "fk_jobs_contract", `FOREIGN KEY (contract_id) REFERENCES contracts(id)`),
	addConstraint("jobs", "chk_jobs_price_positive", `CHECK (price > 0)`),
	addConstraint("jobs", "chk_jobs_paid_state", `CHECK ((paid IS NULL AND payment_date IS NULL) OR (paid = TRUE AND payment_date IS NOT NULL))`),
	`CREATE INDEX IF NOT EXISTS idx_jobs_unpaid_contract ON jobs (contract_id) WHERE paid IS NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_payment_date ON jobs (payment_date) WHERE paid = TRUE;`,
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Profile{}, &model.Contract{}, &model.Job{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return runMigrations(db)
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range postgresStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

func addConstraint(table, name, definition string) string {
	return fmt.Sprintf(`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
			ALTER TABLE %s ADD CONSTRAINT %s %s;
		END IF;
	END
	$$;`, name, table, name, definition)
}
