// Package testutil builds throwaway ledger databases for tests.
package testutil

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nurpe/marketplace-ledger/internal/db"
	"github.com/nurpe/marketplace-ledger/internal/model"
)

// NewDB opens a private in-memory SQLite database with the ledger schema.
// It is limited to one connection, so transactions run one after another.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// PostgresDSNEnv names the database used by tests that need real row locks.
const PostgresDSNEnv = "TEST_DB_DSN"

// NewPostgresDB connects to the database named by TEST_DB_DSN, migrates it
// and empties the ledger tables. The test is skipped when the variable is
// unset.
func NewPostgresDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", PostgresDSNEnv)
	}

	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	require.NoError(t, database.Exec("TRUNCATE TABLE jobs, contracts, profiles RESTART IDENTITY CASCADE").Error)
	return database
}

func CreateClient(t testing.TB, database *gorm.DB, firstName, lastName, balance string) model.Profile {
	t.Helper()
	return createProfile(t, database, model.Profile{
		FirstName: firstName,
		LastName:  lastName,
		Balance:   decimal.RequireFromString(balance),
		Type:      model.ProfileTypeClient,
	})
}

func CreateContractor(t testing.TB, database *gorm.DB, firstName, lastName, profession, balance string) model.Profile {
	t.Helper()
	return createProfile(t, database, model.Profile{
		FirstName:  firstName,
		LastName:   lastName,
		Profession: profession,
		Balance:    decimal.RequireFromString(balance),
		Type:       model.ProfileTypeContractor,
	})
}

func createProfile(t testing.TB, database *gorm.DB, profile model.Profile) model.Profile {
	t.Helper()
	require.NoError(t, database.Create(&profile).Error)
	return profile
}

func CreateContract(t testing.TB, database *gorm.DB, clientID, contractorID uint, status model.ContractStatus) model.Contract {
	t.Helper()
	contract := model.Contract{
		Terms:        "bla bla bla",
		Status:       status,
		ClientID:     clientID,
		ContractorID: contractorID,
	}
	require.NoError(t, database.Create(&contract).Error)
	return contract
}

func CreateJob(t testing.TB, database *gorm.DB, contractID uint, price string) model.Job {
	t.Helper()
	job := model.Job{
		Description: "work",
		Price:       decimal.RequireFromString(price),
		ContractID:  contractID,
	}
	require.NoError(t, database.Create(&job).Error)
	return job
}

func CreatePaidJob(t testing.TB, database *gorm.DB, contractID uint, price string, paidAt time.Time) model.Job {
	t.Helper()
	paid := true
	at := paidAt.UTC()
	job := model.Job{
		Description: "work",
		Price:       decimal.RequireFromString(price),
		Paid:        &paid,
		PaymentDate: &at,
		ContractID:  contractID,
	}
	require.NoError(t, database.Create(&job).Error)
	return job
}

func Balance(t testing.TB, database *gorm.DB, profileID uint) decimal.Decimal {
	t.Helper()
	var profile model.Profile
	require.NoError(t, database.Where("id = ?", profileID).Take(&profile).Error)
	return profile.Balance
}

func ReloadJob(t testing.TB, database *gorm.DB, jobID uint) model.Job {
	t.Helper()
	var job model.Job
	require.NoError(t, database.Where("id = ?", jobID).Take(&job).Error)
	return job
}
