package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nurpe/marketplace-ledger/internal/model"
	"github.com/nurpe/marketplace-ledger/internal/repository"
	"github.com/nurpe/marketplace-ledger/internal/testutil"
)

var paidAt = time.Date(2020, 8, 15, 19, 11, 26, 0, time.UTC)

type spyCache struct {
	mu            sync.Mutex
	invalidations int
}

func (c *spyCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }

func (c *spyCache) Set(context.Context, string, interface{}) error { return nil }

func (c *spyCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	return nil
}

func (c *spyCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

type ledgerFixture struct {
	db         *gorm.DB
	svc        *LedgerService
	cache      *spyCache
	client     model.Profile
	other      model.Profile
	contractor model.Profile
	active     model.Contract
	terminated model.Contract
	job        model.Job
	second     model.Job
	closedJob  model.Job
	othersJob  model.Job
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	database := testutil.NewDB(t)

	f := &ledgerFixture{db: database, cache: &spyCache{}}
	f.client = testutil.CreateClient(t, database, "Harry", "Potter", "1150")
	f.other = testutil.CreateClient(t, database, "Mr", "Robot", "231.11")
	f.contractor = testutil.CreateContractor(t, database, "Linus", "Torvalds", "Programmer", "1214")

	f.active = testutil.CreateContract(t, database, f.client.ID, f.contractor.ID, model.ContractStatusInProgress)
	f.terminated = testutil.CreateContract(t, database, f.client.ID, f.contractor.ID, model.ContractStatusTerminated)
	othersContract := testutil.CreateContract(t, database, f.other.ID, f.contractor.ID, model.ContractStatusInProgress)

	f.job = testutil.CreateJob(t, database, f.active.ID, "200")
	f.second = testutil.CreateJob(t, database, f.active.ID, "201")
	f.closedJob = testutil.CreateJob(t, database, f.terminated.ID, "300")
	f.othersJob = testutil.CreateJob(t, database, othersContract.ID, "121")

	f.svc = newLedgerService(database, f.cache, "0.25")
	return f
}

func newLedgerService(database *gorm.DB, cache ReportCache, capRatio string) *LedgerService {
	svc := NewLedgerService(repository.NewLedgerRepository(database), cache, decimal.RequireFromString(capRatio), zerolog.Nop())
	svc.now = func() time.Time { return paidAt }
	return svc
}

func (f *ledgerFixture) balance(t *testing.T, id uint) decimal.Decimal {
	return testutil.Balance(t, f.db, id)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestPayJob_TransfersPriceFromClientToContractor(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	clientBefore := f.balance(t, f.client.ID)
	contractorBefore := f.balance(t, f.contractor.ID)

	job, err := f.svc.PayJob(ctx, f.client, f.job.ID, decimal.NewFromInt(200))
	require.NoError(t, err)

	assert.True(t, job.IsPaid())
	require.NotNil(t, job.PaymentDate)
	assert.True(t, paidAt.Equal(*job.PaymentDate))
	require.NotNil(t, job.Contract)
	assert.Equal(t, f.contractor.ID, job.Contract.ContractorID)

	stored := testutil.ReloadJob(t, f.db, f.job.ID)
	assert.True(t, stored.IsPaid())
	require.NotNil(t, stored.PaymentDate)
	assert.True(t, paidAt.Equal(*stored.PaymentDate))

	clientAfter := f.balance(t, f.client.ID)
	contractorAfter := f.balance(t, f.contractor.ID)
	assertDecimal(t, "950", clientAfter)
	assertDecimal(t, "1414", contractorAfter)
	assert.True(t, clientBefore.Sub(clientAfter).Equal(contractorAfter.Sub(contractorBefore)))

	assert.Equal(t, 1, f.cache.count())
}

func TestPayJob_DrainsBalanceToZero(t *testing.T) {
	database := testutil.NewDB(t)
	client := testutil.CreateClient(t, database, "Ash", "Kethcum", "50")
	contractor := testutil.CreateContractor(t, database, "Alan", "Turing", "Programmer", "0")
	contract := testutil.CreateContract(t, database, client.ID, contractor.ID, model.ContractStatusInProgress)
	job := testutil.CreateJob(t, database, contract.ID, "50")

	svc := newLedgerService(database, &spyCache{}, "0.25")
	paid, err := svc.PayJob(context.Background(), client, job.ID, decimal.NewFromInt(50))
	require.NoError(t, err)

	assert.True(t, paid.IsPaid())
	assert.NotNil(t, paid.PaymentDate)
	assertDecimal(t, "0", testutil.Balance(t, database, client.ID))
	assertDecimal(t, "50", testutil.Balance(t, database, contractor.ID))
}

func TestPayJob_ContractorIsForbidden(t *testing.T) {
	f := newLedgerFixture(t)

	for _, amount := range []string{"0", "-1", "200", "1000000"} {
		_, err := f.svc.PayJob(context.Background(), f.contractor, f.job.ID, decimal.RequireFromString(amount))
		assert.ErrorIs(t, err, ErrForbidden, "amount %s", amount)
	}

	assertDecimal(t, "1150", f.balance(t, f.client.ID))
	assertDecimal(t, "1214", f.balance(t, f.contractor.ID))
	assert.False(t, testutil.ReloadJob(t, f.db, f.job.ID).IsPaid())
}

func TestPayJob_InvalidAmount(t *testing.T) {
	f := newLedgerFixture(t)

	for _, amount := range []decimal.Decimal{
		decimal.Zero,
		decimal.NewFromInt(-200),
		{},
		decimal.RequireFromString("199.999"),
		decimal.RequireFromString("200.001"),
	} {
		_, err := f.svc.PayJob(context.Background(), f.client, f.job.ID, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	assert.False(t, testutil.ReloadJob(t, f.db, f.job.ID).IsPaid())
}

func TestPayJob_NotFound(t *testing.T) {
	f := newLedgerFixture(t)

	tests := []struct {
		name   string
		jobID  uint
		amount string
	}{
		{name: "unknown job", jobID: 9999, amount: "200"},
		{name: "job of another client", jobID: f.othersJob.ID, amount: "121"},
		{name: "terminated contract", jobID: f.closedJob.ID, amount: "300"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.PayJob(context.Background(), f.client, tt.jobID, decimal.RequireFromString(tt.amount))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}

	assertDecimal(t, "1150", f.balance(t, f.client.ID))
	assertDecimal(t, "1214", f.balance(t, f.contractor.ID))
	assert.Zero(t, f.cache.count())
}

func TestPayJob_SecondPaymentIsNotFound(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.svc.PayJob(ctx, f.client, f.job.ID, decimal.NewFromInt(200))
	require.NoError(t, err)

	_, err = f.svc.PayJob(ctx, f.client, f.job.ID, decimal.NewFromInt(200))
	assert.ErrorIs(t, err, ErrNotFound)

	assertDecimal(t, "950", f.balance(t, f.client.ID))
	assertDecimal(t, "1414", f.balance(t, f.contractor.ID))
}

func TestPayJob_PriceMismatch(t *testing.T) {
	f := newLedgerFixture(t)

	for _, amount := range []string{"199.99", "200.01", "201", "1000"} {
		_, err := f.svc.PayJob(context.Background(), f.client, f.job.ID, decimal.RequireFromString(amount))
		assert.ErrorIs(t, err, ErrInsufficientFundsOrPriceMismatch, "amount %s", amount)
	}

	assertDecimal(t, "1150", f.balance(t, f.client.ID))
	assertDecimal(t, "1214", f.balance(t, f.contractor.ID))
	assert.False(t, testutil.ReloadJob(t, f.db, f.job.ID).IsPaid())
}

func TestPayJob_AcceptsEquivalentDecimalRepresentation(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.svc.PayJob(context.Background(), f.client, f.job.ID, decimal.RequireFromString("200.00"))
	require.NoError(t, err)
	assertDecimal(t, "950", f.balance(t, f.client.ID))
}

func TestPayJob_InsufficientFundsUsesStoredBalance(t *testing.T) {
	database := testutil.NewDB(t)
	client := testutil.CreateClient(t, database, "Ash", "Kethcum", "49.99")
	contractor := testutil.CreateContractor(t, database, "Alan", "Turing", "Programmer", "0")
	contract := testutil.CreateContract(t, database, client.ID, contractor.ID, model.ContractStatusInProgress)
	job := testutil.CreateJob(t, database, contract.ID, "50")

	// a stale identity claiming a large balance must not matter
	stale := client
	stale.Balance = decimal.NewFromInt(1_000_000)

	svc := newLedgerService(database, &spyCache{}, "0.25")
	_, err := svc.PayJob(context.Background(), stale, job.ID, decimal.NewFromInt(50))
	assert.ErrorIs(t, err, ErrInsufficientFundsOrPriceMismatch)

	assertDecimal(t, "49.99", testutil.Balance(t, database, client.ID))
	assertDecimal(t, "0", testutil.Balance(t, database, contractor.ID))
	assert.False(t, testutil.ReloadJob(t, database, job.ID).IsPaid())
}

func TestPayJob_ContractWithSameProfileOnBothSides(t *testing.T) {
	database := testutil.NewDB(t)
	client := testutil.CreateClient(t, database, "Harry", "Potter", "1150")
	contract := testutil.CreateContract(t, database, client.ID, client.ID, model.ContractStatusInProgress)
	job := testutil.CreateJob(t, database, contract.ID, "200")

	svc := newLedgerService(database, &spyCache{}, "0.25")
	_, err := svc.PayJob(context.Background(), client, job.ID, decimal.NewFromInt(200))
	assert.ErrorIs(t, err, ErrNotFound)

	assertDecimal(t, "1150", testutil.Balance(t, database, client.ID))
	assert.False(t, testutil.ReloadJob(t, database, job.ID).IsPaid())
}

func TestPayJob_ConcurrentDuplicateSubmissions(t *testing.T) {
	f := newLedgerFixture(t)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.PayJob(context.Background(), f.client, f.job.ID, decimal.NewFromInt(200))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, succeeded)
	assertDecimal(t, "950", f.balance(t, f.client.ID))
	assertDecimal(t, "1414", f.balance(t, f.contractor.ID))
}

func TestPayJob_ConcurrentPaymentsNeverOverdraw(t *testing.T) {
	database := testutil.NewDB(t)
	client := testutil.CreateClient(t, database, "Mr", "Robot", "300")
	contractor := testutil.CreateContractor(t, database, "Linus", "Torvalds", "Programmer", "0")
	contract := testutil.CreateContract(t, database, client.ID, contractor.ID, model.ContractStatusInProgress)
	first := testutil.CreateJob(t, database, contract.ID, "200")
	second := testutil.CreateJob(t, database, contract.ID, "201")

	svc := newLedgerService(database, &spyCache{}, "0.25")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, job := range []model.Job{first, second} {
		wg.Add(1)
		go func(i int, job model.Job) {
			defer wg.Done()
			_, errs[i] = svc.PayJob(context.Background(), client, job.ID, job.Price)
		}(i, job)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrInsufficientFundsOrPriceMismatch)
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	clientBalance := testutil.Balance(t, database, client.ID)
	contractorBalance := testutil.Balance(t, database, contractor.ID)
	assert.False(t, clientBalance.IsNegative())
	assertDecimal(t, "300", clientBalance.Add(contractorBalance))
}

func TestDeposit_CapIsQuarterOfUnpaidTotal(t *testing.T) {
	database := testutil.NewDB(t)
	client := testutil.CreateClient(t, database, "Harry", "Potter", "100")
	contractor := testutil.CreateContractor(t, database, "Linus", "Torvalds", "Programmer", "0")
	contract := testutil.CreateContract(t, database, client.ID, contractor.ID, model.ContractStatusInProgress)
	testutil.CreateJob(t, database, contract.ID, "15")
	testutil.CreateJob(t, database, contract.ID, "25")
	testutil.CreatePaidJob(t, database, contract.ID, "500", paidAt)

	svc := newLedgerService(database, &spyCache{}, "0.25")
	ctx := context.Background()

	_, err := svc.Deposit(ctx, client.ID, decimal.RequireFromString("10.01"))
	assert.ErrorIs(t, err, ErrDepositExceedsCap)
	assertDecimal(t, "100", testutil.Balance(t, database, client.ID))

	profile, err := svc.Deposit(ctx, client.ID, decimal.NewFromInt(10))
	require.NoError(t, err)
	assertDecimal(t, "110", profile.Balance)
	assertDecimal(t, "110", testutil.Balance(t, database, client.ID))
}

func TestDeposit_CountsUnpaidJobsOfEveryContractStatus(t *testing.T) {
	f := newLedgerFixture(t)

	// unpaid: 200 + 201 (in progress) + 300 (terminated) = 701, cap 175.25
	_, err := f.svc.Deposit(context.Background(), f.client.ID, decimal.RequireFromString("175.26"))
	assert.ErrorIs(t, err, ErrDepositExceedsCap)

	profile, err := f.svc.Deposit(context.Background(), f.client.ID, decimal.RequireFromString("175.25"))
	require.NoError(t, err)
	assertDecimal(t, "1325.25", profile.Balance)
}

func TestDeposit_NoUnpaidJobsMeansNoDeposit(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.svc.Deposit(context.Background(), f.contractor.ID, decimal.RequireFromString("0.01"))
	assert.ErrorIs(t, err, ErrDepositExceedsCap)
	assertDecimal(t, "1214", f.balance(t, f.contractor.ID))
}

func TestDeposit_InvalidAmount(t *testing.T) {
	f := newLedgerFixture(t)

	for _, amount := range []decimal.Decimal{
		decimal.Zero,
		decimal.NewFromInt(-5),
		{},
		decimal.RequireFromString("10.001"),
		decimal.RequireFromString("0.004"),
	} {
		_, err := f.svc.Deposit(context.Background(), f.client.ID, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	assertDecimal(t, "1150", f.balance(t, f.client.ID))
}

func TestDeposit_UnknownProfile(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.svc.Deposit(context.Background(), 9999, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeposit_ConfiguredCapRatio(t *testing.T) {
	f := newLedgerFixture(t)
	svc := newLedgerService(f.db, f.cache, "0.5")

	// other client owes 121, half of it is 60.5
	_, err := svc.Deposit(context.Background(), f.other.ID, decimal.RequireFromString("60.51"))
	assert.ErrorIs(t, err, ErrDepositExceedsCap)

	profile, err := svc.Deposit(context.Background(), f.other.ID, decimal.RequireFromString("60.5"))
	require.NoError(t, err)
	assertDecimal(t, "291.61", profile.Balance)
}

func TestDeposit_SeesPaymentsCommittedBefore(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	// paying the 200 job lowers the unpaid total from 701 to 501, cap 125.25
	_, err := f.svc.PayJob(ctx, f.client, f.job.ID, decimal.NewFromInt(200))
	require.NoError(t, err)

	_, err = f.svc.Deposit(ctx, f.client.ID, decimal.RequireFromString("125.26"))
	assert.ErrorIs(t, err, ErrDepositExceedsCap)

	profile, err := f.svc.Deposit(ctx, f.client.ID, decimal.RequireFromString("125.25"))
	require.NoError(t, err)
	assertDecimal(t, "1075.25", profile.Balance)
}
