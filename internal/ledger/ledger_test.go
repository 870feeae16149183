package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vantora/brokerage-api/internal/database"
	"github.com/vantora/brokerage-api/internal/types"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := database.NewDatabase(dsn)
	require.NoError(t, err)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, balance decimal.Decimal) *types.User {
	t.Helper()
	user := &types.User{
		UserID:    "USR_" + uuid.New().String(),
		Email:     uuid.New().String() + "@example.com",
		Balance:   balance,
		KYCStatus: types.KYCStatusVerified,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestAdjustCredit(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, decimal.NewFromInt(100))

	newBalance, err := svc.Adjust(user.UserID, decimal.NewFromInt(50), types.DirectionCredit)
	require.NoError(t, err)
	assert.True(t, newBalance.Equal(decimal.NewFromInt(150)))

	resp, err := svc.GetBalance(user.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(150)))
}

func TestAdjustDebit(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, decimal.NewFromInt(100))

	newBalance, err := svc.Adjust(user.UserID, decimal.NewFromInt(40), types.DirectionDebit)
	require.NoError(t, err)
	assert.True(t, newBalance.Equal(decimal.NewFromInt(60)))
}

func TestDebitBelowZeroRejected(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, decimal.NewFromInt(30))

	_, err := svc.Adjust(user.UserID, decimal.NewFromInt(31), types.DirectionDebit)
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	// Ledger must be unchanged after a rejected debit
	resp, err := svc.GetBalance(user.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(30)))
}

func TestDebitToExactlyZero(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, decimal.NewFromInt(30))

	newBalance, err := svc.Adjust(user.UserID, decimal.NewFromInt(30), types.DirectionDebit)
	require.NoError(t, err)
	assert.True(t, newBalance.IsZero())
}

func TestAdjustValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, decimal.NewFromInt(100))

	_, err := svc.Adjust(user.UserID, decimal.NewFromInt(-5), types.DirectionCredit)
	assert.True(t, types.IsValidationError(err))

	_, err = svc.Adjust(user.UserID, decimal.Zero, types.DirectionDebit)
	assert.True(t, types.IsValidationError(err))

	_, err = svc.Adjust(user.UserID, decimal.NewFromInt(5), "sideways")
	assert.True(t, types.IsValidationError(err))

	resp, err := svc.GetBalance(user.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(100)))
}

func TestAdjustUnknownUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	_, err := svc.Adjust("USR_missing", decimal.NewFromInt(10), types.DirectionCredit)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestConservation(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, decimal.NewFromInt(1000))

	type op struct {
		amount    int64
		direction string
	}
	ops := []op{
		{200, types.DirectionDebit},
		{50, types.DirectionCredit},
		{900, types.DirectionDebit},  // rejected: would go negative
		{700, types.DirectionDebit},
		{25, types.DirectionCredit},
		{500, types.DirectionDebit},  // rejected
	}

	applied := decimal.Zero
	for _, o := range ops {
		_, err := svc.Adjust(user.UserID, decimal.NewFromInt(o.amount), o.direction)
		if err != nil {
			continue // rejected operations contribute nothing
		}
		if o.direction == types.DirectionCredit {
			applied = applied.Add(decimal.NewFromInt(o.amount))
		} else {
			applied = applied.Sub(decimal.NewFromInt(o.amount))
		}
	}

	resp, err := svc.GetBalance(user.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(1000).Add(applied)))
	assert.False(t, resp.Balance.IsNegative())
}

func TestConcurrentDebitsNeverOvershoot(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createTestUser(t, db, decimal.NewFromInt(100))

	// Ten racing debits of 30 against 100: exactly three can succeed
	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Adjust(user.UserID, decimal.NewFromInt(30), types.DirectionDebit)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, types.ErrInsufficientFunds)
	}
	assert.Equal(t, 3, succeeded)

	resp, err := svc.GetBalance(user.UserID)
	require.NoError(t, err)
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(10)))
}

func TestLocksMutualExclusion(t *testing.T) {
	locks := NewLocks()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire("USR_1")
			defer release()
			// Non-atomic increment; only safe if the lock serializes us
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestLocksIndependentUsers(t *testing.T) {
	locks := NewLocks()

	releaseA := locks.Acquire("USR_A")
	defer releaseA()

	// Acquiring a different user's lock must not block
	done := make(chan struct{})
	go func() {
		releaseB := locks.Acquire("USR_B")
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring an independent user's lock blocked")
	}
}
