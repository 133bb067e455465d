package inmemory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brymax254/safari-payments/internal/domain"
)

func newPayment(id, ref string) *domain.Payment {
	return &domain.Payment{
		ID:          id,
		MerchantRef: ref,
		Provider:    domain.ProviderPesapal,
		Amount:      decimal.NewFromInt(2500),
		Currency:    "KES",
		PayerEmail:  "jane@example.com",
		Status:      domain.StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestCreateAndFind(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPayment("p1", "PAY-AAA111")))

	found, err := repo.FindByMerchantRef(ctx, "PAY-AAA111")
	require.NoError(t, err)
	assert.Equal(t, "p1", found.ID)
	assert.Equal(t, domain.StatusPending, found.Status)

	_, err = repo.FindByMerchantRef(ctx, "PAY-MISSING")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateDuplicateReference(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPayment("p1", "PAY-AAA111")))

	err := repo.Create(ctx, newPayment("p2", "PAY-AAA111"))
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
}

func TestMarkSubmitted(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPayment("p1", "PAY-AAA111")))
	require.NoError(t, repo.MarkSubmitted(ctx, "p1", "track-1", "https://pay.example/redirect"))

	found, err := repo.FindByTrackingID(ctx, "track-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, found.Status)
	assert.Equal(t, "https://pay.example/redirect", found.RedirectURL)

	// A second submit on the same payment is rejected.
	assert.Error(t, repo.MarkSubmitted(ctx, "p1", "track-2", ""))
}

func TestFinalizeOnlyOnce(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPayment("p1", "PAY-AAA111")))
	require.NoError(t, repo.MarkSubmitted(ctx, "p1", "track-1", ""))

	won, err := repo.Finalize(ctx, "p1", domain.StatusSuccess, "", "MPESA", time.Now())
	require.NoError(t, err)
	assert.True(t, won)

	// Already terminal: the second writer loses without error.
	won, err = repo.Finalize(ctx, "p1", domain.StatusFailed, "declined", "", time.Time{})
	require.NoError(t, err)
	assert.False(t, won)

	found, err := repo.FindByMerchantRef(ctx, "PAY-AAA111")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, found.Status)
	require.NotNil(t, found.ConfirmedAt)
}

func TestFinalizeRejectsIllegalTransition(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPayment("p1", "PAY-AAA111")))

	// A payment without a tracking id cannot succeed, only fail.
	won, err := repo.Finalize(ctx, "p1", domain.StatusSuccess, "", "MPESA", time.Now())
	assert.Error(t, err)
	assert.False(t, won)

	found, err := repo.FindByMerchantRef(ctx, "PAY-AAA111")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, found.Status)

	won, err = repo.Finalize(ctx, "p1", domain.StatusFailed, "submission failed", "", time.Time{})
	require.NoError(t, err)
	assert.True(t, won)
}

func TestFinalizeConcurrentSingleWinner(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPayment("p1", "PAY-AAA111")))
	require.NoError(t, repo.MarkSubmitted(ctx, "p1", "track-1", ""))

	const writers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.Finalize(ctx, "p1", domain.StatusSuccess, "", "CARD", time.Now())
			require.NoError(t, err)
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
