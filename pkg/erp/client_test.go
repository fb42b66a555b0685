package erp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-ws/gestor/pkg/erpserver"
	"github.com/colegio-ws/gestor/pkg/models"
)

func seededERP(t *testing.T) *Client {
	t.Helper()
	store := erpserver.NewStore()
	require.NoError(t, erpserver.Seed(store))
	ts := httptest.NewServer(erpserver.NewServer(store, nil).Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL)
}

func TestGetGuardianByHandleNormalized(t *testing.T) {
	client := seededERP(t)

	view, err := client.GetGuardianByHandle(context.Background(), "+54 9 11 1234-5001")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, "María García", view.Name)
	assert.Len(t, view.Students, 2)

	// Same result as looking up the already-normalized handle.
	direct, err := client.GetGuardianByHandle(context.Background(), "+5491112345001")
	require.NoError(t, err)
	require.NotNil(t, direct)
	assert.Equal(t, view.ID, direct.ID)
}

func TestGetGuardianByHandleMissIsNil(t *testing.T) {
	client := seededERP(t)
	view, err := client.GetGuardianByHandle(context.Background(), "+000")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestGetStudentInstallmentsFiltered(t *testing.T) {
	client := seededERP(t)

	pending, err := client.GetStudentInstallments(context.Background(), "A001", models.InstallmentPending)
	require.NoError(t, err)
	assert.Len(t, pending, 8)
}

func TestGetInstallmentEmbeds(t *testing.T) {
	client := seededERP(t)

	view, err := client.GetInstallment(context.Background(), "C-A001-03")
	require.NoError(t, err)
	require.NotNil(t, view)
	require.NotNil(t, view.Student)
	assert.Equal(t, "Juan Pérez García", view.Student.Name)
	require.NotNil(t, view.Plan)
	assert.Equal(t, "PLAN-2026", view.Plan.ID)
}

func TestConfirmPaymentAndDoubleConfirm(t *testing.T) {
	client := seededERP(t)

	result, err := client.ConfirmPayment(context.Background(), "C-A001-03", 45000, "transferencia", "ref-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.Installment)
	assert.Equal(t, models.InstallmentPaid, result.Installment.State)

	_, err = client.ConfirmPayment(context.Background(), "C-A001-03", 45000, "transferencia", "ref-2")
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestConfirmPaymentMissing(t *testing.T) {
	client := seededERP(t)
	_, err := client.ConfirmPayment(context.Background(), "nope", 45000, "", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUpcomingInstallments(t *testing.T) {
	store := erpserver.NewStore()
	store.AddInstallment(models.Installment{
		ID: "SOON-1", StudentID: "A001", Number: 1, Amount: 1000,
		DueDate: time.Now().UTC().Add(48 * time.Hour), State: models.InstallmentPending,
	})
	store.AddInstallment(models.Installment{
		ID: "FAR-1", StudentID: "A001", Number: 2, Amount: 1000,
		DueDate: time.Now().UTC().AddDate(0, 2, 0), State: models.InstallmentPending,
	})
	ts := httptest.NewServer(erpserver.NewServer(store, nil).Handler())
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL)
	upcoming, err := client.GetUpcomingInstallments(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "SOON-1", upcoming[0].ID)
}

func TestBreakerTripsToUnavailable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	var lastErr error
	for i := 0; i < 7; i++ {
		_, lastErr = client.GetStudent(context.Background(), "A001")
		require.Error(t, lastErr)
	}
	assert.ErrorIs(t, lastErr, ErrUnavailable)
}

func TestHealthCheck(t *testing.T) {
	client := seededERP(t)
	assert.True(t, client.HealthCheck(context.Background()))

	down := NewClient("http://127.0.0.1:1")
	assert.False(t, down.HealthCheck(context.Background()))
}

func TestUpstreamErrorPropagates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL)
	_, err := client.GetStudent(context.Background(), "A001")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
