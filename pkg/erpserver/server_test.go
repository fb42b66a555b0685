package erpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-ws/gestor/pkg/models"
	"github.com/colegio-ws/gestor/pkg/webhook"
)

var paymentIDPattern = regexp.MustCompile(`^PAY-[A-F0-9]{8}$`)

func seededServer(t *testing.T, webhooks *webhook.Client) (*httptest.Server, *Store) {
	t.Helper()
	store := NewStore()
	require.NoError(t, Seed(store))
	srv := NewServer(store, webhooks)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postConfirm(t *testing.T, url string, body map[string]any) (*http.Response, map[string]any) {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url+"/api/v1/payments/confirm", "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestGuardianByHandleNormalizes(t *testing.T) {
	ts, _ := seededServer(t, nil)

	var view models.GuardianView
	status := getJSON(t, ts.URL+"/api/v1/guardians/by-handle/+5491112345001", &view)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "María García", view.Name)
	assert.Len(t, view.Students, 2)

	// Same lookup with separators in the path segment.
	var view2 models.GuardianView
	status = getJSON(t, ts.URL+"/api/v1/guardians/by-handle/%2B54%209%2011%201234-5001", &view2)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, view.ID, view2.ID)
}

func TestGuardianByHandleMiss(t *testing.T) {
	ts, _ := seededServer(t, nil)
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/guardians/by-handle/+000", nil))
}

func TestStudentInstallmentsFilter(t *testing.T) {
	ts, _ := seededServer(t, nil)

	var pending []models.Installment
	status := getJSON(t, ts.URL+"/api/v1/students/A001/installments?state=pendiente", &pending)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, pending, 8)
	for _, inst := range pending {
		assert.Equal(t, models.InstallmentPending, inst.State)
	}
}

func TestQueryInstallmentsWindow(t *testing.T) {
	ts, _ := seededServer(t, nil)

	var out []models.Installment
	status := getJSON(t, ts.URL+"/api/v1/installments?state=pendiente&due_from=2026-05-01&due_to=2026-05-31&limit=2", &out)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out, 2)
	for _, inst := range out {
		assert.Equal(t, time.May, inst.DueDate.Month())
	}
}

func TestConfirmPaymentHappyPath(t *testing.T) {
	var webhookCalls atomic.Int32
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhook/erp/payment-confirmed", r.URL.Path)
		webhookCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	ts, store := seededServer(t, webhook.NewClient(sink.URL, 3, 10*time.Millisecond))

	resp, body := postConfirm(t, ts.URL, map[string]any{
		"installment_id": "C-A001-03",
		"amount":         50000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	payment := body["payment"].(map[string]any)
	assert.Regexp(t, paymentIDPattern, payment["id"])

	inst, err := store.Installment("C-A001-03")
	require.NoError(t, err)
	assert.Equal(t, models.InstallmentPaid, inst.State)
	require.NotNil(t, inst.PaidAt)

	// Exactly one webhook delivery (first attempt succeeds).
	assert.Eventually(t, func() bool { return webhookCalls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), webhookCalls.Load())
}

func TestConfirmPaymentDoubleSubmission(t *testing.T) {
	var webhookCalls atomic.Int32
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		webhookCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	ts, store := seededServer(t, webhook.NewClient(sink.URL, 3, 10*time.Millisecond))

	resp, _ := postConfirm(t, ts.URL, map[string]any{"installment_id": "C-A001-04", "amount": 45000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Eventually(t, func() bool { return webhookCalls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	before, err := store.Installment("C-A001-04")
	require.NoError(t, err)

	resp2, body2 := postConfirm(t, ts.URL, map[string]any{"installment_id": "C-A001-04", "amount": 45000})
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	assert.Equal(t, "AlreadyPaid", body2["error"])

	after, err := store.Installment("C-A001-04")
	require.NoError(t, err)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.PaidAt.Unix(), after.PaidAt.Unix())

	// No second webhook.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), webhookCalls.Load())
}

func TestConfirmPaymentValidation(t *testing.T) {
	ts, _ := seededServer(t, nil)

	resp, _ := postConfirm(t, ts.URL, map[string]any{"amount": 100})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = postConfirm(t, ts.URL, map[string]any{"installment_id": "C-A001-05", "amount": -5})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = postConfirm(t, ts.URL, map[string]any{"installment_id": "nope", "amount": 100})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPaidIffPaidAt(t *testing.T) {
	_, store := seededServer(t, nil)

	// Exercise a transition then check the invariant across all rows.
	_, _, err := store.ConfirmPayment("C-A003-03", 45000, "", "")
	require.NoError(t, err)

	for _, st := range []string{"A001", "A002", "A003"} {
		for _, inst := range store.StudentInstallments(st, "") {
			if inst.State == models.InstallmentPaid {
				assert.NotNil(t, inst.PaidAt, "installment %s", inst.ID)
			} else {
				assert.Nil(t, inst.PaidAt, "installment %s", inst.ID)
			}
		}
	}
}

func TestMarkOverdue(t *testing.T) {
	_, store := seededServer(t, nil)

	count := store.MarkOverdue(date(2026, 6, 1))
	assert.Positive(t, count)

	for _, inst := range store.StudentInstallments("A001", "") {
		if inst.DueDate.Before(date(2026, 6, 1)) && inst.PaidAt == nil {
			assert.Equal(t, models.InstallmentOverdue, inst.State, "installment %s", inst.ID)
		}
	}
}

func TestStudentEmbedGuardians(t *testing.T) {
	ts, _ := seededServer(t, nil)

	var view models.StudentView
	status := getJSON(t, ts.URL+"/api/v1/students/A001?embed=guardians", &view)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, view.Guardians, 1)
	assert.Equal(t, "R001", view.Guardians[0].ID)
}
