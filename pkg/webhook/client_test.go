package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendFirstAttemptSuccess(t *testing.T) {
	var attempts atomic.Int32
	var received Event
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		assert.Equal(t, "erp", r.Header.Get("X-Webhook-Source"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 3, 10*time.Millisecond)
	ok := client.SendPaymentConfirmed(context.Background(), PaymentConfirmedData{
		InstallmentID: "C-A001-03",
		StudentID:     "A001",
		Amount:        50000,
		PaidAt:        "2026-03-10T12:00:00Z",
	})

	assert.True(t, ok)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, "payment_confirmed", received.Type)

	data, err := json.Marshal(received.Data)
	require.NoError(t, err)
	var decoded PaymentConfirmedData
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "C-A001-03", decoded.InstallmentID)
	assert.InDelta(t, 50000, decoded.Amount, 1e-9)
}

func TestSendRecoversAfterFailure(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, 3, 5*time.Millisecond)
	ok := client.Send(context.Background(), "/webhook/erp/payment-confirmed", Event{Type: "payment_confirmed"})

	assert.True(t, ok)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSendExhaustsRetriesWithBackoff(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	base := 40 * time.Millisecond
	client := NewClient(ts.URL, 3, base)

	start := time.Now()
	ok := client.Send(context.Background(), "/webhook/erp/payment-confirmed", Event{Type: "payment_confirmed"})
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Equal(t, int32(3), attempts.Load())
	// Delays between attempts: base*2^0 + base*2^1 = 3*base.
	assert.GreaterOrEqual(t, elapsed, 3*base)
}

func TestSendConnectionErrorRetries(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 2, time.Millisecond)
	ok := client.Send(context.Background(), "/x", Event{Type: "payment_confirmed"})
	assert.False(t, ok)
}

func TestSendCancelledContextStops(t *testing.T) {
	var attempts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(ts.URL, 3, 5*time.Second)

	done := make(chan bool, 1)
	go func() { done <- client.Send(ctx, "/x", Event{Type: "payment_confirmed"}) }()

	// Let the first attempt fail, then cancel during the backoff sleep.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
		assert.Equal(t, int32(1), attempts.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after context cancellation")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient("http://x", 0, 0)
	assert.Equal(t, DefaultMaxRetries, client.maxRetries)
	assert.Equal(t, DefaultBaseDelay, client.baseDelay)
}
