package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-ws/gestor/pkg/config"
	"github.com/colegio-ws/gestor/pkg/dispatch"
	"github.com/colegio-ws/gestor/pkg/services"
	"github.com/colegio-ws/gestor/pkg/whatsapp"
)

type fakeRunner struct {
	calls atomic.Int32
	reply string
}

func (f *fakeRunner) Process(_ context.Context, _, _ string) (string, string, error) {
	f.calls.Add(1)
	return f.reply, "coordinador", nil
}

type testEnv struct {
	server   *httptest.Server
	mock     sqlmock.Sqlmock
	runner   *fakeRunner
	provider *providerSink
}

// providerSink captures outbound WhatsApp sends.
type providerSink struct {
	server *httptest.Server
	sent   atomic.Int32
	bodies chan map[string]any
}

func newProviderSink(t *testing.T) *providerSink {
	sink := &providerSink{bodies: make(chan map[string]any, 16)}
	sink.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		sink.bodies <- body
		sink.sent.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]any{{"id": "wamid.1"}}})
	}))
	t.Cleanup(sink.server.Close)
	return sink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rawDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rawDB.Close() })
	mock.MatchExpectationsInOrder(false)
	db := sqlx.NewDb(rawDB, "sqlmock")

	provider := newProviderSink(t)
	messenger := whatsapp.NewClientWithBaseURL("real-token", "99887", provider.server.URL)

	dispatcher := dispatch.New(2, 32, 5*time.Second)
	t.Cleanup(dispatcher.Stop)

	runner := &fakeRunner{reply: "¡Hola! Puedo ayudarte con tu estado de cuenta."}
	mirror := services.NewMirrorService(db)

	srv := NewServer(Deps{
		Config: &config.OrchestratorConfig{
			WhatsAppVerifyToken: "verify-me",
			RequestTimeout:      5 * time.Second,
		},
		Dispatcher:   dispatcher,
		Runner:       runner,
		Messenger:    messenger,
		Mirror:       mirror,
		Interactions: services.NewInteractionService(db),
		Tickets:      services.NewTicketService(db),
		Notifier:     services.NewNotificationService(db, mirror, messenger),
		TokenUsage:   services.NewTokenUsageService(db),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, mock: mock, runner: runner, provider: provider}
}

func TestVerificationHandshake(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=4242")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var challenge int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&challenge))
	assert.Equal(t, 4242, challenge)
}

func TestVerificationHandshakeRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=4242")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestInboundMessageProcessedInBackground(t *testing.T) {
	env := newTestEnv(t)

	// Interaction log (2 inserts) + token usage (1 insert), order-free.
	for i := 0; i < 2; i++ {
		env.mock.ExpectExec(`INSERT INTO interactions`).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	env.mock.ExpectExec(`INSERT INTO token_usage`).WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(map[string]any{
		"from_number": "+54 9 11 1234-5001",
		"text":        "Cuánto debo?",
	})
	resp, err := http.Post(env.server.URL+"/webhook/whatsapp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The reply reaches the provider with the runner's text.
	select {
	case sent := <-env.provider.bodies:
		assert.Equal(t, "5491112345001", sent["to"])
		text := sent["text"].(map[string]any)
		assert.Contains(t, text["body"], "estado de cuenta")
	case <-time.After(3 * time.Second):
		t.Fatal("no outbound message delivered")
	}
	assert.Eventually(t, func() bool { return env.runner.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestInboundNativePayloadFlattened(t *testing.T) {
	native := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"messages": [
			{"from": "5491112345001", "id": "wamid.abc", "text": {"body": "Hola"}, "timestamp": "1700000000"}
		]}}]}]
	}`)

	message, ok := decodeInbound(native)
	require.True(t, ok)
	assert.Equal(t, "+5491112345001", message.FromNumber)
	assert.Equal(t, "Hola", message.Text)
	assert.Equal(t, "wamid.abc", message.MessageID)
}

func TestInboundStatusCallbackIgnored(t *testing.T) {
	env := newTestEnv(t)

	// A provider delivery-status callback has no messages array.
	body := []byte(`{"object": "whatsapp_business_account", "entry": [{"changes": [{"value": {}}]}]}`)
	resp, err := http.Post(env.server.URL+"/webhook/whatsapp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "ignored", decoded["status"])
	assert.Zero(t, env.runner.calls.Load())
}

func TestPaymentConfirmedWebhookUpdatesMirrorAndNotifies(t *testing.T) {
	env := newTestEnv(t)

	// Mirror upsert, then (background) guardian lookup + claim + name.
	env.mock.ExpectExec(`INSERT INTO installment_mirror`).WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectQuery(`SELECT g\.handle`).
		WillReturnRows(sqlmock.NewRows([]string{"handle"}).AddRow("+5491112345001"))
	env.mock.ExpectExec(`INSERT INTO notification_sent`).WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectQuery(`SELECT name FROM student_mirror`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Juan Pérez García"))

	body, _ := json.Marshal(map[string]any{
		"type":      "payment_confirmed",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"installment_id": "C-A001-03",
			"student_id":     "A001",
			"amount":         45000,
			"paid_at":        time.Now().UTC().Format(time.RFC3339),
		},
	})
	resp, err := http.Post(env.server.URL+"/webhook/erp/payment-confirmed", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case sent := <-env.provider.bodies:
		text := sent["text"].(map[string]any)
		assert.Contains(t, text["body"], "Pago confirmado")
		assert.Contains(t, text["body"], "Juan Pérez García")
	case <-time.After(3 * time.Second):
		t.Fatal("payment confirmation not delivered")
	}
}

func TestPaymentConfirmedRequiresInstallment(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"type": "payment_confirmed", "data": {}}`)
	resp, err := http.Post(env.server.URL+"/webhook/erp/payment-confirmed", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestReplyTicketValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/api/v1/tickets/T-1/reply", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSendNotificationEndpoint(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]any{"whatsapp": "+5491112345001", "mensaje": "recordatorio"})
	resp, err := http.Post(env.server.URL+"/api/v1/notifications/send", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result whatsapp.SendResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Success)
}
