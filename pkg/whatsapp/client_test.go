package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulationMode(t *testing.T) {
	client := NewClient("dummy-token", "12345")
	require.True(t, client.Simulated())

	result := client.SendText(context.Background(), "+5491112345001", "hola", "")
	assert.True(t, result.Success)
	assert.True(t, result.Simulated)
	assert.True(t, strings.HasPrefix(result.MessageID, "sim_"))
	assert.Equal(t, "5491112345001", result.To)
}

func TestSendTextLive(t *testing.T) {
	var captured map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/99887/messages", r.URL.Path)
		assert.Equal(t, "Bearer real-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{{"id": "wamid.001"}},
		})
	}))
	defer ts.Close()

	client := NewClientWithBaseURL("real-token", "99887", ts.URL)
	require.False(t, client.Simulated())

	result := client.SendText(context.Background(), "+5491112345001", "tu cuota vence", "wamid.prev")
	require.True(t, result.Success)
	assert.Equal(t, "wamid.001", result.MessageID)

	assert.Equal(t, "whatsapp", captured["messaging_product"])
	assert.Equal(t, "5491112345001", captured["to"])
	assert.Equal(t, "text", captured["type"])
	assert.Equal(t, map[string]any{"body": "tu cuota vence"}, captured["text"])
	assert.Equal(t, map[string]any{"message_id": "wamid.prev"}, captured["context"])
}

func TestSendTextProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClientWithBaseURL("bad-token", "99887", ts.URL)
	result := client.SendText(context.Background(), "+549", "x", "")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "401")
}

func TestReminderMessages(t *testing.T) {
	msg := ReminderMessage("Juan Pérez García", 45000, "2026-03-15", 1, "https://pagos/x")
	assert.Contains(t, msg, "Vence mañana")
	assert.Contains(t, msg, "$45,000")
	assert.Contains(t, msg, "https://pagos/x")

	msg3 := ReminderMessage("Juan", 45000, "2026-03-15", 3, "")
	assert.Contains(t, msg3, "3 días")
	assert.NotContains(t, msg3, "🔗")
}

func TestPaymentConfirmationMessage(t *testing.T) {
	msg := PaymentConfirmationMessage("Ana Pérez García", 132000)
	assert.Contains(t, msg, "Pago confirmado")
	assert.Contains(t, msg, "Ana Pérez García")
	assert.Contains(t, msg, "$132,000")
}
