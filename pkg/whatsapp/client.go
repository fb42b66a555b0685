// Package whatsapp provides the outbound messaging client for the Meta
// Cloud API, with a simulation mode for dummy tokens.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://graph.facebook.com/v18.0"

// SendResult reports the outcome of one outbound message.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	To        string `json:"to"`
	Simulated bool   `json:"simulated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Client sends WhatsApp messages. A token starting with "dummy" switches the
// client into simulation mode: sends are logged and succeed without touching
// the provider.
type Client struct {
	token         string
	phoneNumberID string
	baseURL       string
	simulation    bool
	http          *http.Client
	logger        *slog.Logger
}

// NewClient creates a messaging client.
func NewClient(token, phoneNumberID string) *Client {
	return NewClientWithBaseURL(token, phoneNumberID, defaultBaseURL)
}

// NewClientWithBaseURL targets a custom API URL. Useful for testing with a
// mock server.
func NewClientWithBaseURL(token, phoneNumberID, baseURL string) *Client {
	simulation := strings.HasPrefix(token, "dummy")
	if simulation {
		slog.Warn("WhatsApp client in simulation mode (dummy token)")
	}
	return &Client{
		token:         token,
		phoneNumberID: phoneNumberID,
		baseURL:       strings.TrimRight(baseURL, "/"),
		simulation:    simulation,
		http:          &http.Client{Timeout: 30 * time.Second},
		logger:        slog.Default().With("component", "whatsapp-client"),
	}
}

// Simulated reports whether the client is in simulation mode.
func (c *Client) Simulated() bool { return c.simulation }

// SendText sends a text message. replyTo, when non-empty, threads the
// message as a reply via the provider's context field.
func (c *Client) SendText(ctx context.Context, to, text, replyTo string) *SendResult {
	// Provider expects the destination without the leading "+".
	to = strings.TrimPrefix(to, "+")

	if c.simulation {
		c.logger.Info("[SIMULADO] WhatsApp message", "to", to, "preview", preview(text))
		return &SendResult{
			Success:   true,
			MessageID: "sim_" + uuid.New().String(),
			To:        to,
			Simulated: true,
		}
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": text},
	}
	if replyTo != "" {
		payload["context"] = map[string]any{"message_id": replyTo}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return &SendResult{Success: false, To: to, Error: err.Error()}
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return &SendResult{Success: false, To: to, Error: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("WhatsApp send failed", "to", to, "error", err)
		return &SendResult{Success: false, To: to, Error: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		c.logger.Error("WhatsApp send rejected", "to", to, "status", resp.StatusCode)
		return &SendResult{Success: false, To: to, Error: fmt.Sprintf("provider returned status %d", resp.StatusCode)}
	}

	var decoded struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return &SendResult{Success: false, To: to, Error: err.Error()}
	}

	result := &SendResult{Success: true, To: to}
	if len(decoded.Messages) > 0 {
		result.MessageID = decoded.Messages[0].ID
	}
	c.logger.Info("WhatsApp message sent", "to", to, "message_id", result.MessageID)
	return result
}

func preview(text string) string {
	if len(text) > 100 {
		return text[:100] + "..."
	}
	return text
}
