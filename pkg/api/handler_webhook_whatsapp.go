package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/masking"
	"github.com/colegio-ws/gestor/pkg/models"
)

// whatsappVerifyHandler answers the provider's verification handshake:
// the integer challenge iff the submitted verify token matches.
func (s *Server) whatsappVerifyHandler(c *echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token != "" && token == s.cfg.WhatsAppVerifyToken {
		value, err := strconv.Atoi(challenge)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid challenge"})
		}
		slog.Info("WhatsApp webhook verified")
		return c.JSON(http.StatusOK, value)
	}

	slog.Warn("WhatsApp webhook verification failed")
	return c.JSON(http.StatusForbidden, map[string]any{"error": "invalid verify token"})
}

// inboundMessage is the simplified inbound shape. The provider's native
// payload is flattened into it.
type inboundMessage struct {
	FromNumber string `json:"from_number"`
	Text       string `json:"text"`
	MessageID  string `json:"message_id,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// nativePayload mirrors the provider's webhook envelope
// (object/entry/changes/value/messages).
type nativePayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
					Timestamp string `json:"timestamp"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// decodeInbound accepts either shape and returns the simplified one.
func decodeInbound(body []byte) (*inboundMessage, bool) {
	var native nativePayload
	if err := json.Unmarshal(body, &native); err == nil && native.Object != "" {
		for _, entry := range native.Entry {
			for _, change := range entry.Changes {
				for _, msg := range change.Value.Messages {
					if msg.Text.Body == "" {
						continue
					}
					return &inboundMessage{
						FromNumber: "+" + msg.From,
						Text:       msg.Text.Body,
						MessageID:  msg.ID,
						Timestamp:  msg.Timestamp,
					}, true
				}
			}
		}
		return nil, false
	}

	var simple inboundMessage
	if err := json.Unmarshal(body, &simple); err != nil {
		return nil, false
	}
	if simple.FromNumber == "" || simple.Text == "" {
		return nil, false
	}
	return &simple, true
}

// whatsappInboundHandler receives an inbound message, acknowledges
// immediately, and runs the agent pipeline on the background dispatcher.
func (s *Server) whatsappInboundHandler(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid body"})
	}

	message, ok := decodeInbound(body)
	if !ok {
		// Provider status callbacks and empty batches are acknowledged
		// without processing.
		return c.JSON(http.StatusOK, map[string]any{"status": "ignored"})
	}

	handle := models.NormalizeHandle(message.FromNumber)
	text := message.Text
	replyTo := message.MessageID

	slog.Info("Inbound WhatsApp message",
		"handle", masking.MaskHandle(handle), "preview", masking.MaskPII(preview(text)))

	queued := s.dispatcher.Enqueue("inbound:"+handle, func(ctx context.Context) {
		s.processInbound(ctx, handle, text, replyTo)
	})
	if !queued {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "busy"})
	}

	return c.JSON(http.StatusOK, map[string]any{"status": "accepted"})
}

// processInbound runs one message through the agent and delivers the reply.
// Runs on the dispatcher with the per-request timeout.
func (s *Server) processInbound(ctx context.Context, handle, text, replyTo string) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	// Task-local token session for the whole run.
	session := llm.StartSession("", handle, text)
	ctx = llm.WithSession(ctx, session)

	reply, agentTag, err := s.runner.Process(ctx, handle, text)
	if err != nil || reply == "" {
		slog.Error("Agent pipeline failed", "handle", masking.MaskHandle(handle), "error", err)
		reply = "Disculpá, tuve un problema procesando tu mensaje. ¿Podés intentar de nuevo?"
		agentTag = "error"
	}

	if result := s.messenger.SendText(ctx, handle, reply, replyTo); !result.Success {
		slog.Error("Failed to deliver reply", "handle", masking.MaskHandle(handle), "error", result.Error)
	}

	session.Finalize()

	// Persist the exchange and the usage aggregate off the reply path.
	s.dispatcher.Enqueue("log-exchange:"+handle, func(jobCtx context.Context) {
		if err := s.interactions.RecordExchange(jobCtx, handle, text, reply, agentTag); err != nil {
			slog.Error("Failed to record interaction", "handle", masking.MaskHandle(handle), "error", err)
		}
		if err := s.tokenUsage.Save(jobCtx, session); err != nil {
			slog.Error("Failed to save token usage", "query_id", session.QueryID, "error", err)
		}
	})
}

func preview(text string) string {
	if len(text) > 80 {
		return text[:80] + "..."
	}
	return text
}
