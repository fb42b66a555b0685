// Package erp provides the typed client the orchestrator uses against the
// ERP service. 404 maps to an empty result; repeated upstream failures trip
// a circuit breaker that surfaces as upstream-unavailable.
package erp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/colegio-ws/gestor/pkg/models"
	"github.com/colegio-ws/gestor/pkg/version"
)

// ErrUnavailable wraps transport failures and open-breaker rejections.
var ErrUnavailable = fmt.Errorf("erp unavailable")

// Client is the ERP adapter. Safe for concurrent use; construct once per
// process and share by reference.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

var (
	sharedOnce   sync.Once
	sharedClient *Client
)

// Shared lazily constructs the process-wide client on first use.
func Shared(baseURL string) *Client {
	sharedOnce.Do(func() {
		sharedClient = NewClient(baseURL)
	})
	return sharedClient
}

// NewClient creates an ERP client with a fixed 30s timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "erp",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		logger: slog.Default().With("component", "erp-client"),
	}
}

// GetStudent returns a student view, or nil on a miss.
func (c *Client) GetStudent(ctx context.Context, id string) (*models.StudentView, error) {
	var view models.StudentView
	found, err := c.getJSON(ctx, "/api/v1/students/"+url.PathEscape(id)+"?embed=guardians", &view)
	if err != nil || !found {
		return nil, err
	}
	return &view, nil
}

// GetStudentInstallments lists a student's installments; state "" means all.
func (c *Client) GetStudentInstallments(ctx context.Context, studentID string, state models.InstallmentState) ([]models.Installment, error) {
	path := "/api/v1/students/" + url.PathEscape(studentID) + "/installments"
	if state != "" {
		path += "?state=" + url.QueryEscape(string(state))
	}
	var installments []models.Installment
	found, err := c.getJSON(ctx, path, &installments)
	if err != nil {
		return nil, err
	}
	if !found {
		return []models.Installment{}, nil
	}
	return installments, nil
}

// GetGuardianByHandle returns a guardian with embedded students, or nil on a
// miss. The handle is normalized before lookup.
func (c *Client) GetGuardianByHandle(ctx context.Context, handle string) (*models.GuardianView, error) {
	normalized := models.NormalizeHandle(handle)
	var view models.GuardianView
	found, err := c.getJSON(ctx, "/api/v1/guardians/by-handle/"+url.PathEscape(normalized), &view)
	if err != nil || !found {
		return nil, err
	}
	return &view, nil
}

// GetInstallment returns an installment with embedded student and plan, or
// nil on a miss.
func (c *Client) GetInstallment(ctx context.Context, id string) (*models.InstallmentView, error) {
	var view models.InstallmentView
	found, err := c.getJSON(ctx, "/api/v1/installments/"+url.PathEscape(id)+"?embed=student,plan", &view)
	if err != nil || !found {
		return nil, err
	}
	return &view, nil
}

// GetUpcomingInstallments lists pending installments due within the window.
func (c *Client) GetUpcomingInstallments(ctx context.Context, days int) ([]models.Installment, error) {
	now := time.Now().UTC()
	path := fmt.Sprintf("/api/v1/installments?state=%s&due_from=%s&due_to=%s",
		models.InstallmentPending,
		now.Format("2006-01-02"),
		now.AddDate(0, 0, days).Format("2006-01-02"))
	var installments []models.Installment
	found, err := c.getJSON(ctx, path, &installments)
	if err != nil {
		return nil, err
	}
	if !found {
		return []models.Installment{}, nil
	}
	return installments, nil
}

// ConfirmPaymentResult is the ERP response to a payment confirmation.
type ConfirmPaymentResult struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	Payment     *models.Payment     `json:"payment"`
	Installment *models.Installment `json:"installment"`
}

// ConfirmPayment confirms a payment. NOT idempotent: a second call for the
// same installment fails, so callers must never retry blindly.
func (c *Client) ConfirmPayment(ctx context.Context, installmentID string, amount float64, method, reference string) (*ConfirmPaymentResult, error) {
	body, err := json.Marshal(map[string]any{
		"installment_id": installmentID,
		"amount":         amount,
		"method":         method,
		"reference":      reference,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment confirmation: %w", err)
	}

	// Business outcomes (AlreadyPaid, NotFound) travel inside the success
	// value so they never count as breaker failures.
	type confirmOutcome struct {
		result *ConfirmPaymentResult
		bizErr error
	}

	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/payments/confirm", strings.NewReader(string(body)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", version.Full())

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch resp.StatusCode {
		case http.StatusOK:
			var out ConfirmPaymentResult
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return nil, fmt.Errorf("failed to decode confirmation response: %w", err)
			}
			return confirmOutcome{result: &out}, nil
		case http.StatusBadRequest:
			return confirmOutcome{bizErr: ErrAlreadyPaid}, nil
		case http.StatusNotFound:
			return confirmOutcome{bizErr: ErrNotFound}, nil
		default:
			return nil, fmt.Errorf("erp returned status %d", resp.StatusCode)
		}
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	outcome := result.(confirmOutcome)
	if outcome.bizErr != nil {
		return nil, outcome.bizErr
	}
	return outcome.result, nil
}

// HealthCheck reports whether the ERP answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Payment confirmation sentinel errors.
var (
	ErrAlreadyPaid = fmt.Errorf("installment already paid")
	ErrNotFound    = fmt.Errorf("not found")
)

// getJSON performs a GET through the breaker. Returns (false, nil) on 404.
func (c *Client) getJSON(ctx context.Context, path string, out any) (bool, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", version.Full())

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return false, nil
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("erp returned status %d for %s", resp.StatusCode, path)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode erp response: %w", err)
		}
		return true, nil
	})
	if err != nil {
		return false, breakerErr(err)
	}
	return result.(bool), nil
}

// breakerErr maps open-breaker rejections to ErrUnavailable.
func breakerErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	return err
}
