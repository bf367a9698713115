// internal/mandate/client.go
package mandate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flowcoach/internal/common/errors"
	commonhttp "flowcoach/internal/common/http"
	"flowcoach/internal/common/logger"
	"flowcoach/internal/common/metrics"
)

// Client is the typed RPC surface over the mandate API. It performs no
// retries itself; failures surface to the caller, who may retry.
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *commonhttp.Client
	logger      logger.Logger
}

func NewClient(baseURL, bearerToken string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		bearerToken: bearerToken,
		httpClient:  commonhttp.NewClient(timeout),
		logger:      log.WithFields(map[string]interface{}{"component": "mandate-client"}),
	}
}

type createRequest struct {
	Type Type                   `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Create proposes a new mandate. data must be a non-empty payload.
func (c *Client) Create(ctx context.Context, mandateType Type, data map[string]interface{}) (*Mandate, error) {
	if len(data) == 0 {
		return nil, errors.NewInvalidIntentDataError("mandate data must be a non-empty object")
	}

	var m Mandate
	err := c.do(ctx, "create", "/ap2/mandates", createRequest{Type: mandateType, Data: data}, &m)
	if err != nil {
		return nil, err
	}

	metrics.MandatesCreated.WithLabelValues(string(mandateType)).Inc()
	c.logger.Info("mandate created", map[string]interface{}{
		"mandateId": m.ID,
		"type":      string(m.Type),
	})
	return &m, nil
}

// Approve moves a pending mandate to approved. The server rejects approval
// of mandates not in pending_approval.
func (c *Client) Approve(ctx context.Context, id string) (*Mandate, error) {
	var m Mandate
	err := c.do(ctx, "approve", fmt.Sprintf("/ap2/mandates/%s/approve", id), nil, &m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Decline moves a pending mandate to declined.
func (c *Client) Decline(ctx context.Context, id string) (*Mandate, error) {
	var m Mandate
	err := c.do(ctx, "decline", fmt.Sprintf("/ap2/mandates/%s/decline", id), nil, &m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Execute performs an approved mandate's action. Calling it on a mandate
// that is not approved is a caller error.
func (c *Client) Execute(ctx context.Context, id string) (*Result, error) {
	var r Result
	err := c.do(ctx, "execute", fmt.Sprintf("/ap2/mandates/%s/execute", id), nil, &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// errorResponse is the shape the backend uses for non-2xx bodies.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, operation, path string, payload, out interface{}) error {
	start := time.Now()
	defer func() {
		metrics.MandateOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.MandateOpFailures.WithLabelValues(operation, string(errors.ErrCodeNetworkError)).Inc()
		return errors.NewNetworkError(operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.MandateOpFailures.WithLabelValues(operation, string(errors.ErrCodeNetworkError)).Inc()
		return errors.NewNetworkError(operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serverMessage := ""
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Message != "" {
				serverMessage = errResp.Message
			} else if errResp.Error != "" {
				serverMessage = errResp.Error
			}
		}
		metrics.MandateOpFailures.WithLabelValues(operation, string(errors.ErrCodeServerError)).Inc()
		c.logger.Warn("mandate operation rejected", map[string]interface{}{
			"operation": operation,
			"status":    resp.StatusCode,
			"message":   serverMessage,
		})
		return errors.NewServerError(operation, resp.StatusCode, serverMessage)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			metrics.MandateOpFailures.WithLabelValues(operation, string(errors.ErrCodeServerError)).Inc()
			return errors.NewServerError(operation, resp.StatusCode, fmt.Sprintf("malformed %s response", operation))
		}
	}

	return nil
}
