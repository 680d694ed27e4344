package bankgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a minimal REST client for the bank transfer gateway.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs a gateway client.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("bankgateway: empty base url")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// TransferRequest asks the gateway to move funds once per idempotency key.
type TransferRequest struct {
	IdempotencyKey  string          `json:"idempotencyKey"`
	FromAccount     string          `json:"fromAccount"`
	ToAccount       string          `json:"toAccount"`
	ToBankCode      string          `json:"toBankCode,omitempty"`
	BeneficiaryName string          `json:"beneficiaryName"`
	Amount          decimal.Decimal `json:"amount"`
	Memo            string          `json:"memo,omitempty"`
}

// TransferResult is the gateway verdict for a transfer.
type TransferResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	FailureReason string `json:"failureReason"`
}

// Succeeded reports whether the gateway accepted and settled the transfer.
func (r TransferResult) Succeeded() bool {
	switch strings.ToUpper(r.Status) {
	case "SUCCESS", "COMPLETED", "PAID":
		return r.TransactionID != ""
	default:
		return false
	}
}

// Transfer submits a transfer. Business rejections come back as a result with
// a failure reason; transport and 5xx failures are returned as errors.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if req.IdempotencyKey == "" {
		return TransferResult{}, errors.New("bankgateway: empty idempotency key")
	}
	if req.FromAccount == "" || req.ToAccount == "" {
		return TransferResult{}, errors.New("bankgateway: empty account")
	}
	if !req.Amount.IsPositive() {
		return TransferResult{}, errors.New("bankgateway: non-positive amount")
	}
	var resp TransferResult
	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/transfers", headers, req, &resp); err != nil {
		var rejected *rejectedError
		if errors.As(err, &rejected) {
			return TransferResult{Status: "FAILED", FailureReason: rejected.reason}, nil
		}
		return TransferResult{}, err
	}
	if !resp.Succeeded() && resp.FailureReason == "" && strings.ToUpper(resp.Status) == "FAILED" {
		resp.FailureReason = "rejected by bank"
	}
	return resp, nil
}

type rejectedError struct {
	status int
	reason string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("bankgateway: http %d: %s", e.status, e.reason)
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var e errorBody
		_ = json.NewDecoder(resp.Body).Decode(&e)
		reason := e.Message
		if reason == "" {
			reason = e.Error
		}
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return &rejectedError{status: resp.StatusCode, reason: reason}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bankgateway: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
