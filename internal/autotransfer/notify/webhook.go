package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier posts text alerts to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify posts the alert.
func (n *WebhookNotifier) Notify(ctx context.Context, alert TransferAlert) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatAlert(alert)},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: status %d", resp.StatusCode)
	}
	return nil
}

func formatAlert(alert TransferAlert) string {
	var b strings.Builder
	b.WriteString("[Auto-transfer failed]\n")
	fmt.Fprintf(&b, "Contract: %s\n", alert.ContractID)
	if alert.OwnerID != "" {
		fmt.Fprintf(&b, "Owner: %s\n", alert.OwnerID)
	}
	fmt.Fprintf(&b, "Scheduled: %s\n", alert.ScheduledDate)
	if alert.Amount != "" {
		fmt.Fprintf(&b, "Amount: %s\n", alert.Amount)
	}
	fmt.Fprintf(&b, "Attempts: %d\n", alert.RetryCount+1)
	if alert.FailureReason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", alert.FailureReason)
	}
	if alert.NextTransfer != "" {
		fmt.Fprintf(&b, "Next transfer: %s\n", alert.NextTransfer)
	}
	return strings.TrimSpace(b.String())
}
