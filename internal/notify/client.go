package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notification is the payload delivered to the webhook when an absence
// explanation is decided.
type Notification struct {
	ExplanationID string  `json:"explanation_id"`
	StudentID     string  `json:"student_id"`
	Status        string  `json:"status"`
	Comment       *string `json:"comment,omitempty"`
	ReviewedBy    string  `json:"reviewed_by"`
}

// Client delivers decision notifications to an external webhook, typically a
// mail or push gateway in front of the school's messaging.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, Send logs nothing out and succeeds,
// which keeps dev environments quiet.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send posts one notification.
func (c *Client) Send(ctx context.Context, n Notification) error {
	if c.Skip {
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: webhook returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// Health checks that the webhook endpoint answers at all.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.BaseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
