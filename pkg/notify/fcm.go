package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FCMClient posts payloads to a Firebase Cloud Messaging style HTTP
// endpoint authenticated by a server key.
type FCMClient struct {
	endpoint   string
	serverKey  string
	httpClient *http.Client
}

// NewFCMClient builds a push client for the given endpoint.
func NewFCMClient(endpoint, serverKey string) (*FCMClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("notify: fcm endpoint required")
	}
	if strings.TrimSpace(serverKey) == "" {
		return nil, errors.New("notify: fcm server key required")
	}
	return &FCMClient{
		endpoint:   endpoint,
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type fcmMessage struct {
	To           string            `json:"to"`
	Data         map[string]string `json:"data,omitempty"`
	Notification fcmNotification   `json:"notification"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send posts the payload and treats any non-2xx response as failure.
func (c *FCMClient) Send(ctx context.Context, p Payload) error {
	if p.TargetToken == "" {
		return errors.New("notify: target token required")
	}
	body, err := json.Marshal(fcmMessage{
		To:   p.TargetToken,
		Data: p.Data,
		Notification: fcmNotification{
			Title: p.Title,
			Body:  p.Body,
		},
	})
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: push endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
