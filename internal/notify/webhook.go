package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BioHazard786/doorcall/internal/callerr"
)

const webhookTimeout = 10 * time.Second

// Webhook POSTs the notice as JSON. Any relay (chat bot, SMS gateway, mail
// bridge) that accepts a JSON body can sit behind it.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &Webhook{url: url, client: client}
}

func (w *Webhook) Notify(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return callerr.Wrap("webhook", err, "encode notice")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return callerr.Wrap("webhook", err, w.url)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return callerr.Wrap("webhook", err, w.url)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return callerr.Wrap("webhook", fmt.Errorf("unexpected status %s", resp.Status), w.url)
	}
	return nil
}
