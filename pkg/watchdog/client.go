package watchdog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier is what the lifecycle engine fires after persistence. Both calls
// are fire-and-forget: they must never block or fail order processing.
type Notifier interface {
	Subscribe(addresses ...string)
	Unsubscribe(addresses ...string)
}

// Client posts subscribe/unsubscribe requests to the watchdog service that
// tracks maker wallets for transfer/approval changes.
type Client struct {
	baseURL string
	topic   string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewClient(baseURL, topic string, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		topic:   topic,
		http:    &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

func (c *Client) Subscribe(addresses ...string)   { c.post("/subscribe", addresses) }
func (c *Client) Unsubscribe(addresses ...string) { c.post("/unsubscribe", addresses) }

type request struct {
	Addresses []string `json:"addresses"`
	Topic     string   `json:"topic"`
}

func (c *Client) post(path string, addresses []string) {
	if c.baseURL == "" || len(addresses) == 0 {
		return
	}
	go func() {
		body, err := json.Marshal(request{Addresses: addresses, Topic: c.topic})
		if err != nil {
			c.log.Warnw("watchdog_marshal_failed", "err", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			c.log.Warnw("watchdog_request_failed", "path", path, "err", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Warnw("watchdog_post_failed", "path", path, "err", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			c.log.Warnw("watchdog_post_rejected", "path", path, "err", fmt.Errorf("status %d", resp.StatusCode))
		}
	}()
}

// Noop satisfies Notifier when no watchdog is configured.
type Noop struct{}

func (Noop) Subscribe(...string)   {}
func (Noop) Unsubscribe(...string) {}
