package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DeliveryClient performs the single outbound call for a conversation.
// A nil error means the endpoint accepted the delivery.
type DeliveryClient interface {
	Send(ctx context.Context, endpoint, method, body string, headers map[string]string) error
}

type HTTPDeliveryClient struct {
	client *http.Client
}

func NewHTTPDeliveryClient(timeout time.Duration) *HTTPDeliveryClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDeliveryClient{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// maxErrorBody caps how much of a failure response ends up in the error.
const maxErrorBody = 2048

func (c *HTTPDeliveryClient) Send(ctx context.Context, endpoint, method, body string, headers map[string]string) error {
	if endpoint == "" {
		return errors.New("endpoint must not be empty")
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	for k, v := range headers {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(snippet))
}
