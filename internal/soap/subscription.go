package soap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrSubscriptionNotFound reports HTTP 412 on a renewal: the
// renderer no longer recognizes the SID and a full Subscribe is
// required instead.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionClient issues GENA SUBSCRIBE/RENEW/UNSUBSCRIBE requests
// against a service's eventSubURL.
type SubscriptionClient struct {
	httpClient *http.Client
}

// NewSubscriptionClient creates a GENA client with the given timeout.
func NewSubscriptionClient(timeout time.Duration) *SubscriptionClient {
	return &SubscriptionClient{httpClient: &http.Client{Timeout: timeout}}
}

// Subscribe establishes a new subscription against eventSubURL,
// returning the SID and the timeout the renderer actually granted.
func (c *SubscriptionClient) Subscribe(ctx context.Context, eventSubURL, callbackURL string, timeoutSec int) (sid string, actualTimeoutSec int, err error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", eventSubURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("CALLBACK", "<"+callbackURL+">")
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", fmt.Sprintf("Second-%d", timeoutSec))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("subscribe request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("subscribe failed: %s", resp.Status)
	}

	sid = ParseSID(resp.Header.Get("SID"))
	if sid == "" {
		return "", 0, errors.New("no SID in subscribe response")
	}
	return sid, ParseTimeout(resp.Header.Get("TIMEOUT")), nil
}

// Renew extends an existing subscription by SID.
func (c *SubscriptionClient) Renew(ctx context.Context, eventSubURL, sid string, timeoutSec int) (actualTimeoutSec int, err error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", eventSubURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("SID", sid)
	req.Header.Set("TIMEOUT", fmt.Sprintf("Second-%d", timeoutSec))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("renew request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusPreconditionFailed {
		return 0, ErrSubscriptionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("renew failed: %s", resp.Status)
	}
	return ParseTimeout(resp.Header.Get("TIMEOUT")), nil
}

// Unsubscribe tears down a subscription by SID. Network failures and
// an already-gone subscription (412) are both treated as success: the
// renderer may already be offline, which is the common reason we are
// unsubscribing in the first place.
func (c *SubscriptionClient) Unsubscribe(ctx context.Context, eventSubURL, sid string) error {
	req, err := http.NewRequestWithContext(ctx, "UNSUBSCRIBE", eventSubURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("SID", sid)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusPreconditionFailed {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unsubscribe failed: %s", resp.Status)
	}
	return nil
}

// ParseSID extracts the subscription id from a SUBSCRIBE response's
// SID header (already in "uuid:..." form).
func ParseSID(sidHeader string) string {
	return sidHeader
}

// ParseTimeout extracts a GENA TIMEOUT header's second count.
func ParseTimeout(timeoutHeader string) int {
	if timeoutHeader == "infinite" {
		return 86400
	}
	trimmed := strings.TrimPrefix(timeoutHeader, "Second-")
	if timeout, err := strconv.Atoi(trimmed); err == nil {
		return timeout
	}
	return 3600
}
