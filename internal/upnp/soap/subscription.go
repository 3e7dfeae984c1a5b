package soap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ErrSubscriptionNotFound indicates the subscription doesn't exist (HTTP 412).
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Subscribe sends a GENA SUBSCRIBE request to the service event endpoint.
// A fresh subscription (sid == "") carries CALLBACK and NT headers; a renewal
// carries only the SID. Returns the SID and the granted timeout in seconds.
func (c *Client) Subscribe(ctx context.Context, svc Service, sid, callbackURL string, stateVars []string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", svc.EventSubURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}

	if sid == "" {
		req.Header.Set("CALLBACK", fmt.Sprintf("<%s>", callbackURL))
		req.Header.Set("NT", "upnp:event")
		if len(stateVars) > 0 {
			req.Header.Set("STATEVAR", strings.Join(stateVars, ","))
		}
	} else {
		req.Header.Set("SID", sid)
	}
	req.Header.Set("TIMEOUT", "Second-60")
	c.setUPnPHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, &RendererUnreachableError{Action: "SUBSCRIBE", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusPreconditionFailed {
		// 412 on a renewal means the device forgot us; caller resubscribes.
		return "", 0, ErrSubscriptionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("subscribe failed: %s", resp.Status)
	}

	newSID := resp.Header.Get("SID")
	if newSID == "" {
		newSID = sid
	}
	if newSID == "" {
		return "", 0, fmt.Errorf("no SID in response")
	}

	return newSID, ParseTimeout(resp.Header.Get("TIMEOUT")), nil
}

// Unsubscribe sends an UNSUBSCRIBE request. Always best-effort: network
// failures and 412 are treated as success because the device may be gone.
func (c *Client) Unsubscribe(ctx context.Context, svc Service, sid string) error {
	if sid == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, "UNSUBSCRIBE", svc.EventSubURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("SID", sid)
	c.setUPnPHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusPreconditionFailed {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unsubscribe failed: %s", resp.Status)
	}
	return nil
}

// ParseTimeout extracts the timeout value from a SUBSCRIBE response header.
// Returns timeout in seconds.
func ParseTimeout(timeoutHeader string) int {
	if timeoutHeader == "infinite" {
		// 24 hours instead of forever so renewal math never goes negative.
		return 86400
	}

	timeoutHeader = strings.TrimPrefix(timeoutHeader, "Second-")
	if timeout, err := strconv.Atoi(timeoutHeader); err == nil {
		return timeout
	}
	return 60
}
