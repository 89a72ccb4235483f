package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

// HistoryURL derives the relay's history endpoint from its WebSocket URL:
// ws://host/ws becomes http://host/.
func HistoryURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// FetchHistory downloads every envelope the relay has recorded.
func FetchHistory(ctx context.Context, httpClient *http.Client, historyURL string) ([]chat.Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, historyURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history: unexpected status %s", resp.Status)
	}

	var envelopes []chat.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&envelopes); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return envelopes, nil
}
