package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mindgraph/voicestream/pkg/errorsx"
)

const (
	ticketPath = "/voice-stream/ticket"
	wsPath     = "/voice-stream/ws"

	// Anything shorter cannot be a real credential; fail before dialing.
	minTicketLen = 10

	defaultTimeout = 10 * time.Second
)

// Issuer obtains short-lived, single-use WebSocket credentials from the
// voice-stream REST endpoint. It holds no state between calls.
type Issuer struct {
	baseURL   string
	authToken string
	client    *http.Client
}

type ticketResponse struct {
	Ticket string `json:"ticket"`
}

// NewIssuer creates an issuer for the given API base URL. authToken may be
// empty when the caller's cookie/session carries auth.
func NewIssuer(baseURL, authToken string, timeout time.Duration) *Issuer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Issuer{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
	}
}

// Fetch requests a fresh ticket. The ticket is consumed by exactly one
// socket upgrade; callers must fetch again for every dial.
func (i *Issuer) Fetch(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+ticketPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("create ticket request: %w", err), errorsx.ReasonTicketFetch)
	}
	req.Header.Set("Content-Type", "application/json")
	if i.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+i.authToken)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("ticket request: %w", err), errorsx.ReasonTicketFetch)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("read ticket response: %w", err), errorsx.ReasonTicketFetch)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errorsx.Wrap(fmt.Errorf("ticket endpoint http %d: %s", resp.StatusCode, string(body)), errorsx.ReasonTicketFetch)
	}

	var tr ticketResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", errorsx.Wrap(fmt.Errorf("unmarshal ticket response: %w", err), errorsx.ReasonTicketFetch)
	}
	if len(tr.Ticket) < minTicketLen {
		return "", errorsx.New(errorsx.ReasonTicketInvalid, "invalid WS ticket response")
	}
	return tr.Ticket, nil
}

// WSEndpoint derives the websocket URL for a ticket from the API base URL,
// upgrading http->ws and https->wss.
func WSEndpoint(baseURL, tkt string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + wsPath
	q := u.Query()
	q.Set("ticket", tkt)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
