// Package mail implements a minimal client for the SendGrid v3 mail-send
// endpoint, used as the alert delivery channel for flagged moderation
// decisions.
//
// The client exposes the provider's completion status (HTTP code and body)
// rather than collapsing it into an error, because the notifier records
// three distinct outcomes: accepted, rejected by the provider, and failed
// in transport. Only the last one surfaces as a Go error.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// DefaultBaseURL is the production SendGrid API host.
const DefaultBaseURL = "https://api.sendgrid.com"

// Client sends mail through SendGrid. Construct it once at process start;
// it is safe for concurrent use. A Client with an empty API key reports
// itself as unconfigured and must not be asked to send.
type Client struct {
	apiKey  string
	from    string
	baseURL string
	hc      *http.Client
}

// New returns a Client sending from the given address. baseURL may be empty
// to use the production host; hc may be nil to use http.DefaultClient
// (inject a client with a timeout in production).
func New(apiKey, from, baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		apiKey:  apiKey,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      hc,
	}
}

// Configured reports whether an API key is present. Callers short-circuit
// delivery entirely when it returns false.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Result is the provider's completion status for one send attempt.
type Result struct {
	// StatusCode is the HTTP status returned by SendGrid (202 on success).
	StatusCode int
	// Body is the (possibly empty) response body, useful when rejected.
	Body string
}

// Accepted reports whether the provider accepted the message for delivery.
func (r Result) Accepted() bool {
	return r.StatusCode == http.StatusOK || r.StatusCode == http.StatusAccepted
}

// v3 mail-send request payload.
type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []address `json:"to"`
}

type address struct {
	Email string `json:"email"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers an HTML message to a single recipient. It returns the
// provider's completion status, or an error when the request never
// completed (transport failure, cancelled context, bad payload).
func (c *Client) Send(ctx context.Context, to, subject, htmlBody string) (Result, error) {
	payload := sendRequest{
		Personalizations: []personalization{{To: []address{{Email: to}}}},
		From:             address{Email: c.from},
		Subject:          subject,
		Content:          []content{{Type: "text/html", Value: htmlBody}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return Result{}, err
	}
	return Result{StatusCode: res.StatusCode, Body: string(respBody)}, nil
}
