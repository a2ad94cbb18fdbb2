// Package sightengine implements a typed HTTP client for the Sightengine
// content-moderation API. It covers the two endpoints this application
// consumes: rule-based text checking and multi-model image checking.
//
// Responses are validated at this boundary and exposed as defined structures
// with explicit optional fields rather than untyped key lookups. The text
// response additionally preserves the order of top-level category fields,
// because the decision pipeline reports flagged categories in the order the
// provider returned them.
//
// Error semantics:
//   - Transport failures and malformed bodies are returned as plain errors.
//   - A provider-reported non-success status is returned as *ProviderError
//     carrying the provider's own message.
package sightengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// DefaultBaseURL is the production Sightengine API host.
const DefaultBaseURL = "https://api.sightengine.com"

// TextCategories is the fixed category list submitted with every text
// check. The set is provider configuration, not something callers vary.
const TextCategories = "profanity,personal-info,links,drugs,weapons,spam," +
	"commercial-trade,money-transaction,extremism,violence,self-harm," +
	"medical,toxicity,harassment"

// ImageModels is the fixed model list requested with every image check.
const ImageModels = "nudity,violence,weapon,alcohol,drugs"

// statusSuccess is the value of the "status" field on a successful response.
const statusSuccess = "success"

// metadataFields are top-level response fields that carry protocol metadata
// rather than category verdicts; the text scan skips them.
var metadataFields = map[string]struct{}{
	"status":  {},
	"request": {},
	"error":   {},
}

// APIError is the error payload embedded in a failed provider response.
type APIError struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ProviderError signals that the provider answered but reported a
// non-success status. The message is the provider's own, propagated
// verbatim to the caller.
type ProviderError struct {
	Message string
}

// Error implements the error interface.
func (e *ProviderError) Error() string { return e.Message }

// Client is a Sightengine API client. Construct it once at process start
// and inject it into the moderation service; it is safe for concurrent use.
type Client struct {
	apiUser   string
	apiSecret string
	baseURL   string
	hc        *http.Client
}

// New returns a Client using the given credentials. baseURL may be empty to
// use the production host; hc may be nil to use http.DefaultClient (inject
// a client with a timeout in production).
func New(apiUser, apiSecret, baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		apiUser:   apiUser,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		hc:        hc,
	}
}

// Category is one top-level verdict field of a text-check response, in the
// position the provider returned it.
type Category struct {
	// Name is the provider's field name, e.g. "profanity".
	Name string
	// Matched reports whether the category's match indicator was positive.
	Matched bool
}

// TextCheckResponse is the decoded result of a rule-based text check.
type TextCheckResponse struct {
	// Status is the provider status string ("success" or "failure").
	Status string
	// Err is the provider error payload, set only on failure.
	Err *APIError
	// Categories holds every non-metadata top-level field that carries a
	// structured match indicator, in response order.
	Categories []Category
	// Raw is the unmodified response body, retained for audit storage.
	Raw string
}

// ImageModelScore is the per-model score block of an image-check response.
// Which field is populated depends on the model: nudity and violence report
// a raw score, weapon/alcohol/drugs report a probability.
type ImageModelScore struct {
	Raw  *float64 `json:"raw,omitempty"`
	Prob *float64 `json:"prob,omitempty"`
}

// ImageCheckResponse is the decoded result of a multi-model image check.
// Model blocks are optional; a missing block means the model returned no
// score and must be treated as not triggered.
type ImageCheckResponse struct {
	Status   string           `json:"status"`
	Err      *APIError        `json:"error,omitempty"`
	Nudity   *ImageModelScore `json:"nudity,omitempty"`
	Violence *ImageModelScore `json:"violence,omitempty"`
	Weapon   *ImageModelScore `json:"weapon,omitempty"`
	Alcohol  *ImageModelScore `json:"alcohol,omitempty"`
	Drugs    *ImageModelScore `json:"drugs,omitempty"`

	// Raw is the unmodified response body, retained for audit storage.
	Raw string `json:"-"`
}

// CheckText submits text to the rule-based text-check endpoint and decodes
// the per-category verdicts. lang is a BCP 47 language code; callers pass
// "en" when the submission carried no tag.
//
// A provider-reported failure is returned as *ProviderError.
func (c *Client) CheckText(ctx context.Context, text, lang string) (*TextCheckResponse, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("lang", lang)
	form.Set("categories", TextCategories)
	form.Set("mode", "rules")
	form.Set("api_user", c.apiUser)
	form.Set("api_secret", c.apiSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/1.0/text/check.json", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	resp, err := parseTextResponse(body)
	if err != nil {
		return nil, fmt.Errorf("sightengine: malformed text response: %w", err)
	}
	if resp.Status != statusSuccess {
		return nil, &ProviderError{Message: providerMessage(resp.Status, resp.Err)}
	}
	return resp, nil
}

// CheckImage submits image bytes to the image-check endpoint, requesting the
// fixed model set. The bytes are staged in a temporary file for the duration
// of the provider call; the file is removed on every exit path.
//
// A provider-reported failure is returned as *ProviderError.
func (c *Client) CheckImage(ctx context.Context, data []byte, filename string) (*ImageCheckResponse, error) {
	tmp, err := os.CreateTemp("", "moderation-upload-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	if filename == "" {
		filename = "upload"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, tmp); err != nil {
		return nil, err
	}
	for k, v := range map[string]string{
		"models":     ImageModels,
		"api_user":   c.apiUser,
		"api_secret": c.apiSecret,
	} {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/1.0/check.json", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp ImageCheckResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("sightengine: malformed image response: %w", err)
	}
	resp.Raw = string(body)
	if resp.Status != statusSuccess {
		return nil, &ProviderError{Message: providerMessage(resp.Status, resp.Err)}
	}
	return &resp, nil
}

// do executes the request and drains the body. Non-2xx responses with a
// decodable error payload still flow through the callers' status handling,
// so the body is returned regardless of the HTTP status code.
func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sightengine: request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("sightengine: reading response: %w", err)
	}
	return body, nil
}

// providerMessage picks the most specific message available from a failed
// response.
func providerMessage(status string, apiErr *APIError) string {
	if apiErr != nil && apiErr.Message != "" {
		return apiErr.Message
	}
	if status == "" {
		return "provider returned no status"
	}
	return "provider status " + status
}

// parseTextResponse decodes a text-check body while preserving the order of
// top-level fields. encoding/json maps are unordered, so the decoder walks
// the token stream instead.
func parseTextResponse(body []byte) (*TextCheckResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	resp := &TextCheckResponse{Raw: string(body)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}

		switch key {
		case "status":
			_ = json.Unmarshal(raw, &resp.Status)
		case "error":
			var e APIError
			if json.Unmarshal(raw, &e) == nil {
				resp.Err = &e
			}
		case "request":
			// request id block; protocol metadata, not a verdict
		default:
			matched, indicator := matchIndicator(raw)
			if indicator {
				resp.Categories = append(resp.Categories, Category{Name: key, Matched: matched})
			}
		}
	}
	return resp, nil
}

// matchIndicator inspects a top-level field value. It reports whether the
// value is a structured match indicator (an object carrying a "matches"
// member) and, if so, whether that indicator is positive. Positive means a
// true boolean, a non-zero number, or a non-empty array/string of matches.
func matchIndicator(raw json.RawMessage) (matched, indicator bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false, false
	}
	m, ok := obj["matches"]
	if !ok {
		return false, false
	}

	var b bool
	if json.Unmarshal(m, &b) == nil {
		return b, true
	}
	var n float64
	if json.Unmarshal(m, &n) == nil {
		return n != 0, true
	}
	var arr []json.RawMessage
	if json.Unmarshal(m, &arr) == nil {
		return len(arr) > 0, true
	}
	var s string
	if json.Unmarshal(m, &s) == nil {
		return s != "", true
	}
	return false, true
}
