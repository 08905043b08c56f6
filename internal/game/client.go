// Package game talks to the game backend. Client is the raw transport that
// classifies every response; API layers one method per operation on top of
// it and handles expired credentials.
package game

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jordanella.com/paws-farm-go/internal/logging"
)

// ErrMalformedResponse means a 200 response could not be decoded as a JSON
// object. It signals an upstream contract change and is always surfaced.
var ErrMalformedResponse = errors.New("malformed success response")

// Outcome classifies a backend response.
type Outcome int

const (
	OutcomeSuccess      Outcome = iota // 200
	OutcomeUnauthorized                // 401, credential expired
	OutcomeRejected                    // 400, login parameter stale (authorize only)
	OutcomeTransient                   // 5xx, timeouts, network failures
	OutcomeFailed                      // any other non-200
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransient:
		return "transient"
	default:
		return "failed"
	}
}

// Classify maps an HTTP status to an Outcome. Status 0 means the request
// never got a response.
func Classify(status int) Outcome {
	switch {
	case status == http.StatusOK:
		return OutcomeSuccess
	case status == http.StatusUnauthorized:
		return OutcomeUnauthorized
	case status == http.StatusBadRequest:
		return OutcomeRejected
	case status == 0 || status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return OutcomeTransient
	default:
		return OutcomeFailed
	}
}

// Response is a classified backend reply.
type Response struct {
	Status  int
	Body    []byte
	Outcome Outcome
	Err     error
}

// Decode parses a success body into a Payload.
func (r *Response) Decode() (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: null body", ErrMalformedResponse)
	}
	return p, nil
}

// Observer receives one call per backend request, for metrics.
type Observer interface {
	ObserveCall(endpoint string, outcome Outcome, elapsed time.Duration)
}

// Client sends requests to the backend.
type Client struct {
	baseURL  string
	http     *http.Client
	observer Observer
	logger   *logging.Logger
}

// NewClient creates a client for baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.NewLogger("GameClient"),
	}
}

// WithObserver sets the metrics observer.
func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// HTTP returns the underlying HTTP client, shared with invite-link visits.
func (c *Client) HTTP() *http.Client { return c.http }

// Do sends one request. body is form-encoded raw text for Form endpoints and
// JSON-encoded otherwise; nil sends no body. Transport failures come back as
// an OutcomeTransient response, never as an error.
func (c *Client) Do(ctx context.Context, ep Endpoint, token string, body interface{}) *Response {
	start := time.Now()
	resp := c.do(ctx, ep, token, body)
	if c.observer != nil {
		c.observer.ObserveCall(ep.Name, resp.Outcome, time.Since(start))
	}
	return resp
}

func (c *Client) do(ctx context.Context, ep Endpoint, token string, body interface{}) *Response {
	var reader io.Reader
	contentType := ""
	switch {
	case ep.Form:
		s, _ := body.(string)
		reader = strings.NewReader(s)
		contentType = "application/x-www-form-urlencoded"
	case body != nil:
		data, err := json.Marshal(body)
		if err != nil {
			return &Response{Outcome: OutcomeFailed, Err: fmt.Errorf("encode %s body: %w", ep.Name, err)}
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	case ep.Method == http.MethodPost:
		reader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, c.baseURL+ep.Path, reader)
	if err != nil {
		return &Response{Outcome: OutcomeFailed, Err: fmt.Errorf("build %s request: %w", ep.Name, err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if !ep.Anonymous {
		req.Header.Set("x-api-key", token)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return &Response{Outcome: OutcomeTransient, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return &Response{Status: httpResp.StatusCode, Outcome: OutcomeTransient, Err: fmt.Errorf("read %s body: %w", ep.Name, err)}
	}
	return &Response{Status: httpResp.StatusCode, Body: data, Outcome: Classify(httpResp.StatusCode)}
}

// Authorize exchanges a login parameter for a profile payload carrying a
// fresh access token.
func (c *Client) Authorize(ctx context.Context, loginParam string) *Response {
	return c.Do(ctx, EndpointAuthorize, "", loginParam)
}

// VisitLink issues a plain GET to an external invite link. Only absolute
// http(s) URLs with a host are followed.
func (c *Client) VisitLink(ctx context.Context, link string) error {
	u, err := ValidateLink(link)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("visit %s: %w", link, err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	return nil
}

// ValidateLink parses link and checks it is an absolute http(s) URL.
func ValidateLink(link string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return nil, fmt.Errorf("invalid link %q: %w", link, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid link %q: not an absolute http(s) url", link)
	}
	return u, nil
}
