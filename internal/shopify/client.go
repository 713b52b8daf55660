package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GraphQL executes a query against the platform's Admin API. Implementations
// must treat a non-empty top-level errors list and a missing data object as
// hard failures.
type GraphQL interface {
	Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error)
}

// ErrNotFound is returned by lookups when the platform has no matching
// resource for the given id.
var ErrNotFound = errors.New("resource not found")

// ErrMissingData is returned when a response carries neither data nor errors.
var ErrMissingData = errors.New("graphql response missing data")

// ErrorDetail is one entry of a GraphQL top-level errors list.
type ErrorDetail struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

// FormatErrors renders a top-level errors list the way operators read it:
// message, path and extension code per entry, entries joined with "; ".
func FormatErrors(errs []ErrorDetail) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		var fields []string
		if e.Message != "" {
			fields = append(fields, e.Message)
		}
		if len(e.Path) > 0 {
			segs := make([]string, len(e.Path))
			for i, p := range e.Path {
				segs[i] = fmt.Sprint(p)
			}
			fields = append(fields, "path="+strings.Join(segs, "."))
		}
		if e.Extensions.Code != "" {
			fields = append(fields, "code="+e.Extensions.Code)
		}
		if len(fields) == 0 {
			raw, _ := json.Marshal(e)
			fields = append(fields, string(raw))
		}
		parts = append(parts, strings.Join(fields, " | "))
	}
	return strings.Join(parts, "; ")
}

// ResponseError is a well-formed response whose errors list was non-empty.
type ResponseError struct {
	Label  string
	Errors []ErrorDetail
}

func (e *ResponseError) Error() string {
	msg := "graphql error"
	if e.Label != "" {
		msg += " in " + e.Label
	}
	if details := FormatErrors(e.Errors); details != "" {
		msg += ": " + details
	}
	return msg
}

// TransportError is a failed call: network error, non-2xx status, or an
// unparseable body. ResponseBody holds as much of the raw response as could
// be salvaged for diagnostics.
type TransportError struct {
	Label        string
	Err          error
	ResponseBody string
}

func (e *TransportError) Error() string {
	msg := "graphql request failed"
	if e.Label != "" {
		msg += " in " + e.Label
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.ResponseBody != "" {
		msg += "\nResponse body: " + e.ResponseBody
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// UserErrorsError carries the platform's user-level mutation errors,
// concatenated verbatim for operator display.
type UserErrorsError struct {
	Messages []string
}

func (e *UserErrorsError) Error() string {
	return strings.Join(e.Messages, "; ")
}

const maxSalvagedBody = 4096

// salvage keeps a bounded, trimmed copy of a failed response body for
// diagnostics.
func salvage(raw []byte) string {
	if len(raw) > maxSalvagedBody {
		raw = raw[:maxSalvagedBody]
	}
	return strings.TrimSpace(string(raw))
}

// Client talks to the Admin API over HTTP. Label tags errors with the
// triggering context (a webhook topic or transition id).
type Client struct {
	HTTP     *http.Client
	Endpoint string
	Token    string
	Label    string
}

func NewClient(endpoint, token string) *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Endpoint: endpoint,
		Token:    token,
	}
}

// Labeled returns a copy of the client whose errors mention label.
func (c *Client) Labeled(label string) *Client {
	out := *c
	out.Label = label
	return &out
}

func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	payload := map[string]any{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("X-Shopify-Access-Token", c.Token)
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &TransportError{Label: c.Label, Err: err}
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{Label: c.Label, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &TransportError{
			Label:        c.Label,
			Err:          fmt.Errorf("status %d", res.StatusCode),
			ResponseBody: salvage(raw),
		}
	}
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []ErrorDetail   `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &TransportError{Label: c.Label, Err: err, ResponseBody: salvage(raw)}
	}
	if len(envelope.Errors) > 0 {
		return nil, &ResponseError{Label: c.Label, Errors: envelope.Errors}
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		if c.Label != "" {
			return nil, fmt.Errorf("%w in %s", ErrMissingData, c.Label)
		}
		return nil, ErrMissingData
	}
	return envelope.Data, nil
}

// run executes query and unmarshals the data object into out.
func run(ctx context.Context, g GraphQL, query string, variables map[string]any, out any) error {
	data, err := g.Execute(ctx, query, variables)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}
