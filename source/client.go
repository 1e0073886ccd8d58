package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"
)

// Client performs the HTTP calls of every adapter. Each call carries its own
// timeout so a hung provider cannot stall a worker pool.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Timeout   time.Duration
}

func NewClient(timeout time.Duration, userAgent string) *Client {
	return &Client{
		HTTP:      &http.Client{},
		UserAgent: userAgent,
		Timeout:   timeout,
	}
}

// Get fetches addr and returns the body. 404 maps to ErrNotFound.
func (c *Client) Get(ctx context.Context, addr string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/json, text/csv;q=0.9, */*;q=0.8")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cannot http GET %v%v: %v", resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetJSON fetches addr and decodes the JSON body into a generic document
// suitable for Lookup.
func (c *Client) GetJSON(ctx context.Context, addr string) (any, error) {
	body, err := c.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", addr, err)
	}
	return doc, nil
}

// Lookup evaluates a JSONPath expression. A single-element list result is
// unwrapped, since jsonpath does not say whether it returns a list of one
// answer or the answer itself.
func Lookup(doc any, path string) (any, error) {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, err
	}
	if list, ok := v.([]any); ok && len(list) == 1 {
		return list[0], nil
	}
	return v, nil
}

// LookupList evaluates path and returns its elements; a missing path is an
// empty list.
func LookupList(doc any, path string) []any {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil
	}
	list, _ := v.([]any)
	return list
}

// LookupString evaluates path and renders scalars as text. Missing values
// and nulls yield "".
func LookupString(doc any, path string) string {
	v, err := Lookup(doc, path)
	if err != nil {
		return ""
	}
	return Text(v)
}

// Text renders a decoded JSON scalar as a string.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}
