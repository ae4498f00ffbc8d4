// Package rentok is a REST client for the Rentok property backend.
package rentok

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

	"github.com/aiox-platform/bookingbot/internal/config"
	"github.com/aiox-platform/bookingbot/internal/retry"
)

var (
	// ErrNotFound is returned when the backend answers without the requested data.
	ErrNotFound = errors.New("rentok: not found")
	// ErrConflict is returned for a 400 on booking creation (slot already taken).
	ErrConflict = errors.New("rentok: booking conflict")
)

// Client talks to the Rentok REST API. Every call goes through the shared
// retry policy.
type Client struct {
	baseURL    string
	placesURL  string
	httpClient *http.Client
	policy     retry.Policy
}

func New(cfg config.RentokConfig, policy retry.Policy) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		placesURL:  cfg.PlacesURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		policy:     policy,
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, c.baseURL+path, body, result)
}

func (c *Client) do(ctx context.Context, method, u string, body, result any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	return c.policy.Do(ctx, "rentok "+method, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request %s: %w", req.URL.Path, err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	})
}

// Text decodes a JSON string, number, bool or list of scalars as text. The
// backend is not consistent about which it sends.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(strings.TrimSpace(s))
		return nil
	}
	var list []any
	if err := json.Unmarshal(b, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if item == nil {
				continue
			}
			parts = append(parts, fmt.Sprint(item))
		}
		*t = Text(strings.Join(parts, ", "))
		return nil
	}
	*t = Text(raw)
	return nil
}

func (t Text) String() string { return string(t) }

// first returns the first non-empty value.
func first(values ...Text) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}
