package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Model-call timeout budget: 5s to connect, 10s for the TLS handshake
// and request write, 300s waiting on response headers, 315s end to end.
const (
	connectTimeout = 5 * time.Second
	writeTimeout   = 10 * time.Second
	readTimeout    = 300 * time.Second
	totalTimeout   = 315 * time.Second
)

// HTTPClient defines the interface for an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewModelClient builds the http.Client every model collection uses for
// upstream calls.
func NewModelClient() *http.Client {
	return &http.Client{
		Timeout: totalTimeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
			TLSHandshakeTimeout:   writeTimeout,
			ResponseHeaderTimeout: readTimeout,
		},
	}
}

// IsTimeout reports whether err is a timeout from the transport budget.
func IsTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// SendRequest marshals body, posts it and decodes the JSON response.
// Transport-level failures are retried once; a non-2xx status becomes an
// UpstreamError and is not retried.
func SendRequest(ctx context.Context, client HTTPClient, method, url string, headers map[string]string, body interface{}, response interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	resp, err := doWithRetry(ctx, client, method, url, headers, payload, false)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &UpstreamError{StatusCode: resp.StatusCode, Body: respBody, URL: url}
	}

	if response != nil {
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

type LineProcessor func(line string) error

// StreamRequest posts body and feeds each non-empty response line to
// processLine until the body ends or processLine errors.
func StreamRequest(ctx context.Context, client HTTPClient, method, url string, headers map[string]string, body interface{}, processLine LineProcessor) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	resp, err := doWithRetry(ctx, client, method, url, headers, payload, true)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &UpstreamError{StatusCode: resp.StatusCode, Body: respBody, URL: url}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := processLine(line); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func doWithRetry(ctx context.Context, client HTTPClient, method, url string, headers map[string]string, payload []byte, sse bool) (*http.Response, error) {
	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if sse {
			req.Header.Set("Accept", "text/event-stream")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, lastErr = client.Do(req)
		if lastErr == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("request failed: %w", lastErr)
}
