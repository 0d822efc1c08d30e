package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/scan"
	"github.com/muurk/edgent/internal/transport"
	"go.uber.org/zap"
)

const (
	// DefaultAddress is the portal address of a device in configuration mode.
	DefaultAddress = "192.168.4.1"

	// DefaultTimeout is the default HTTP request timeout. It covers a full
	// Wi-Fi scan on the device.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for failed requests
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay before the first retry
	DefaultRetryDelay = 1 * time.Second

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 10 * time.Second

	maxBodySize = 1 << 20
)

// Client talks to the configuration portal of one device
type Client struct {
	// BaseURL is the base URL for the device (e.g., "http://192.168.4.1")
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for idempotent requests
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff
	MaxRetryDelay time.Duration
}

// NewClient creates a client for the portal at host:port
func NewClient(host string, port int) *Client {
	return NewClientWithURL(fmt.Sprintf("http://%s:%d", host, port))
}

// NewClientWithURL creates a new client with a full base URL
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTPClient:    &http.Client{Timeout: DefaultTimeout},
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// BoardInfo fetches the device description.
func (c *Client) BoardInfo(ctx context.Context) (*transport.BoardInfo, error) {
	var info transport.BoardInfo
	err := c.withRetry(ctx, "board info", func() error {
		return c.getJSON(ctx, "/board_info.json", &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Scan asks the device for the networks it can see.
func (c *Client) Scan(ctx context.Context) ([]scan.Network, error) {
	var nets []scan.Network
	err := c.withRetry(ctx, "wifi scan", func() error {
		nets = nil
		return c.getJSON(ctx, "/wifi_scan.json", &nets)
	})
	if err != nil {
		return nil, err
	}
	return nets, nil
}

// Provision validates and submits a configuration. It is not retried: the
// device may already be switching networks when a reply is lost.
func (c *Client) Provision(ctx context.Context, p *Provision) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	logging.Info("Provisioning device",
		zap.String("url", c.BaseURL),
		zap.String("ssid", p.SSID),
		zap.String("token", logging.Secret(p.Token)),
		zap.Bool("static_ip", p.IP != ""),
	)
	return c.command(ctx, "/config?"+p.ToQuery().Encode())
}

// Reset erases the device configuration.
func (c *Client) Reset(ctx context.Context) (*Result, error) {
	return c.command(ctx, "/reset")
}

// Reboot restarts the device.
func (c *Client) Reboot(ctx context.Context) (*Result, error) {
	return c.command(ctx, "/reboot")
}

// Update uploads a firmware image. The device restarts afterwards whether
// or not the image was accepted.
func (c *Client) Update(ctx context.Context, filename string, image io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("update", filename)
		if err == nil {
			_, err = io.Copy(part, image)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/update", pr)
	if err != nil {
		return ClassifyNetworkError("failed to create update request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	logging.Info("Uploading firmware", zap.String("url", c.BaseURL), zap.String("file", filename))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return ClassifyNetworkError("firmware upload failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return ClassifyNetworkError("failed to read update response", err)
	}
	reply := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK || reply != "OK" {
		e := NewHTTPError(resp.StatusCode, fmt.Sprintf("device rejected firmware: %s", reply))
		e.Retryable = false
		return e
	}
	return nil
}

// command performs a single state-changing GET and decodes its {status,msg}
// reply. A well-formed error reply becomes a validation error carrying the
// device's message.
func (c *Client) command(ctx context.Context, path string) (*Result, error) {
	var res Result
	status, err := c.get(ctx, path, &res)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !res.OK() {
		if status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout {
			return &res, NewHTTPError(status, res.Msg)
		}
		if res.Msg != "" {
			e := NewValidationError(res.Msg)
			e.StatusCode = status
			return &res, e
		}
		return &res, NewHTTPError(status, fmt.Sprintf("unexpected response to %s", path))
	}
	return &res, nil
}

// getJSON performs a GET and requires a 200 reply.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	status, err := c.get(ctx, path, v)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return NewHTTPError(status, fmt.Sprintf("GET %s failed", path))
	}
	return nil
}

// get performs a GET and decodes a JSON body of any status into v.
func (c *Client) get(ctx context.Context, path string, v any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return 0, ClassifyNetworkError("failed to create request", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, ClassifyNetworkError(fmt.Sprintf("GET %s failed", path), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, ClassifyNetworkError("failed to read response body", err)
	}
	logging.Debug("Portal response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("body", logging.MaskSecrets(string(body))),
	)

	if err := json.Unmarshal(body, v); err != nil {
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, NewHTTPError(resp.StatusCode, fmt.Sprintf("GET %s failed", path))
		}
		return resp.StatusCode, NewParseError(fmt.Sprintf("invalid JSON from %s", path), err)
	}
	return resp.StatusCode, nil
}

// withRetry runs op with exponential backoff until it succeeds, fails with
// a non-retryable error or MaxRetries is exhausted.
func (c *Client) withRetry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryDelay
	b.MaxInterval = c.MaxRetryDelay
	b.MaxElapsedTime = 0

	var limited backoff.BackOff = &backoff.StopBackOff{}
	if c.MaxRetries > 0 {
		limited = backoff.WithMaxRetries(b, uint64(c.MaxRetries))
	}
	policy := backoff.WithContext(limited, ctx)

	wrapped := func() error {
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logging.Warn("Request failed, retrying",
			zap.String("request", what),
			zap.Duration("delay", next),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(wrapped, policy, notify)
}
