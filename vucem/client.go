// Package vucem implements the client side of the VUCEM customs
// gateway: a retrying SOAP transport, per-operation request envelopes,
// and namespace-aware extraction of response fields.
package vucem

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aduanasoft/vucemd/logkeys"

	"github.com/beevik/etree"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

// ErrGatewayFault is returned when a response carries the gateway's
// in-band tieneError flag. The transport treats it like any other
// failed attempt: it consumes retry budget.
var ErrGatewayFault = errors.New("gateway reported error")

const (
	// DefaultRetries is the fixed attempt budget per call.
	DefaultRetries = 3

	// the budget is clamped to this window; the gateway fails in
	// bursts and fewer than 3 attempts rarely lands, while more than
	// 5 only prolongs an outage.
	minRetries = 3
	maxRetries = 5

	// DefaultRetryWait is the fixed delay between attempts. Zero:
	// an immediate retry usually wins against this gateway.
	DefaultRetryWait = 0

	// DefaultTimeout bounds each individual attempt.
	DefaultTimeout = 60 * time.Second
)

// LegacyTLSConfig returns a TLS configuration the VUCEM endpoints can
// negotiate. The gateway still offers TLS 1.0 and legacy RSA cipher
// suites on some services (the OpenSSL equivalent setting is
// "DEFAULT:@SECLEVEL=1").
func LegacyTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS10,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
			tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_RSA_WITH_AES_128_CBC_SHA,
			tls.TLS_RSA_WITH_AES_256_CBC_SHA,
			tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA,
		},
	}
}

// Client is a SOAP client bound to one VUCEM gateway base URL.
type Client struct {
	baseURL string
	client  *http.Client
	retries int
	wait    time.Duration
	timeout time.Duration
	logger  log.Logger
}

type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetries sets the fixed attempt budget. Values outside [3,5] are
// clamped.
func WithRetries(n int) Option {
	return func(c *Client) {
		c.retries = n
	}
}

// WithRetryWait sets the fixed delay between attempts.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		c.wait = d
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. The caller owns
// the TLS configuration in that case.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// New creates a new gateway client for the given base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("empty gateway URL")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		retries: DefaultRetries,
		wait:    DefaultRetryWait,
		timeout: DefaultTimeout,
		logger:  log.NopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retries < minRetries {
		c.retries = minRetries
	} else if c.retries > maxRetries {
		c.retries = maxRetries
	}
	if c.client == nil {
		c.client = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: LegacyTLSConfig(),
			},
		}
	}
	return c, nil
}

// Response is a successful gateway exchange: the raw response bytes,
// untouched. Field extraction happens separately.
type Response struct {
	StatusCode int
	Raw        []byte
}

// Call sends env to the endpoint path (relative to the gateway base
// URL) and blocks until an attempt succeeds or the budget is spent.
// Transport errors, non-2xx statuses and in-band tieneError responses
// all consume one attempt each. Callers needing detached behavior run
// Call on its own goroutine; the waits in between attempts respect
// ctx.
func (c *Client) Call(ctx context.Context, endpoint string, env *Envelope) (*Response, error) {
	body, err := env.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing envelope: %w", err)
	}
	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	logger := ctxlog.Logger(ctx, c.logger).With(logkeys.Endpoint, endpoint)

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.wait); err != nil {
				return nil, fmt.Errorf("%w (after: %v)", err, lastErr)
			}
		}

		resp, err := c.attempt(ctx, url, body)
		if err == nil {
			err = responseFault(resp.Raw)
			if err == nil {
				if attempt > 1 {
					logger.Debug(
						logkeys.Message, "gateway call recovered",
						logkeys.Attempt, attempt,
					)
				}
				return resp, nil
			}
		}
		lastErr = err
		logger.Info(
			logkeys.Message, "gateway call failed",
			logkeys.Attempt, attempt,
			logkeys.Error, err,
		)
	}
	return nil, fmt.Errorf("%s: %d attempts: %w", env.Operation, c.retries, lastErr)
}

func (c *Client) attempt(ctx context.Context, url string, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return &Response{StatusCode: resp.StatusCode, Raw: raw}, nil
}

// responseFault checks a 2xx response body for the gateway's logical
// error flag: any tieneError element (whatever its namespace prefix)
// whose text is "true". A non-XML body is not a fault here; the
// extraction layer decides what to make of it.
func responseFault(raw []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil
	}
	root := doc.Root()
	if root == nil {
		return nil
	}
	var fault error
	walkElements(root, func(e *etree.Element) bool {
		if e.Tag != "tieneError" || strings.TrimSpace(e.Text()) != "true" {
			return true
		}
		if p := e.Parent(); p != nil {
			for _, sib := range p.ChildElements() {
				if sib.Tag == "mensaje" || sib.Tag == "descripcionError" {
					if msg := strings.TrimSpace(sib.Text()); msg != "" {
						fault = fmt.Errorf("%w: %s", ErrGatewayFault, msg)
						return false
					}
				}
			}
		}
		fault = ErrGatewayFault
		return false
	})
	return fault
}

// sleepCtx waits d without blocking ctx cancellation. A zero d still
// reports an already-canceled ctx.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
