// Package record implements a typed client for the system-of-record
// REST registry: pedimentos, service instances (procesamientos),
// gateway credentials, e-documents, and document uploads.
package record

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/logkeys"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

var (
	// ErrNotFound is returned when an expected registry record is
	// absent. Callers poll on this sentinel, never on message text.
	ErrNotFound = errors.New("registry record not found")

	// ErrInactiveCredentials is returned for credentials the registry
	// has disabled.
	ErrInactiveCredentials = errors.New("credentials inactive")
)

// StatusError is a non-2xx registry response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("unexpected registry status: %d: %s", e.Status, body)
}

// DefaultTimeout bounds each registry request.
const DefaultTimeout = 5 * time.Second

// Client talks to the system-of-record registry. Token-authenticated,
// JSON bodies, typed records at the boundary.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  log.Logger
}

type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// New creates a registry client for the given base URL and auth token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("empty registry URL")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  log.NopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do sends a JSON request and decodes a JSON response into out (when
// non-nil). A 404 maps to ErrNotFound; other non-2xx statuses map to
// a StatusError carrying a body snippet.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ServicesByPedimento lists the registry service instances of a kind
// and state for a pedimento.
func (c *Client) ServicesByPedimento(ctx context.Context, pedimentoID string, kind customs.ServiceKind, state customs.ServiceState) ([]customs.ServiceInstance, error) {
	q := url.Values{
		"pedimento": []string{pedimentoID},
		"estado":    []string{strconv.Itoa(int(state))},
		"servicio":  []string{strconv.Itoa(int(kind))},
	}
	var instances []customs.ServiceInstance
	err := c.do(ctx, http.MethodGet, "customs/procesamientopedimentos/?"+q.Encode(), nil, &instances)
	return instances, err
}

// ServiceByKind returns the single active (CREADO) service instance
// of a kind for a pedimento. Zero matches is ErrNotFound, never a
// silent default.
func (c *Client) ServiceByKind(ctx context.Context, pedimentoID string, kind customs.ServiceKind) (*customs.ServiceInstance, error) {
	instances, err := c.ServicesByPedimento(ctx, pedimentoID, kind, customs.StateCreated)
	if err != nil {
		return nil, err
	}
	if len(instances) < 1 {
		return nil, fmt.Errorf("%w: %s service for pedimento %s", ErrNotFound, kind, pedimentoID)
	}
	return &instances[0], nil
}

// CreateService registers a new service instance.
func (c *Client) CreateService(ctx context.Context, create *customs.ServiceCreate) (*customs.ServiceInstance, error) {
	var instance customs.ServiceInstance
	if err := c.do(ctx, http.MethodPost, "customs/procesamientopedimentos/", create, &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}

// UpdateService transitions a service instance. No internal retry:
// compensating actions on transition failure belong to the caller.
func (c *Client) UpdateService(ctx context.Context, id int64, update *customs.ServiceUpdate) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("customs/procesamientopedimentos/%d/", id), update, nil)
}

// Pedimento fetches a pedimento record by registry id.
func (c *Client) Pedimento(ctx context.Context, id string) (*customs.Pedimento, error) {
	var p customs.Pedimento
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("customs/pedimentos/%s/", id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePedimento patches retrieval results onto a pedimento record.
func (c *Client) UpdatePedimento(ctx context.Context, id string, update *customs.PedimentoUpdate) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("customs/pedimentos/%s/", id), update, nil)
}

// CredentialsForUser fetches the gateway credentials of a taxpayer.
// Absent credentials are ErrNotFound; disabled credentials are
// ErrInactiveCredentials.
func (c *Client) CredentialsForUser(ctx context.Context, usuario string) (*customs.Credentials, error) {
	q := url.Values{"usuario": []string{usuario}}
	var creds []customs.Credentials
	if err := c.do(ctx, http.MethodGet, "vucem/vucem/?"+q.Encode(), nil, &creds); err != nil {
		return nil, err
	}
	if len(creds) < 1 {
		return nil, fmt.Errorf("%w: credentials for %s", ErrNotFound, usuario)
	}
	if !creds[0].Active {
		return nil, fmt.Errorf("%w: %s", ErrInactiveCredentials, usuario)
	}
	return &creds[0], nil
}

// EDocumentsByPedimento lists the digitized-document references of a
// pedimento.
func (c *Client) EDocumentsByPedimento(ctx context.Context, pedimentoID string) ([]customs.EDocument, error) {
	q := url.Values{"pedimento": []string{pedimentoID}}
	var docs []customs.EDocument
	err := c.do(ctx, http.MethodGet, "customs/edocuments/?"+q.Encode(), nil, &docs)
	return docs, err
}

// CreateEDocument registers a digitized-document reference.
func (c *Client) CreateEDocument(ctx context.Context, doc *customs.EDocument) (*customs.EDocument, error) {
	var created customs.EDocument
	if err := c.do(ctx, http.MethodPost, "customs/edocuments/", doc, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateEDocument patches retrieval results onto an e-document record.
func (c *Client) UpdateEDocument(ctx context.Context, id string, update *customs.EDocumentUpdate) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("customs/edocuments/%s/", id), update, nil)
}

// UploadDocument hands an artifact over to the remote document store:
// a multipart POST with the metadata as form fields and the content as
// the archivo file part.
func (c *Client) UploadDocument(ctx context.Context, up *customs.Upload) (*customs.Document, error) {
	if up == nil || len(up.Content) < 1 {
		return nil, errors.New("empty upload")
	}
	logger := ctxlog.Logger(ctx, c.logger).With(logkeys.DocumentName, up.Name)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"organizacion":  up.Organization,
		"pedimento":     up.Pedimento,
		"extension":     up.Extension,
		"document_type": strconv.Itoa(up.Type),
		"size":          strconv.Itoa(len(up.Content)),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("archivo", up.Name)
	if err != nil {
		return nil, fmt.Errorf("creating file part: %w", err)
	}
	if _, err = part.Write(up.Content); err != nil {
		return nil, fmt.Errorf("writing file part: %w", err)
	}
	if err = mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/record/documents/", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}
	var doc customs.Document
	if err = json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	logger.Debug(
		logkeys.Message, "document uploaded",
		logkeys.GenericCount, len(up.Content),
	)
	return &doc, nil
}
