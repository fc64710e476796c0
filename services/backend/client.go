// Package backend talks to the payment-processing API the checkout runs against.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"worldpay-checkout/models"
)

const (
	RequestTimeout = 30 * time.Second
	maxErrorBody   = 512
)

var (
	ErrNotFound         = errors.New("backend resource not found")
	ErrUnexpectedStatus = errors.New("unexpected backend status")
	ErrRelayForbidden   = errors.New("backend path cannot be relayed")
)

// Login pages the host relays so the backend's session cookie lands in the
// session's own jar.
var relayPaths = []string{"login/", "payment/login-complete/"}

// Request headers passed through to relayed pages.
var relayHeaders = []string{"Accept", "Accept-Language", "Content-Type", "User-Agent"}

// RequestObserver receives one observation per backend call.
type RequestObserver interface {
	ObserveBackendRequest(operation, outcome string, seconds float64)
}

type Client struct {
	apiRoot  string
	client   *http.Client
	observer RequestObserver
}

// NewClient builds a client rooted at apiRoot (trailing slash optional).
// Each checkout session should use its own ForSession copy so backend session
// cookies are never shared between customers.
func NewClient(apiRoot string, timeout time.Duration, observer RequestObserver) *Client {
	if timeout <= 0 {
		timeout = RequestTimeout
	}
	if !strings.HasSuffix(apiRoot, "/") {
		apiRoot += "/"
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		apiRoot: apiRoot,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		observer: observer,
	}
}

// ForSession returns a copy sharing the connection pool but holding its own cookie jar.
func (c *Client) ForSession() *Client {
	jar, _ := cookiejar.New(nil)
	hc := *c.client
	hc.Jar = jar
	return &Client{apiRoot: c.apiRoot, client: &hc, observer: c.observer}
}

func (c *Client) GetPayment(ctx context.Context, id string) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	if err := c.do(ctx, "get_payment", http.MethodGet, "payment/"+url.PathEscape(id)+"/", nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) SubmitWorldpay(ctx context.Context, id string, payload *models.AttemptPayload) (*models.SubmissionReply, error) {
	var reply models.SubmissionReply
	if err := c.do(ctx, "submit_worldpay", http.MethodPost, "payment/worldpay/"+url.PathEscape(id)+"/", payload, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) VerifyAppleMerchant(ctx context.Context, validationURL string) (*models.MerchantVerificationResponse, error) {
	body := map[string]string{"url": validationURL}
	var resp models.MerchantVerificationResponse
	if err := c.do(ctx, "apple_merchant_verification", http.MethodPost, "apple-merchant-verification/", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) WhoAmI(ctx context.Context) (*models.WhoAmIResponse, error) {
	var resp models.WhoAmIResponse
	if err := c.do(ctx, "whoami", http.MethodGet, "login/whoami/", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListPayments(ctx context.Context, offset, limit int) ([]models.PaymentRecord, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var records []models.PaymentRecord
	if err := c.do(ctx, "list_payments", http.MethodGet, "payments/?"+q.Encode(), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Relay forwards one browser request for a backend login page through this
// client's cookie jar. Redirects are returned to the caller rather than followed.
func (c *Client) Relay(ctx context.Context, method, target, rawQuery string, body io.Reader, header http.Header) (resp *http.Response, err error) {
	start := time.Now()
	defer func() {
		if c.observer == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.observer.ObserveBackendRequest("relay", outcome, time.Since(start).Seconds())
	}()

	cleaned, ok := relayPath(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRelayForbidden, target)
	}
	u := c.apiRoot + cleaned
	if rawQuery != "" {
		u += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build relay request: %w", err)
	}
	for _, key := range relayHeaders {
		if v := header.Get(key); v != "" {
			req.Header.Set(key, v)
		}
	}

	hc := *c.client
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err = hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request failed: %w", err)
	}
	return resp, nil
}

func relayPath(target string) (string, bool) {
	cleaned := strings.TrimPrefix(path.Clean("/"+target), "/")
	if strings.HasSuffix(target, "/") && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	for _, prefix := range relayPaths {
		if strings.HasPrefix(cleaned, prefix) {
			return cleaned, true
		}
	}
	return "", false
}

// RelayURL maps a backend URL inside the API root onto prefix. Other URLs, such
// as an identity provider's login page, come back unchanged.
func (c *Client) RelayURL(prefix, target string) string {
	root, err := url.Parse(c.apiRoot)
	if err != nil {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	abs := root.ResolveReference(ref)
	if abs.Scheme != root.Scheme || abs.Host != root.Host || !strings.HasPrefix(abs.Path, root.Path) {
		return target
	}

	mapped := prefix + strings.TrimPrefix(abs.Path, root.Path)
	if abs.RawQuery != "" {
		mapped += "?" + abs.RawQuery
	}
	return mapped
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		if c.observer == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.observer.ObserveBackendRequest(operation, outcome, time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiRoot+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnexpectedStatus, operation, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}
