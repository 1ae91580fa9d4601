package wix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the public REST endpoint
	DefaultBaseURL = "https://www.wixapis.com"

	defaultPageSize = 100
	maxResponseSize = 16 << 20
)

// Client is the REST adapter for every entity type. One instance serves all
// stores; the bearer token selects the store.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *RateLimiter
	retryConfig RetryConfig
	metrics     ports.MetricsRecorder
	logger      zerolog.Logger
	pageSize    int
}

// NewClient creates a client with default retry and no pacing
func NewClient(baseURL string) *Client {
	return NewClientWithOptions(baseURL, nil, nil, DefaultRetryConfig(), nil, zerolog.Nop())
}

// NewClientWithOptions creates a client with rate limiting, retry and metrics options
func NewClientWithOptions(
	baseURL string,
	httpClient *http.Client,
	rateLimiter *RateLimiter,
	retryConfig RetryConfig,
	metrics ports.MetricsRecorder,
	logger zerolog.Logger,
) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		rateLimiter: rateLimiter,
		retryConfig: retryConfig,
		metrics:     metrics,
		logger:      logger,
		pageSize:    defaultPageSize,
	}
}

// Clients exposes the adapter through the per-entity ports
func (c *Client) Clients() ports.RemoteClients {
	return ports.RemoteClients{
		Collections:   c,
		Products:      c,
		Contacts:      c,
		Members:       c,
		Orders:        c,
		Coupons:       c,
		DiscountRules: c,
		Media:         c,
		Loyalty:       c,
	}
}

var (
	_ ports.CollectionsClient   = (*Client)(nil)
	_ ports.ProductsClient      = (*Client)(nil)
	_ ports.ContactsClient      = (*Client)(nil)
	_ ports.MembersClient       = (*Client)(nil)
	_ ports.OrdersClient        = (*Client)(nil)
	_ ports.CouponsClient       = (*Client)(nil)
	_ ports.DiscountRulesClient = (*Client)(nil)
	_ ports.MediaClient         = (*Client)(nil)
	_ ports.LoyaltyClient       = (*Client)(nil)
)

// do sends one idempotent API call, retrying throttled and server errors. A
// non-2xx final response becomes a *ports.RemoteError carrying the body verbatim.
func (c *Client) do(ctx context.Context, op, token, method, path string, body any, out any) error {
	return c.send(ctx, op, token, method, path, body, out, true)
}

// doWrite sends a call that must not be applied twice. Only 429 is retried;
// a transport error or server error may arrive after the write was committed.
func (c *Client) doWrite(ctx context.Context, op, token, method, path string, body any, out any) error {
	return c.send(ctx, op, token, method, path, body, out, false)
}

func (c *Client) send(ctx context.Context, op, token, method, path string, body any, out any, idempotent bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create %s request: %w", op, err)
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.recordRequest(op, 0)
			if !idempotent || ctx.Err() != nil || attempt >= c.retryConfig.MaxRetries {
				return fmt.Errorf("failed to call %s: %w", op, err)
			}
			if err := c.sleep(ctx, c.retryConfig.backoff(attempt, "")); err != nil {
				return err
			}
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		c.recordRequest(op, resp.StatusCode)
		if readErr != nil {
			return fmt.Errorf("failed to read %s response: %w", op, readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || len(bytes.TrimSpace(data)) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", op, err)
			}
			return nil
		}

		if retryable(resp.StatusCode, idempotent) && attempt < c.retryConfig.MaxRetries {
			wait := c.retryConfig.backoff(attempt, resp.Header.Get("Retry-After"))
			c.logger.Warn().
				Str("op", op).
				Int("status", resp.StatusCode).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("Remote call throttled or failed, retrying")
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		return &ports.RemoteError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

func (c *Client) recordRequest(op string, status int) {
	if c.metrics != nil {
		c.metrics.RemoteRequest(op, status)
	}
}

// pageRequest describes one paginated listing
type pageRequest struct {
	op         string
	method     string
	path       string
	itemsField string
	// body builds the POST body for one page; nil for GET listings
	body func(offset, limit int, cursor string) any
	// query adds listing parameters for GET listings
	query url.Values
	// cursorPaging follows pagingMetadata.cursors.next instead of offsets
	cursorPaging bool
}

// paginate yields every item of a listing. Iteration always starts from the
// first page, so a listing can be restarted by ranging over it again.
func (c *Client) paginate(ctx context.Context, token string, p pageRequest) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		offset := 0
		cursor := ""
		for {
			var page domain.RawItem
			var err error
			if p.method == http.MethodGet {
				q := url.Values{}
				for k, v := range p.query {
					q[k] = v
				}
				q.Set("paging.limit", fmt.Sprint(c.pageSize))
				if p.cursorPaging {
					if cursor != "" {
						q.Set("paging.cursor", cursor)
					}
				} else {
					q.Set("paging.offset", fmt.Sprint(offset))
				}
				err = c.do(ctx, p.op, token, http.MethodGet, p.path+"?"+q.Encode(), nil, &page)
			} else {
				err = c.do(ctx, p.op, token, p.method, p.path, p.body(offset, c.pageSize, cursor), &page)
			}
			if err != nil {
				yield(nil, err)
				return
			}

			items := page.Objects(p.itemsField)
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}

			if p.cursorPaging {
				cursor = page.String("pagingMetadata.cursors.next")
				if cursor == "" || len(items) == 0 {
					return
				}
				continue
			}
			if len(items) < c.pageSize {
				return
			}
			offset += len(items)
		}
	}
}

// offsetQuery is the common body of v1/v2 query endpoints
func offsetQuery(extra map[string]any) func(offset, limit int, _ string) any {
	return func(offset, limit int, _ string) any {
		q := map[string]any{"paging": map[string]any{"limit": limit, "offset": offset}}
		for k, v := range extra {
			q[k] = v
		}
		return map[string]any{"query": q}
	}
}

// cursorQuery is the common body of cursor-paged search endpoints
func cursorQuery(wrapper string, extra map[string]any) func(int, int, string) any {
	return func(_ int, limit int, cursor string) any {
		paging := map[string]any{"limit": limit}
		if cursor != "" {
			paging["cursor"] = cursor
		}
		q := map[string]any{"cursorPaging": paging}
		for k, v := range extra {
			q[k] = v
		}
		return map[string]any{wrapper: q}
	}
}

// createAndExtractID posts payload wrapped under key and returns the id found at idPath
func (c *Client) createAndExtractID(ctx context.Context, op, token, path, wrapper string, payload domain.RawItem, idPath string) (string, error) {
	var body any = payload
	if wrapper != "" {
		body = map[string]any{wrapper: payload}
	}
	var resp domain.RawItem
	if err := c.doWrite(ctx, op, token, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	id := resp.String(idPath)
	if id == "" {
		return "", &ports.RemoteError{Op: op, Status: http.StatusOK, Body: "response carried no id at " + idPath}
	}
	return id, nil
}

func escape(s string) string {
	return url.PathEscape(s)
}
