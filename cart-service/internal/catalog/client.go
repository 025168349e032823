// Package catalog is the cart service's HTTP client for the product
// catalog. Every lookup is bounded by a timeout, guarded by a circuit
// breaker and reported as found, not found or unavailable.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/shopcart/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

const defaultNotFoundMessage = "Product not found"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUnavailable     = errors.New("catalog service unavailable")
)

// NotFoundError carries the catalog's own error message so it can be
// passed through to the cart client unchanged.
type NotFoundError struct {
	ProductID int64
	Message   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %d: %s", e.ProductID, e.Message)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

type Product struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	Breaker circuitbreaker.Config
	// Transport defaults to http.DefaultTransport; it is always wrapped
	// with otelhttp.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker[*Product]
	group      singleflight.Group
	log        *slog.Logger
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Breaker.Name == "" {
		opts.Breaker = circuitbreaker.DefaultConfig("catalog")
	}
	opts.Breaker.Ignore = func(err error) bool {
		return errors.Is(err, ErrProductNotFound)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(opts.Transport),
		},
		breaker: circuitbreaker.New[*Product](opts.Breaker, opts.Logger),
		log:     opts.Logger,
	}
}

// GetProduct returns the product, an error matching ErrProductNotFound
// (a *NotFoundError) or an error matching ErrUnavailable.
//
// Concurrent lookups of the same id share one request. The shared request
// is detached from the caller's cancellation and bounded by the client
// timeout instead, so one caller giving up does not fail the others.
func (c *Client) GetProduct(ctx context.Context, id int64) (*Product, error) {
	key := strconv.FormatInt(id, 10)
	shared := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.breaker.Execute(func() (*Product, error) {
			return c.fetch(shared, id)
		})
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, circuitbreaker.ErrOpen) {
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, res.Err)
			}
			return nil, res.Err
		}
		return res.Val.(*Product), nil
	}
}

func (c *Client) fetch(ctx context.Context, id int64) (*Product, error) {
	url := c.baseURL + "/products/" + strconv.FormatInt(id, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WarnContext(ctx, "catalog request failed", slog.Int64("product_id", id), slog.Any("err", err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var p Product
		if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: decode product %d: %w", ErrUnavailable, id, err)
		}
		return &p, nil

	case http.StatusNotFound:
		// Only the catalog's JSON error body means the product is unknown. A
		// bare 404 comes from a wrong base URL or a proxy, not the catalog.
		msg, ok := readErrorMessage(resp)
		if !ok {
			return nil, fmt.Errorf("%w: unrecognised 404 for product %d", ErrUnavailable, id)
		}
		return nil, &NotFoundError{ProductID: id, Message: msg}

	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status %d for product %d", ErrUnavailable, resp.StatusCode, id)
	}
}

func readErrorMessage(resp *http.Response) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", false
	}

	var payload struct {
		Error *string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Error == nil {
		return "", false
	}
	if *payload.Error == "" {
		return defaultNotFoundMessage, true
	}
	return *payload.Error, true
}

// BreakerState is exposed for logging and tests.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}
