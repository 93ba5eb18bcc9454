package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/qklafk/deribit-price-tracker/internal/instrument"
)

const indexPricePath = "/public/get_index_price"

// Options parameterise the Deribit client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient, when set, is borrowed from the caller and never closed by
	// the exchange client.
	HTTPClient *http.Client
}

// Client fetches index prices from the Deribit public API.
type Client struct {
	opts      Options
	logger    zerolog.Logger
	client    *http.Client
	owned     bool
	closeOnce sync.Once
}

// New constructs a Deribit client. If no HTTP client is supplied, the Client
// creates and owns one; Close releases it.
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.deribit.com/api/v2"
	}
	opts.BaseURL = baseURL

	httpClient := opts.HTTPClient
	owned := false
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
		owned = true
	}

	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "deribit_client").Logger(),
		client: httpClient,
		owned:  owned,
	}
}

// Close releases the underlying HTTP client when it is owned by this Client.
// It is safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.owned {
			c.client.CloseIdleConnections()
		}
	})
}

type rpcError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

type indexPriceResult struct {
	IndexPrice *json.Number `json:"index_price"`
}

type rpcEnvelope struct {
	Error  *rpcError         `json:"error"`
	Result *indexPriceResult `json:"result"`
}

// FetchIndexPrice retrieves the current index price for an instrument.
func (c *Client) FetchIndexPrice(ctx context.Context, inst instrument.Instrument) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("index_name", inst.IndexName())
	endpoint := c.opts.BaseURL + indexPricePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("create index price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Decimal{}, &NetworkError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var envelope rpcEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return decimal.Decimal{}, &ProtocolError{Message: "malformed response body: " + err.Error()}
	}

	if envelope.Error != nil {
		return decimal.Decimal{}, &APIError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	if envelope.Result == nil {
		return decimal.Decimal{}, &ProtocolError{Message: "missing result in response"}
	}
	if envelope.Result.IndexPrice == nil {
		return decimal.Decimal{}, &ProtocolError{Message: "missing index_price in result"}
	}

	price, err := decimal.NewFromString(envelope.Result.IndexPrice.String())
	if err != nil {
		return decimal.Decimal{}, &ProtocolError{Message: "index_price is not a decimal: " + envelope.Result.IndexPrice.String()}
	}

	c.logger.Debug().Str("index_name", inst.IndexName()).Str("price", price.String()).Msg("fetched index price")
	return price, nil
}
