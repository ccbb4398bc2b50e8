package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

const rateLimitKey = "kalshi:rest"

// Client is the REST client for the Kalshi exchange API.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client

	limiter      domain.RateLimiter
	requestLimit int
}

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
// apiKeyID is the Kalshi API key identifier.
func NewClient(baseURL, apiKeyID string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetRateLimiter throttles every request to perSecond calls across all
// processes sharing the limiter.
func (c *Client) SetRateLimiter(limiter domain.RateLimiter, perSecond int) {
	c.limiter = limiter
	c.requestLimit = perSecond
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for RSA-signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	key, err := parseRSAPrivateKey(pemBytes)
	if err != nil {
		return err
	}
	c.privateKey = key
	return nil
}

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS1 as fallback.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		return pkcs1Key, nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	return rsaKey, nil
}

// GetMarkets lists markets matching the filter. Empty filter fields are not
// sent, so the exchange defaults apply.
func (c *Client) GetMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	params := url.Values{}
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Status != "" {
		params.Set("status", filter.Status)
	}
	if filter.SeriesTicker != "" {
		params.Set("series_ticker", filter.SeriesTicker)
	}
	if filter.EventTicker != "" {
		params.Set("event_ticker", filter.EventTicker)
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, withQuery("/markets", params), nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []KalshiMarket `json:"markets"`
		Cursor  string         `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		markets = append(markets, m.ToDomain())
	}
	return markets, nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(ticker))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market KalshiMarket `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}

	return resp.Market.ToDomain(), nil
}

// GetOrderbook returns the raw bid-only book for ticker, at most depth
// levels per side (0 leaves the exchange default). A market with no resting
// orders yields an empty book and a nil error.
func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (domain.RawOrderbook, error) {
	params := url.Values{}
	if depth > 0 {
		params.Set("depth", strconv.Itoa(depth))
	}
	path := withQuery(fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(ticker)), params)

	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.RawOrderbook{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}

	var resp struct {
		Orderbook KalshiOrderbook `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawOrderbook{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}

	return resp.Orderbook.ToDomain(), nil
}

// TopOfBook reads the best YES and NO bids from the market endpoint. It is
// the degraded source callers can fall back to when GetOrderbook fails.
func (c *Client) TopOfBook(ctx context.Context, ticker string) (domain.TopOfBook, error) {
	m, err := c.GetMarket(ctx, ticker)
	if err != nil {
		return domain.TopOfBook{}, err
	}
	return domain.TopOfBook{
		Ticker:    ticker,
		YesBid:    m.YesBid,
		NoBid:     m.NoBid,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// GetTrades returns recent public trades for ticker, newest first.
func (c *Client) GetTrades(ctx context.Context, ticker string, limit int) ([]domain.Trade, error) {
	params := url.Values{}
	params.Set("ticker", ticker)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, withQuery("/markets/trades", params), nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: get trades %s: %w", ticker, err)
	}

	var resp struct {
		Trades []KalshiTrade `json:"trades"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		trades = append(trades, t.ToDomain())
	}
	return trades, nil
}

// PlaceOrder submits a limit order. With postOnly set the exchange rejects
// the order instead of letting it take liquidity.
func (c *Client) PlaceOrder(ctx context.Context, order domain.Order, postOnly bool) (domain.OrderResult, error) {
	if order.Count <= 0 || order.PriceCents < 1 || order.PriceCents > 99 {
		return domain.OrderResult{}, fmt.Errorf("kalshi: place order %s: %w", order.Ticker, domain.ErrInvalidOrder)
	}

	body, err := c.doSignedRequest(ctx, http.MethodPost, "/portfolio/orders", newKalshiOrder(order, postOnly))
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp struct {
		Order KalshiOrderState `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}

	result := resp.Order.ToDomain()
	if result.Status == "canceled" {
		return result, fmt.Errorf("kalshi: order was immediately cancelled")
	}
	return result, nil
}

// CancelOrder cancels an existing order by its ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/portfolio/orders/%s", url.PathEscape(orderID))

	_, err := c.doSignedRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return fmt.Errorf("kalshi: cancel order %s: %w", orderID, err)
	}

	return nil
}

// GetOrders returns resting orders, optionally restricted to one ticker.
func (c *Client) GetOrders(ctx context.Context, ticker string) ([]domain.RestingOrder, error) {
	params := url.Values{}
	params.Set("status", "resting")
	if ticker != "" {
		params.Set("ticker", ticker)
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, withQuery("/portfolio/orders", params), nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: get orders: %w", err)
	}

	var resp struct {
		Orders []KalshiOrderState `json:"orders"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode orders: %w", err)
	}

	orders := make([]domain.RestingOrder, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		orders = append(orders, o.ToResting())
	}
	return orders, nil
}

// CancelAllOrders cancels every resting order for ticker (all tickers when
// empty). It stops at the first failure and reports how many were cancelled.
func (c *Client) CancelAllOrders(ctx context.Context, ticker string) (int, error) {
	orders, err := c.GetOrders(ctx, ticker)
	if err != nil {
		return 0, err
	}
	for i, o := range orders {
		if err := c.CancelOrder(ctx, o.OrderID); err != nil {
			return i, err
		}
	}
	return len(orders), nil
}

// GetPositions returns the account's open market positions.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: get positions: %w", err)
	}

	var resp struct {
		MarketPositions []KalshiPosition `json:"market_positions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(resp.MarketPositions))
	for _, p := range resp.MarketPositions {
		positions = append(positions, p.ToDomain())
	}
	return positions, nil
}

// GetBalance returns the account's cash balance.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/portfolio/balance", nil)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi: get balance: %w", err)
	}

	var resp KalshiBalance
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi: decode balance: %w", err)
	}

	return domain.Balance{
		BalanceCents:        resp.Balance,
		PortfolioValueCents: resp.PortfolioValue,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// doSignedRequest builds, signs (RSA), sends, and reads an HTTP request
// against the Kalshi API.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	if c.limiter != nil && c.requestLimit > 0 {
		if err := c.limiter.Wait(ctx, rateLimitKey, c.requestLimit, time.Second); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// Kalshi signs the full URL path without the query string.
	if err := c.signRequest(req, method, req.URL.Path); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// signRequest adds RSA authentication headers to the HTTP request.
// Kalshi uses RSA-PSS-SHA256 signatures over the timestamp + method + path
// message string.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured: %w", domain.ErrUnauthorized)
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	hash := sha256.Sum256([]byte(ts + method + path))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)

	return nil
}

// checkStatus maps non-2xx HTTP status codes onto domain sentinel errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	code, msg := apiErr.details()

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrNotFound, msg, code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrUnauthorized, msg, code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrRateLimited, msg, code)
	case http.StatusBadRequest:
		return fmt.Errorf("kalshi: %w: %s (%s)", domain.ErrBadRequest, msg, code)
	case http.StatusConflict:
		return fmt.Errorf("kalshi: conflict: %s (%s)", msg, code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, msg, code)
	}
}
