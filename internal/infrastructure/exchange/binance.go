package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vitos/crypto_scalper/internal/domain"
)

const (
	defaultRestURL   = "https://api.binance.com"
	defaultStreamURL = "wss://stream.binance.com:9443/ws"

	recvWindowMs = 5000

	// Binance rejects signed requests whose timestamp drifts from the
	// server clock with this error code.
	codeClockSkew = -1021

	maxSignedAttempts = 3
)

// BinanceAdapter implements domain.Exchange against the Binance spot API.
type BinanceAdapter struct {
	apiKey    string
	apiSecret string
	restURL   string
	streamURL string
	client    *http.Client
	logger    *zap.Logger

	// serverTimeOffset is serverTime - localTime in milliseconds,
	// applied to every signed request timestamp.
	serverTimeOffset atomic.Int64
}

func NewBinanceAdapter(apiKey, apiSecret string, logger *zap.Logger) *BinanceAdapter {
	return &BinanceAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		restURL:   defaultRestURL,
		streamURL: defaultStreamURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

// SetEndpoints overrides the REST and stream URLs (testnet, tests).
func (a *BinanceAdapter) SetEndpoints(restURL, streamURL string) {
	a.restURL = strings.TrimRight(restURL, "/")
	a.streamURL = strings.TrimRight(streamURL, "/")
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("binance: code=%d msg=%s", e.Code, e.Msg)
}

// GetServerTime returns the exchange clock in epoch milliseconds.
func (a *BinanceAdapter) GetServerTime(ctx context.Context) (int64, error) {
	body, err := a.publicRequest(ctx, "/api/v3/time", nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse server time: %w", err)
	}
	return resp.ServerTime, nil
}

// SyncServerTime measures the clock offset used for signed requests.
// Called at startup and again whenever the exchange reports skew.
func (a *BinanceAdapter) SyncServerTime(ctx context.Context) error {
	serverTime, err := a.GetServerTime(ctx)
	if err != nil {
		return fmt.Errorf("sync server time: %w", err)
	}
	offset := serverTime - time.Now().UnixMilli()
	a.serverTimeOffset.Store(offset)
	a.logger.Info("Server time synced", zap.Int64("offsetMs", offset))
	return nil
}

func (a *BinanceAdapter) GetSymbolFilters(ctx context.Context, symbol string) (*domain.SymbolFilters, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := a.publicRequest(ctx, "/api/v3/exchangeInfo", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				StepSize    string `json:"stepSize"`
				MinQty      string `json:"minQty"`
				TickSize    string `json:"tickSize"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse exchange info: %w", err)
	}
	if len(resp.Symbols) == 0 {
		return nil, fmt.Errorf("symbol %s not found on exchange", symbol)
	}

	filters := &domain.SymbolFilters{Symbol: symbol}
	for _, f := range resp.Symbols[0].Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			filters.LotStep, _ = decimal.NewFromString(f.StepSize)
			filters.MinQuantity, _ = decimal.NewFromString(f.MinQty)
		case "PRICE_FILTER":
			filters.TickSize, _ = decimal.NewFromString(f.TickSize)
		case "NOTIONAL", "MIN_NOTIONAL":
			filters.MinNotional, _ = decimal.NewFromString(f.MinNotional)
		}
	}
	if filters.LotStep.IsZero() || filters.TickSize.IsZero() {
		return nil, fmt.Errorf("incomplete filters for %s", symbol)
	}
	return filters, nil
}

func (a *BinanceAdapter) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	body, err := a.signedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return decimal.Zero, err
	}
	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("parse account: %w", err)
	}
	for _, b := range resp.Balances {
		if b.Asset == asset {
			free, err := decimal.NewFromString(b.Free)
			if err != nil {
				return decimal.Zero, fmt.Errorf("parse balance %q: %w", b.Free, err)
			}
			return free, nil
		}
	}
	return decimal.Zero, nil
}

// GetHistoricalCloses returns kline close prices, oldest first.
func (a *BinanceAdapter) GetHistoricalCloses(ctx context.Context, symbol, interval string, limit int) ([]decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", fmt.Sprintf("%d", limit))
	body, err := a.publicRequest(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var klines [][]json.RawMessage
	if err := json.Unmarshal(body, &klines); err != nil {
		return nil, fmt.Errorf("parse klines: %w", err)
	}
	closes := make([]decimal.Decimal, 0, len(klines))
	for _, k := range klines {
		if len(k) < 5 {
			continue
		}
		var closeStr string
		if err := json.Unmarshal(k[4], &closeStr); err != nil {
			continue
		}
		price, err := decimal.NewFromString(closeStr)
		if err != nil {
			continue
		}
		closes = append(closes, price)
	}
	return closes, nil
}

func (a *BinanceAdapter) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (*domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", quantity.String())
	params.Set("price", price.String())

	body, err := a.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		OrderID      int64  `json:"orderId"`
		Status       string `json:"status"`
		TransactTime int64  `json:"transactTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}

	order := &domain.Order{
		OrderID:   resp.OrderID,
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Status:    domain.OrderStatus(resp.Status),
		CreatedAt: time.UnixMilli(resp.TransactTime),
	}
	a.logger.Info("Order placed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()),
		zap.Int64("orderID", resp.OrderID))
	return order, nil
}

func (a *BinanceAdapter) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (domain.OrderStatus, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", fmt.Sprintf("%d", orderID))

	body, err := a.signedRequest(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return "", err
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse order status: %w", err)
	}
	return domain.OrderStatus(resp.Status), nil
}

// SubscribeDepth streams partial book depth snapshots into the callback
// until ctx is canceled. The read loop is a single goroutine, so the
// callback sees updates serially. Connection drops reconnect with a
// short backoff.
func (a *BinanceAdapter) SubscribeDepth(ctx context.Context, symbol string, callback func(domain.DepthUpdate)) error {
	streamAddr := fmt.Sprintf("%s/%s@depth20@100ms", a.streamURL, strings.ToLower(symbol))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.streamDepth(ctx, streamAddr, symbol, callback); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("Depth stream disconnected, reconnecting",
				zap.String("symbol", symbol), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (a *BinanceAdapter) streamDepth(ctx context.Context, addr, symbol string, callback func(domain.DepthUpdate)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	a.logger.Info("Depth stream connected", zap.String("symbol", symbol))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg struct {
			Bids [][2]string `json:"bids"`
			Asks [][2]string `json:"asks"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			a.logger.Debug("Skipping malformed depth message", zap.Error(err))
			continue
		}
		callback(domain.DepthUpdate{Symbol: symbol, Bids: msg.Bids, Asks: msg.Asks})
	}
}

func (a *BinanceAdapter) publicRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	addr := a.restURL + path
	if len(params) > 0 {
		addr += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	return a.do(req)
}

// signedRequest signs the query with HMAC-SHA256 and retries a bounded
// number of times on clock skew, resyncing the server time offset
// between attempts.
func (a *BinanceAdapter) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxSignedAttempts; attempt++ {
		body, err := a.signedRequestOnce(ctx, method, path, params)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var apiErr *apiError
		if !errors.As(err, &apiErr) || apiErr.Code != codeClockSkew {
			return nil, err
		}
		a.logger.Warn("Clock skew reported, resyncing server time",
			zap.Int("attempt", attempt+1))
		if syncErr := a.SyncServerTime(ctx); syncErr != nil {
			return nil, fmt.Errorf("resync after clock skew: %w", syncErr)
		}
	}
	return nil, fmt.Errorf("signed request retries exhausted: %w", lastErr)
}

func (a *BinanceAdapter) signedRequestOnce(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	timestamp := time.Now().UnixMilli() + a.serverTimeOffset.Load()
	params.Set("timestamp", fmt.Sprintf("%d", timestamp))
	params.Set("recvWindow", fmt.Sprintf("%d", recvWindowMs))

	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(a.apiSecret))
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))
	query += "&signature=" + signature

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, a.restURL+path+"?"+query, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, a.restURL+path, strings.NewReader(query))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", a.apiKey)
	return a.do(req)
}

func (a *BinanceAdapter) do(req *http.Request) ([]byte, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0 {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
