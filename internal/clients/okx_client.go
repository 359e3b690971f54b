package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/watchtower/internal/domain"
	"golang.org/x/time/rate"
)

const (
	OKXBaseURL       = "https://www.okx.com"
	okxProvider      = "okx"
	okxRequestsPerS  = 10
	okxBurst         = 10
	okxClientTimeout = 10 * time.Second
)

// OKXTicker spot ticker as returned by /api/v5/market/tickers.
type OKXTicker struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	Open24h string `json:"open24h"`
}

// OKXBalanceDetail per-currency equity.
type OKXBalanceDetail struct {
	Ccy      string `json:"ccy"`
	Eq       string `json:"eq"`
	CashBal  string `json:"cashBal"`
	AvailBal string `json:"availBal"`
}

// OKXBalance account balance summary.
type OKXBalance struct {
	TotalEq string             `json:"totalEq"`
	Details []OKXBalanceDetail `json:"details"`
}

type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// OKXClient minimal OKX REST v5 client.
type OKXClient struct {
	baseURL    string
	signer     Signer
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOKXClient creates a client; signer may be nil for public endpoints only.
func NewOKXClient(baseURL string, signer Signer) *OKXClient {
	if baseURL == "" {
		baseURL = OKXBaseURL
	}

	return &OKXClient{
		baseURL:    baseURL,
		signer:     signer,
		httpClient: &http.Client{Timeout: okxClientTimeout},
		limiter:    rate.NewLimiter(rate.Limit(okxRequestsPerS), okxBurst),
	}
}

// Tickers lists every ticker of instType (e.g. SPOT).
func (c *OKXClient) Tickers(ctx context.Context, instType string) ([]OKXTicker, error) {
	path := "/api/v5/market/tickers?instType=" + url.QueryEscape(instType)

	var tickers []OKXTicker
	if err := c.get(ctx, "tickers", path, false, &tickers); err != nil {
		return nil, err
	}
	return tickers, nil
}

// Candles returns raw candle rows, newest first: [ts, o, h, l, c, vol, ...].
func (c *OKXClient) Candles(ctx context.Context, instID, bar string, limit int) ([][]string, error) {
	q := url.Values{}
	q.Set("instId", instID)
	q.Set("bar", bar)
	q.Set("limit", strconv.Itoa(limit))
	path := "/api/v5/market/candles?" + q.Encode()

	var rows [][]string
	if err := c.get(ctx, "candles", path, false, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Balance returns the trading account balance.
func (c *OKXClient) Balance(ctx context.Context) ([]OKXBalance, error) {
	var balances []OKXBalance
	if err := c.get(ctx, "balance", "/api/v5/account/balance", true, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (c *OKXClient) get(ctx context.Context, op, path string, auth bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.NewUpstreamError(okxProvider, op, "", errors.Wrap(err, "rate limiter"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrapf(err, "build okx %s request", op)
	}
	req.Header.Set("Content-Type", "application/json")

	if auth {
		if c.signer == nil {
			return errors.Wrapf(domain.ErrConfiguration, "okx %s requires credentials", op)
		}
		headers, err := c.signer.Headers(http.MethodGet, path, "")
		if err != nil {
			return errors.Wrapf(err, "sign okx %s request", op)
		}
		for k, vals := range headers {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewUpstreamError(okxProvider, op, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewUpstreamError(okxProvider, op, "", errors.Wrap(err, "read body"))
	}

	var env okxEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return domain.NewUpstreamError(okxProvider, op, strconv.Itoa(resp.StatusCode), errors.New(http.StatusText(resp.StatusCode)))
		}
		return domain.NewUpstreamError(okxProvider, op, "", errors.Wrap(err, "decode envelope"))
	}
	if env.Code != "0" {
		return domain.NewUpstreamError(okxProvider, op, env.Code, errors.New(env.Msg))
	}
	if resp.StatusCode != http.StatusOK {
		return domain.NewUpstreamError(okxProvider, op, strconv.Itoa(resp.StatusCode), errors.New(http.StatusText(resp.StatusCode)))
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return domain.NewUpstreamError(okxProvider, op, "", errors.Wrap(err, fmt.Sprintf("decode %s data", op)))
	}
	return nil
}
