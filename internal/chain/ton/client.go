// Package ton fetches account transaction history from a
// toncenter-style API using lt+hash cursor pagination.
package ton

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rwx610/QuestMe-Dashboard/internal/chain/ratelimit"
	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
	"github.com/rwx610/QuestMe-Dashboard/internal/metrics"
)

// TransactionID is the provider's (logical time, hash) pair; lt arrives
// string-encoded and doubles as the pagination cursor.
type TransactionID struct {
	LT   string `json:"lt"`
	Hash string `json:"hash"`
}

type MsgData struct {
	Type string `json:"@type"`
	Body string `json:"body"`
	Text string `json:"text"`
}

type Message struct {
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Value       string  `json:"value"`
	MsgData     MsgData `json:"msg_data"`
}

// Transaction is the raw provider record. InMsg may be nil for
// system-originated transactions.
type Transaction struct {
	UTime         int64         `json:"utime"`
	Data          string        `json:"data"`
	TransactionID TransactionID `json:"transaction_id"`
	InMsg         *Message      `json:"in_msg"`
	OutMsgs       []Message     `json:"out_msgs"`
}

type apiResponse struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

type Client struct {
	httpClient     *http.Client
	apiURL         string
	apiKey         string
	pageSize       int
	maxPages       int
	rateLimitDelay time.Duration
	limiter        *ratelimit.Limiter
	logger         *slog.Logger
	sleepFn        func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

// WithRateLimitDelay overrides the pause taken after an HTTP 429.
func WithRateLimitDelay(d time.Duration) Option {
	return func(c *Client) { c.rateLimitDelay = d }
}

// WithPacing sets the inter-page request rate.
func WithPacing(pagesPerSecond float64) Option {
	return func(c *Client) {
		c.limiter = ratelimit.NewLimiter(pagesPerSecond, 1, model.NetworkTON.String())
	}
}

func NewClient(apiURL, apiKey string, pageSize, maxPages int, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if pageSize <= 0 {
		pageSize = 100
	}
	if maxPages <= 0 {
		maxPages = 10000
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		apiURL:         apiURL,
		apiKey:         apiKey,
		pageSize:       pageSize,
		maxPages:       maxPages,
		rateLimitDelay: 5 * time.Second,
		limiter:        ratelimit.NewLimiter(1, 1, model.NetworkTON.String()),
		logger:         logger.With("component", "ton_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchTransactions walks the account history newest-first from the chain
// tip. The cursor for the next page always follows the last element of
// the raw page (toncenter's documented continuation), while the seen-lt
// set suppresses overlap duplicates at page boundaries.
//
// The walk stops on an empty page, a page with zero new records, or when
// the request budget runs out. HTTP 429 pauses and retries the same
// cursor, consuming budget but no retry counter. Any other transport or
// parse failure ends the walk and returns what was accumulated so far:
// partial history is still ingestible and the next cycle fills the rest.
func (c *Client) FetchTransactions(ctx context.Context, address string) ([]Transaction, error) {
	network := model.NetworkTON.String()

	var (
		all      []Transaction
		fromLT   string
		fromHash string
	)
	seenLTs := make(map[string]struct{})

	for budget := 0; budget < c.maxPages; budget++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return all, err
		}

		txs, status, err := c.fetchPage(ctx, address, fromLT, fromHash)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			metrics.FetchErrors.WithLabelValues(network).Inc()
			c.logger.Warn("page fetch failed, returning partial results", "address", address, "fetched", len(all), "error", err)
			return all, nil
		}
		if status == http.StatusTooManyRequests {
			metrics.FetchRateLimited.WithLabelValues(network).Inc()
			c.logger.Debug("rate limited, retrying same cursor", "address", address)
			if err := c.sleep(ctx, c.rateLimitDelay); err != nil {
				return all, err
			}
			continue
		}
		metrics.FetchPagesTotal.WithLabelValues(network).Inc()

		if len(txs) == 0 {
			break
		}

		var fresh []Transaction
		for _, tx := range txs {
			lt := tx.TransactionID.LT
			if _, ok := seenLTs[lt]; ok {
				continue
			}
			seenLTs[lt] = struct{}{}
			fresh = append(fresh, tx)
		}
		if len(fresh) == 0 {
			break
		}

		all = append(all, fresh...)
		metrics.FetchRecordsTotal.WithLabelValues(network).Add(float64(len(fresh)))

		last := txs[len(txs)-1].TransactionID
		fromLT = last.LT
		fromHash = last.Hash
	}

	c.logger.Debug("fetch complete", "address", address, "count", len(all))
	return all, nil
}

// fetchPage returns (nil, 429, nil) on a rate-limit response so the
// caller can delay and retry the same cursor.
func (c *Client) fetchPage(ctx context.Context, address, fromLT, fromHash string) ([]Transaction, int, error) {
	params := url.Values{
		"address":  {address},
		"limit":    {strconv.Itoa(c.pageSize)},
		"archival": {"true"},
	}
	if fromLT != "" && fromHash != "" {
		params.Set("lt", fromLT)
		params.Set("hash", fromHash)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, http.StatusTooManyRequests, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("unmarshal response: %w", err)
	}
	if !payload.OK {
		return nil, resp.StatusCode, fmt.Errorf("api error: %s", payload.Error)
	}

	var txs []Transaction
	if err := json.Unmarshal(payload.Result, &txs); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("unmarshal result: %w", err)
	}
	return txs, resp.StatusCode, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.sleepFn != nil {
		return c.sleepFn(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
