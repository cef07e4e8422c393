// Package evm fetches contract transaction history from an
// etherscan-v2-style explorer API using page/offset pagination.
package evm

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

	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
	"github.com/rwx610/QuestMe-Dashboard/internal/metrics"
)

// Transaction is the raw explorer record, all fields string-encoded as
// the API returns them. Normalization happens downstream.
type Transaction struct {
	Hash         string `json:"hash"`
	BlockNumber  string `json:"blockNumber"`
	TimeStamp    string `json:"timeStamp"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	Input        string `json:"input"`
	FunctionName string `json:"functionName"`
}

type txListResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	pageSize   int
	logger     *slog.Logger
}

func NewClient(apiURL, apiKey string, pageSize int, timeout time.Duration, logger *slog.Logger) *Client {
	if pageSize <= 0 {
		pageSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     apiURL,
		apiKey:     apiKey,
		pageSize:   pageSize,
		logger:     logger.With("component", "evm_client"),
	}
}

// FetchTransactions pulls the full txlist for address between fromBlock
// and toBlock (toBlock <= 0 means the chain head), walking pages until a
// short page signals end-of-data. A failed page aborts the whole fetch:
// the explorer gives no way to resume mid-window safely, and the next
// refresh cycle retries from the unchanged watermark.
func (c *Client) FetchTransactions(ctx context.Context, chainID int64, address string, fromBlock, toBlock int64) ([]Transaction, error) {
	network := model.NetworkBase.String()

	var all []Transaction
	for page := 1; ; page++ {
		txs, err := c.fetchPage(ctx, chainID, address, fromBlock, toBlock, page)
		if err != nil {
			metrics.FetchErrors.WithLabelValues(network).Inc()
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		metrics.FetchPagesTotal.WithLabelValues(network).Inc()
		metrics.FetchRecordsTotal.WithLabelValues(network).Add(float64(len(txs)))

		all = append(all, txs...)
		if len(txs) < c.pageSize {
			break
		}
	}

	c.logger.Debug("fetch complete", "address", address, "from_block", fromBlock, "count", len(all))
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, chainID int64, address string, fromBlock, toBlock int64, page int) ([]Transaction, error) {
	endBlock := "latest"
	if toBlock > 0 {
		endBlock = strconv.FormatInt(toBlock, 10)
	}

	params := url.Values{
		"chainid":    {strconv.FormatInt(chainID, 10)},
		"module":     {"account"},
		"action":     {"txlist"},
		"address":    {address},
		"startblock": {strconv.FormatInt(fromBlock, 10)},
		"endblock":   {endBlock},
		"page":       {strconv.Itoa(page)},
		"offset":     {strconv.Itoa(c.pageSize)},
		"sort":       {"asc"},
		"apikey":     {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var payload txListResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	// Any non-"1" status means no results for this page (the API also
	// reports "no transactions found" this way), so stop paginating
	// rather than failing.
	if payload.Status != "1" {
		c.logger.Debug("explorer returned no results", "status", payload.Status, "message", payload.Message, "page", page)
		return nil, nil
	}

	var txs []Transaction
	if err := json.Unmarshal(payload.Result, &txs); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return txs, nil
}
