package supplier

import (
	"context"
	"strconv"
	"time"

	"github.com/taaylor/web3-api/internal/api/config"
	"github.com/taaylor/web3-api/internal/api/monitor"
	"github.com/taaylor/web3-api/pkg/httpclient"

	"go.uber.org/zap"
)

// TransferRecord 浏览器 tokentx 接口返回的单条转账记录
type TransferRecord struct {
	BlockNumber string `json:"blockNumber"`
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

type tokenTxResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Result  []TransferRecord `json:"result"`
}

// Client 按页拉取代币转账历史的浏览器 API 客户端。
// 单页失败只记录日志并返回错误，重试策略由调用方决定。
type Client struct {
	cfg        config.ExplorerConfig
	tokenAddr  string
	httpClient *httpclient.HTTPClient
	tl         *zap.Logger
}

func New(cfg config.ExplorerConfig, tokenAddr string, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10
	}

	httpClient := httpclient.NewHTTPClient(httpclient.HTTPClientConfig{
		Timeout:   time.Duration(timeout) * time.Second,
		RateLimit: cfg.RateLimit,
	}, logger)

	return &Client{
		cfg:        cfg,
		tokenAddr:  tokenAddr,
		httpClient: httpClient,
		tl:         logger,
	}
}

// FetchPage 拉取一页转账记录，按时间倒序，区块范围 [0, endBlock]
func (c *Client) FetchPage(ctx context.Context, page, offset int, endBlock uint64) ([]TransferRecord, error) {
	params := map[string]string{
		"chainid":         strconv.Itoa(c.cfg.ChainID),
		"module":          "account",
		"action":          "tokentx",
		"contractaddress": c.tokenAddr,
		"startblock":      "0",
		"endblock":        strconv.FormatUint(endBlock, 10),
		"page":            strconv.Itoa(page),
		"offset":          strconv.Itoa(offset),
		"sort":            "desc",
		"apikey":          c.cfg.APIKey,
	}

	var resp tokenTxResponse
	if err := c.httpClient.Get(ctx, c.cfg.BaseURL(), params, &resp); err != nil {
		monitor.ExplorerPageFailures.Inc()
		c.tl.Warn("Fetch transfer page failed",
			zap.Int("page", page),
			zap.Error(err),
		)
		return nil, err
	}

	monitor.ExplorerPagesFetched.Inc()
	c.tl.Debug("Fetched transfer page",
		zap.Int("page", page),
		zap.Int("records", len(resp.Result)),
		zap.String("status", resp.Status),
	)
	return resp.Result, nil
}
