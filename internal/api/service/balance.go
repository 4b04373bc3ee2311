package service

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/taaylor/web3-api/internal/api/config"
	"github.com/taaylor/web3-api/internal/api/monitor"
	"github.com/taaylor/web3-api/internal/api/supplier"
	"github.com/taaylor/web3-api/internal/api/token"

	"github.com/taaylor/web3-api/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// 批量查询的并发上限，避免压垮 RPC 节点
const batchMaxGoroutines = 16

const topHoldersCacheKey = "top_holders"

// ChainBackend 聚合器依赖的链上读取能力，由 chain.Manager 实现
type ChainBackend interface {
	HeadBlock(ctx context.Context) (uint64, error)
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
	AggregateBalances(ctx context.Context, holders []common.Address) (map[common.Address]*big.Int, error)
}

// PageFetcher 转账历史分页拉取，由 supplier.Client 实现
type PageFetcher interface {
	FetchPage(ctx context.Context, page, offset int, endBlock uint64) ([]supplier.TransferRecord, error)
}

// Balance 单次余额查询结果
type Balance struct {
	Amount decimal.Decimal
	Symbol string
}

// HolderBalance 排行中的一项
type HolderBalance struct {
	Address string
	Amount  decimal.Decimal
}

// Aggregator 余额聚合器：单地址/批量余额查询与持有人排行
type Aggregator struct {
	cfg       config.TopHoldersConfig
	tl        *zap.Logger
	backend   ChainBackend
	meta      *token.MetadataCache
	fetcher   PageFetcher
	rankCache *gocache.Cache
}

func NewAggregator(cfg config.TopHoldersConfig, backend ChainBackend, meta *token.MetadataCache, fetcher PageFetcher, logger *zap.Logger) *Aggregator {
	ttl := time.Duration(cfg.CacheTTL) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &Aggregator{
		cfg:       cfg,
		tl:        logger,
		backend:   backend,
		meta:      meta,
		fetcher:   fetcher,
		rankCache: gocache.New(ttl, time.Minute),
	}
}

// GetBalance 并发读取 balanceOf 与缓存的 symbol，任一失败整体失败
func (a *Aggregator) GetBalance(ctx context.Context, address common.Address) (Balance, error) {
	var raw *big.Int
	var symbol string

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		var err error
		raw, err = a.backend.BalanceOf(ctx, address)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		symbol, err = a.meta.Symbol(ctx)
		return err
	})
	if err := p.Wait(); err != nil {
		return Balance{}, err
	}

	amount, err := a.toDisplay(ctx, raw)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Amount: amount, Symbol: symbol}, nil
}

// GetBalanceBatch 为每个地址并发查询余额，结果顺序与输入顺序一致。
// 任何一个地址查询失败则整批失败，不返回部分结果。
func (a *Aggregator) GetBalanceBatch(ctx context.Context, addresses []common.Address) ([]Balance, error) {
	raws := make([]*big.Int, len(addresses))

	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(batchMaxGoroutines)
	for i, address := range addresses {
		p.Go(func(ctx context.Context) error {
			raw, err := a.backend.BalanceOf(ctx, address)
			if err != nil {
				return err
			}
			raws[i] = raw
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	symbol, err := a.meta.Symbol(ctx)
	if err != nil {
		return nil, err
	}
	decimals, err := a.meta.Decimals(ctx)
	if err != nil {
		return nil, err
	}

	balances := make([]Balance, len(addresses))
	for i, raw := range raws {
		balances[i] = Balance{Amount: utils.AdjustDecimals(raw, decimals), Symbol: symbol}
	}
	return balances, nil
}

// GetTopHolders 从最近的转账历史中发现候选持有人，
// 一次 multicall 查询全部余额并按余额降序返回完整排行。
// 候选集只覆盖拉取到的页面，是近期活跃度的采样而非完整持有人枚举。
func (a *Aggregator) GetTopHolders(ctx context.Context) ([]HolderBalance, error) {
	if cached, ok := a.rankCache.Get(topHoldersCacheKey); ok {
		monitor.TopHoldersCacheHits.Inc()
		return cached.([]HolderBalance), nil
	}

	head, err := a.backend.HeadBlock(ctx)
	if err != nil {
		return nil, err
	}

	holders := a.discoverHolders(ctx, head)
	if len(holders) == 0 {
		return []HolderBalance{}, nil
	}

	raws, err := a.backend.AggregateBalances(ctx, holders)
	if err != nil {
		return nil, err
	}
	decimals, err := a.meta.Decimals(ctx)
	if err != nil {
		return nil, err
	}

	ranking := make([]HolderBalance, 0, len(holders))
	for _, holder := range holders {
		raw := raws[holder]
		if raw == nil {
			raw = big.NewInt(0)
		}
		ranking = append(ranking, HolderBalance{
			Address: holder.Hex(),
			Amount:  utils.AdjustDecimals(raw, decimals),
		})
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Amount.GreaterThan(ranking[j].Amount)
	})

	a.rankCache.SetDefault(topHoldersCacheKey, ranking)
	a.tl.Info("Top holders ranking computed",
		zap.Uint64("head_block", head),
		zap.Int("holders", len(ranking)),
	)
	return ranking, nil
}

// discoverHolders 并发拉取 maxPages 页转账历史并去重出候选地址集。
// 失败的页面不贡献任何地址，非法地址字符串被静默跳过。
func (a *Aggregator) discoverHolders(ctx context.Context, head uint64) []common.Address {
	maxPages := a.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 5
	}
	offset := a.cfg.PageOffset
	if offset <= 0 {
		offset = 200
	}

	var mu sync.Mutex
	seen := make(map[common.Address]struct{})
	order := make([]common.Address, 0)

	p := pool.New().WithMaxGoroutines(maxPages)
	for page := 1; page <= maxPages; page++ {
		p.Go(func() {
			records, err := a.fetcher.FetchPage(ctx, page, offset, head)
			if err != nil {
				// 缺页按无数据处理，排行继续用其余页面
				return
			}

			mu.Lock()
			defer mu.Unlock()
			for _, record := range records {
				for _, raw := range []string{record.From, record.To} {
					if !common.IsHexAddress(raw) {
						continue
					}
					addr := common.HexToAddress(raw)
					if _, ok := seen[addr]; ok {
						continue
					}
					seen[addr] = struct{}{}
					order = append(order, addr)
				}
			}
		})
	}
	p.Wait()

	return order
}

func (a *Aggregator) toDisplay(ctx context.Context, raw *big.Int) (decimal.Decimal, error) {
	decimals, err := a.meta.Decimals(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return utils.AdjustDecimals(raw, decimals), nil
}
