package token

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Source 提供代币元数据的上游读取，由链连接管理器实现
type Source interface {
	TokenDecimals(ctx context.Context) (uint8, error)
	TokenSymbol(ctx context.Context) (string, error)
}

// inflight 合并并发的首次读取：所有等待者收到同一个结果或同一个错误
type inflight struct {
	done chan struct{}
	err  error
}

// MetadataCache 进程生命周期内的 decimals/symbol 缓存。
// 代币合约是不可变配置，因此缓存一旦写入就不再失效；
// 首次读取失败不会被缓存，下一个调用者会重新发起上游请求。
type MetadataCache struct {
	src Source
	tl  *zap.Logger

	mu        sync.Mutex
	decimals  *uint8
	decFlight *inflight
	symbol    *string
	symFlight *inflight
}

func NewMetadataCache(src Source, logger *zap.Logger) *MetadataCache {
	return &MetadataCache{src: src, tl: logger}
}

// Decimals 返回缓存的精度，首次访问触发恰好一次链上读取
func (c *MetadataCache) Decimals(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	if c.decimals != nil {
		v := *c.decimals
		c.mu.Unlock()
		return v, nil
	}
	if f := c.decFlight; f != nil {
		c.mu.Unlock()
		<-f.done
		if f.err != nil {
			return 0, f.err
		}
		return c.Decimals(ctx)
	}
	f := &inflight{done: make(chan struct{})}
	c.decFlight = f
	c.mu.Unlock()

	v, err := c.src.TokenDecimals(ctx)

	c.mu.Lock()
	if err == nil {
		c.decimals = &v
		c.tl.Info("Token decimals cached", zap.Uint8("decimals", v))
	}
	c.decFlight = nil
	c.mu.Unlock()

	f.err = err
	close(f.done)
	return v, err
}

// Symbol 返回缓存的代币符号，首次访问触发恰好一次链上读取
func (c *MetadataCache) Symbol(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.symbol != nil {
		v := *c.symbol
		c.mu.Unlock()
		return v, nil
	}
	if f := c.symFlight; f != nil {
		c.mu.Unlock()
		<-f.done
		if f.err != nil {
			return "", f.err
		}
		return c.Symbol(ctx)
	}
	f := &inflight{done: make(chan struct{})}
	c.symFlight = f
	c.mu.Unlock()

	v, err := c.src.TokenSymbol(ctx)

	c.mu.Lock()
	if err == nil {
		c.symbol = &v
		c.tl.Info("Token symbol cached", zap.String("symbol", v))
	}
	c.symFlight = nil
	c.mu.Unlock()

	f.err = err
	close(f.done)
	return v, err
}
