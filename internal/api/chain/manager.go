package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/taaylor/web3-api/internal/api/config"
	"github.com/taaylor/web3-api/internal/api/monitor"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected 在连接建立前或关闭后访问链上句柄
	ErrNotConnected = errors.New("web3 client was not initialized")
	// ErrConnectFailed 重试耗尽后的连接失败
	ErrConnectFailed = errors.New("failed to connect to web3 provider")
)

// 连接状态机：uninitialized -> connecting -> connected -> closed
type connState int32

const (
	stateUninitialized connState = iota
	stateConnecting
	stateConnected
	stateClosed
)

const (
	connectMaxAttempts = 3
	dialTimeout        = 5 * time.Second
)

// connectBaseDelay 指数退避基础间隔，测试中可调小
var connectBaseDelay = 500 * time.Millisecond

// Manager 持有进程级共享的链上连接：一个请求/响应客户端、
// 一个批量调用客户端（multicall 走这条路径）以及绑定代币合约的句柄。
// 连接成功后所有句柄只读，允许任意并发读取。
type Manager struct {
	cfg config.TokenConfig
	tl  *zap.Logger

	mu        sync.Mutex
	state     connState
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	contract  *ERC20
	multicall *Multicall
}

func NewManager(cfg config.TokenConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:   cfg,
		tl:    logger,
		state: stateUninitialized,
	}
}

// Connect 建立与 RPC 节点的连接并绑定合约，幂等。
// 瞬时失败按指数退避加随机抖动重试，最多 connectMaxAttempts 次；
// 耗尽后状态回到 uninitialized 并返回 ErrConnectFailed，由调用方决定是否致命。
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateConnected {
		return nil
	}
	m.state = stateConnecting

	var lastErr error
	for attempt := 0; attempt < connectMaxAttempts; attempt++ {
		if attempt > 0 {
			// full jitter: [0, base * 2^attempt)
			backoff := connectBaseDelay << uint(attempt)
			delay := time.Duration(rand.Int63n(int64(backoff)))
			m.tl.Warn("Web3 connect retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				m.state = stateUninitialized
				return ctx.Err()
			}
		}

		if err := m.dial(ctx); err != nil {
			lastErr = err
			continue
		}

		m.state = stateConnected
		return nil
	}

	m.state = stateUninitialized
	return fmt.Errorf("%w: %v", ErrConnectFailed, lastErr)
}

func (m *Manager) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	rawClient, err := rpc.DialContext(dialCtx, m.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc endpoint: %w", err)
	}

	ethClient := ethclient.NewClient(rawClient)

	// 活性检查：取最新区块高度
	block, err := ethClient.BlockNumber(dialCtx)
	if err != nil {
		rawClient.Close()
		return fmt.Errorf("liveness check failed: %w", err)
	}
	m.tl.Info("Web3 connection has been established", zap.Uint64("block", block))

	tokenAddr := common.HexToAddress(m.cfg.Address)
	m.rpcClient = rawClient
	m.ethClient = ethClient
	m.contract = NewERC20(tokenAddr, ethClient)
	m.multicall = NewMulticall(common.HexToAddress(m.cfg.MulticallAddress), tokenAddr, rawClient)
	m.tl.Info("Token contract bound", zap.String("address", tokenAddr.Hex()))

	return nil
}

// Close 释放两个客户端与合约句柄，从未连接时为 no-op
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rpcClient != nil {
		m.rpcClient.Close()
	}
	m.rpcClient = nil
	m.ethClient = nil
	m.contract = nil
	m.multicall = nil
	m.state = stateClosed
}

// Client 获取请求/响应客户端，未连接返回 ErrNotConnected
func (m *Manager) Client() (*ethclient.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateConnected {
		return nil, ErrNotConnected
	}
	return m.ethClient, nil
}

// Contract 获取绑定代币合约的句柄，未连接返回 ErrNotConnected
func (m *Manager) Contract() (*ERC20, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateConnected {
		return nil, ErrNotConnected
	}
	return m.contract, nil
}

// HeadBlock 返回当前链头区块高度
func (m *Manager) HeadBlock(ctx context.Context) (uint64, error) {
	client, err := m.Client()
	if err != nil {
		return 0, err
	}

	timer := monitor.RPCRequestDuration.WithLabelValues("eth_blockNumber")
	start := time.Now()
	block, err := client.BlockNumber(ctx)
	timer.Observe(time.Since(start).Seconds())
	return block, err
}

// BalanceOf 查询单个地址的代币余额
func (m *Manager) BalanceOf(ctx context.Context, holder common.Address) (balance *big.Int, err error) {
	contract, err := m.Contract()
	if err != nil {
		return nil, err
	}

	timer := monitor.RPCRequestDuration.WithLabelValues("balanceOf")
	start := time.Now()
	balance, err = contract.BalanceOf(ctx, holder)
	timer.Observe(time.Since(start).Seconds())
	return balance, err
}

// TokenDecimals 读取合约 decimals
func (m *Manager) TokenDecimals(ctx context.Context) (uint8, error) {
	contract, err := m.Contract()
	if err != nil {
		return 0, err
	}
	return contract.Decimals(ctx)
}

// TokenSymbol 读取合约 symbol
func (m *Manager) TokenSymbol(ctx context.Context) (string, error) {
	contract, err := m.Contract()
	if err != nil {
		return "", err
	}
	return contract.Symbol(ctx)
}

// AggregateBalances 对一批持有人地址发起一次 multicall 余额查询
func (m *Manager) AggregateBalances(ctx context.Context, holders []common.Address) (map[common.Address]*big.Int, error) {
	m.mu.Lock()
	mc := m.multicall
	connected := m.state == stateConnected
	m.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	timer := monitor.RPCRequestDuration.WithLabelValues("multicall")
	start := time.Now()
	balances, err := mc.BalanceOfBatch(ctx, holders)
	timer.Observe(time.Since(start).Seconds())
	return balances, err
}
