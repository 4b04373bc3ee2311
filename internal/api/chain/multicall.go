package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Multicall3 aggregate3，子调用允许单独失败
const multicallABIJSON = `[
	{"inputs":[{"components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}],"name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}
]`

var multicallABI = mustParseABI(multicallABIJSON)

// Call3 对应 Multicall3.Call3 结构
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Call3Result 对应 Multicall3.Result 结构
type Call3Result struct {
	Success    bool
	ReturnData []byte
}

// Multicall 通过批量调用客户端把 N 个 balanceOf 读合并为一次 eth_call
type Multicall struct {
	addr   common.Address // multicall 合约地址
	token  common.Address // 目标代币合约地址
	client *rpc.Client
}

func NewMulticall(addr, token common.Address, client *rpc.Client) *Multicall {
	return &Multicall{addr: addr, token: token, client: client}
}

// BalanceOfBatch 一次往返查询所有持有人余额。
// 单个子调用失败按余额 0 处理，整体调用失败才返回错误。
func (m *Multicall) BalanceOfBatch(ctx context.Context, holders []common.Address) (map[common.Address]*big.Int, error) {
	data, err := packBalanceCalls(m.token, holders)
	if err != nil {
		return nil, err
	}

	var raw hexutil.Bytes
	arg := map[string]interface{}{
		"to":   m.addr.Hex(),
		"data": hexutil.Bytes(data).String(),
	}
	if err := m.client.CallContext(ctx, &raw, "eth_call", arg, "latest"); err != nil {
		return nil, fmt.Errorf("multicall eth_call: %w", err)
	}

	results, err := unpackAggregate(raw)
	if err != nil {
		return nil, err
	}
	if len(results) != len(holders) {
		return nil, fmt.Errorf("multicall result length mismatch: got %d, want %d", len(results), len(holders))
	}

	balances := make(map[common.Address]*big.Int, len(holders))
	for i, holder := range holders {
		if !results[i].Success || len(results[i].ReturnData) < 32 {
			balances[holder] = big.NewInt(0)
			continue
		}
		balances[holder] = new(big.Int).SetBytes(results[i].ReturnData[len(results[i].ReturnData)-32:])
	}
	return balances, nil
}

func packBalanceCalls(token common.Address, holders []common.Address) ([]byte, error) {
	calls := make([]Call3, 0, len(holders))
	for _, holder := range holders {
		callData, err := erc20ABI.Pack("balanceOf", holder)
		if err != nil {
			return nil, fmt.Errorf("pack balanceOf: %w", err)
		}
		calls = append(calls, Call3{Target: token, AllowFailure: true, CallData: callData})
	}

	data, err := multicallABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate3: %w", err)
	}
	return data, nil
}

func unpackAggregate(raw []byte) ([]Call3Result, error) {
	out, err := multicallABI.Unpack("aggregate3", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate3: %w", err)
	}
	results := *abi.ConvertType(out[0], new([]Call3Result)).(*[]Call3Result)
	return results, nil
}
