package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ERC20 只读方法子集
const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// ERC20 绑定单个代币合约的只读句柄
type ERC20 struct {
	addr   common.Address
	client *ethclient.Client
}

func NewERC20(addr common.Address, client *ethclient.Client) *ERC20 {
	return &ERC20{addr: addr, client: client}
}

func (c *ERC20) Address() common.Address {
	return c.addr
}

func (c *ERC20) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	results, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return results, nil
}

// BalanceOf 查询地址余额（最小单位）
func (c *ERC20) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	results, err := c.call(ctx, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return results[0].(*big.Int), nil
}

// Decimals 查询代币精度
func (c *ERC20) Decimals(ctx context.Context) (uint8, error) {
	results, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return results[0].(uint8), nil
}

// Symbol 查询代币符号
func (c *ERC20) Symbol(ctx context.Context) (string, error) {
	results, err := c.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	return results[0].(string), nil
}
