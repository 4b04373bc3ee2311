package utils

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// IsValidAddress 检查是否为合法的 EVM 地址（0x + 40位十六进制）
func IsValidAddress(addr string) bool {
	return common.IsHexAddress(strings.TrimSpace(addr))
}

// ChecksumAddress 将 EVM 地址转换为 EIP-55 Checksum 格式
func ChecksumAddress(addr string) string {
	if addr == "" {
		return ""
	}

	// 去掉前缀，统一小写处理
	addr = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(addr)), "0x")
	return common.HexToAddress("0x" + addr).Hex()
}

// AdjustDecimals 调整精度显示
func AdjustDecimals(value *big.Int, decimals uint8) decimal.Decimal {
	decimalValue := decimal.NewFromBigInt(value, 0)
	divisor := decimal.New(1, int32(decimals))
	return decimalValue.Div(divisor)
}

// FormatUnits 格式化单位转换
func FormatUnits(amount *big.Int, decimals uint8) string {
	decimalAmount := decimal.NewFromBigInt(amount, 0)
	divisor := decimal.New(1, int32(decimals))
	result := decimalAmount.Div(divisor)
	return result.StringFixed(int32(decimals))
}
