package handler

import (
	"errors"

	"github.com/taaylor/web3-api/internal/api/chain"
	"github.com/taaylor/web3-api/internal/api/config"
	"github.com/taaylor/web3-api/internal/api/service"
	"github.com/taaylor/web3-api/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// BalanceResponse 单地址余额响应
type BalanceResponse struct {
	Balance     float64 `json:"balance"`
	TokenSymbol string  `json:"token_symbol"`
}

// BalanceListResponse 批量余额响应，顺序与请求地址列表一致
type BalanceListResponse struct {
	Balances []BalanceResponse `json:"balances"`
}

// TopBalanceResponse 持有人排行中的一项
type TopBalanceResponse struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

type addressBatchRequest struct {
	AddressList []string `json:"address_list"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Handler 把三个 HTTP 端点映射到聚合器的三个操作，
// 地址格式校验在这里完成，核心层只接收已校验的 checksum 地址。
type Handler struct {
	cfg config.Config
	tl  *zap.Logger
	svc *service.Aggregator
}

func New(cfg config.Config, svc *service.Aggregator, logger *zap.Logger) *Handler {
	return &Handler{cfg: cfg, tl: logger, svc: svc}
}

func (h *Handler) Register(router fiber.Router) {
	tx := router.Group("/polygon/api/v1/transactions")
	tx.Get("/get-balance", h.GetBalance)
	tx.Post("/get-balance-batch", h.GetBalanceBatch)
	tx.Get("/get-top", h.GetTop)
}

func (h *Handler) GetBalance(c *fiber.Ctx) error {
	raw := c.Query("address")
	if !utils.IsValidAddress(raw) {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Detail: "Invalid Ethereum address"})
	}
	address := common.HexToAddress(raw)

	balance, err := h.svc.GetBalance(c.UserContext(), address)
	if err != nil {
		return h.upstreamError(c, "get balance failed", err)
	}

	return c.JSON(BalanceResponse{
		Balance:     balance.Amount.InexactFloat64(),
		TokenSymbol: balance.Symbol,
	})
}

func (h *Handler) GetBalanceBatch(c *fiber.Ctx) error {
	var req addressBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Detail: "Invalid request body"})
	}
	if len(req.AddressList) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Detail: "Address list must not be empty"})
	}

	addresses := make([]common.Address, 0, len(req.AddressList))
	for _, raw := range req.AddressList {
		if !utils.IsValidAddress(raw) {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Detail: "Invalid Ethereum address " + raw})
		}
		addresses = append(addresses, common.HexToAddress(raw))
	}

	balances, err := h.svc.GetBalanceBatch(c.UserContext(), addresses)
	if err != nil {
		return h.upstreamError(c, "get balance batch failed", err)
	}

	resp := BalanceListResponse{Balances: make([]BalanceResponse, 0, len(balances))}
	for _, balance := range balances {
		resp.Balances = append(resp.Balances, BalanceResponse{
			Balance:     balance.Amount.InexactFloat64(),
			TokenSymbol: balance.Symbol,
		})
	}
	return c.JSON(resp)
}

func (h *Handler) GetTop(c *fiber.Ctx) error {
	nTop := c.QueryInt("n_top")
	if nTop < 5 || nTop > 50 {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Detail: "n_top must be in range [5, 50]"})
	}

	// 端点可通过配置关闭，此时保持空响应
	if !h.cfg.TopHolders.Enabled {
		return c.JSON([]TopBalanceResponse{})
	}

	ranking, err := h.svc.GetTopHolders(c.UserContext())
	if err != nil {
		return h.upstreamError(c, "get top holders failed", err)
	}

	if len(ranking) > nTop {
		ranking = ranking[:nTop]
	}
	resp := make([]TopBalanceResponse, 0, len(ranking))
	for _, holder := range ranking {
		resp = append(resp, TopBalanceResponse{
			Address: holder.Address,
			Balance: holder.Amount.InexactFloat64(),
		})
	}
	return c.JSON(resp)
}

func (h *Handler) upstreamError(c *fiber.Ctx, msg string, err error) error {
	h.tl.Error(msg, zap.Error(err))
	if errors.Is(err, chain.ErrNotConnected) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Detail: "Service is temporarily unavailable"})
	}
	return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Detail: "Upstream request failed"})
}
