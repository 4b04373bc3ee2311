package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taaylor/web3-api/internal/api/chain"
	"github.com/taaylor/web3-api/internal/api/config"
	"github.com/taaylor/web3-api/internal/api/service"
	"github.com/taaylor/web3-api/internal/api/supplier"
	"github.com/taaylor/web3-api/internal/api/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type stubBackend struct {
	balances map[common.Address]*big.Int
	err      error
}

func (b *stubBackend) HeadBlock(ctx context.Context) (uint64, error) {
	if b.err != nil {
		return 0, b.err
	}
	return 100, nil
}

func (b *stubBackend) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	if b.err != nil {
		return nil, b.err
	}
	if raw, ok := b.balances[holder]; ok {
		return new(big.Int).Set(raw), nil
	}
	return big.NewInt(0), nil
}

func (b *stubBackend) AggregateBalances(ctx context.Context, holders []common.Address) (map[common.Address]*big.Int, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make(map[common.Address]*big.Int, len(holders))
	for _, holder := range holders {
		raw, ok := b.balances[holder]
		if !ok {
			raw = big.NewInt(0)
		}
		out[holder] = new(big.Int).Set(raw)
	}
	return out, nil
}

type stubMetaSource struct{}

func (stubMetaSource) TokenDecimals(ctx context.Context) (uint8, error) { return 18, nil }
func (stubMetaSource) TokenSymbol(ctx context.Context) (string, error)  { return "USDT", nil }

type stubFetcher struct {
	records []supplier.TransferRecord
}

func (f *stubFetcher) FetchPage(ctx context.Context, page, offset int, endBlock uint64) ([]supplier.TransferRecord, error) {
	if page == 1 {
		return f.records, nil
	}
	return nil, nil
}

func eth(n int64) *big.Int {
	unit, _ := new(big.Int).SetString("1000000000000000000", 10)
	return new(big.Int).Mul(big.NewInt(n), unit)
}

func newTestApp(t *testing.T, backend service.ChainBackend, fetcher service.PageFetcher, topEnabled bool) *fiber.App {
	t.Helper()

	cfg := config.Config{
		TopHolders: config.TopHoldersConfig{
			Enabled:    topEnabled,
			MaxPages:   5,
			PageOffset: 200,
			CacheTTL:   30,
		},
	}
	meta := token.NewMetadataCache(stubMetaSource{}, zap.NewNop())
	svc := service.NewAggregator(cfg.TopHolders, backend, meta, fetcher, zap.NewNop())

	app := fiber.New()
	New(cfg, svc, zap.NewNop()).Register(app)
	return app
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func TestGetBalanceOK(t *testing.T) {
	holder := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	raw, _ := new(big.Int).SetString("1500000000000000000", 10)
	backend := &stubBackend{balances: map[common.Address]*big.Int{holder: raw}}
	app := newTestApp(t, backend, &stubFetcher{}, true)

	req := httptest.NewRequest(http.MethodGet,
		"/polygon/api/v1/transactions/get-balance?address="+holder.Hex(), nil)
	resp, body := doRequest(t, app, req)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var got BalanceResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Balance != 1.5 {
		t.Errorf("balance = %v, want 1.5", got.Balance)
	}
	if got.TokenSymbol != "USDT" {
		t.Errorf("token_symbol = %s, want USDT", got.TokenSymbol)
	}
}

func TestGetBalanceInvalidAddress(t *testing.T) {
	app := newTestApp(t, &stubBackend{}, &stubFetcher{}, true)

	for _, addr := range []string{"", "0x123", "not-an-address"} {
		req := httptest.NewRequest(http.MethodGet,
			"/polygon/api/v1/transactions/get-balance?address="+addr, nil)
		resp, body := doRequest(t, app, req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("address %q: status = %d, body = %s", addr, resp.StatusCode, body)
		}
	}
}

func TestGetBalanceNotConnected(t *testing.T) {
	app := newTestApp(t, &stubBackend{err: chain.ErrNotConnected}, &stubFetcher{}, true)

	req := httptest.NewRequest(http.MethodGet,
		"/polygon/api/v1/transactions/get-balance?address=0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", nil)
	resp, body := doRequest(t, app, req)

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var got errorResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Detail != "Service is temporarily unavailable" {
		t.Errorf("detail = %q", got.Detail)
	}
}

func TestGetBalanceBatchOK(t *testing.T) {
	a := common.HexToAddress("0x0000000000000000000000000000000000000001")
	b := common.HexToAddress("0x0000000000000000000000000000000000000002")
	backend := &stubBackend{balances: map[common.Address]*big.Int{
		a: eth(1),
		b: eth(2),
	}}
	app := newTestApp(t, backend, &stubFetcher{}, true)

	payload, _ := json.Marshal(addressBatchRequest{AddressList: []string{b.Hex(), a.Hex()}})
	req := httptest.NewRequest(http.MethodPost,
		"/polygon/api/v1/transactions/get-balance-batch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, body := doRequest(t, app, req)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var got BalanceListResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Balances) != 2 {
		t.Fatalf("balances = %d, want 2", len(got.Balances))
	}
	// 响应顺序跟随请求顺序
	if got.Balances[0].Balance != 2 || got.Balances[1].Balance != 1 {
		t.Errorf("balances = %+v, want [2 1]", got.Balances)
	}
}

func TestGetBalanceBatchBadRequests(t *testing.T) {
	app := newTestApp(t, &stubBackend{}, &stubFetcher{}, true)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", "{not json"},
		{"empty list", `{"address_list":[]}`},
		{"invalid entry", `{"address_list":["0x0000000000000000000000000000000000000001","bogus"]}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost,
			"/polygon/api/v1/transactions/get-balance-batch", bytes.NewReader([]byte(tc.body)))
		req.Header.Set("Content-Type", "application/json")
		resp, body := doRequest(t, app, req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, body = %s", tc.name, resp.StatusCode, body)
		}
	}
}

func TestGetTopOK(t *testing.T) {
	addrs := make([]common.Address, 0, 10)
	backend := &stubBackend{balances: map[common.Address]*big.Int{}}
	records := make([]supplier.TransferRecord, 0, 10)
	for i := 0; i < 10; i++ {
		addr := common.BigToAddress(big.NewInt(int64(i + 1)))
		addrs = append(addrs, addr)
		backend.balances[addr] = eth(int64(i + 1))
		records = append(records, supplier.TransferRecord{From: addr.Hex(), To: addr.Hex(), Value: "1"})
	}
	app := newTestApp(t, backend, &stubFetcher{records: records}, true)

	req := httptest.NewRequest(http.MethodGet,
		"/polygon/api/v1/transactions/get-top?n_top=5", nil)
	resp, body := doRequest(t, app, req)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var got []TopBalanceResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("entries = %d, want 5 (sliced from 10 holders)", len(got))
	}
	if got[0].Balance != 10 {
		t.Errorf("top balance = %v, want 10", got[0].Balance)
	}
	if got[0].Address != addrs[9].Hex() {
		t.Errorf("top address = %s, want %s", got[0].Address, addrs[9].Hex())
	}
	for i := 1; i < len(got); i++ {
		if got[i].Balance > got[i-1].Balance {
			t.Errorf("ranking not descending at %d: %v > %v", i, got[i].Balance, got[i-1].Balance)
		}
	}
}

func TestGetTopBounds(t *testing.T) {
	app := newTestApp(t, &stubBackend{}, &stubFetcher{}, true)

	for _, n := range []string{"0", "4", "51", "-1", ""} {
		req := httptest.NewRequest(http.MethodGet,
			"/polygon/api/v1/transactions/get-top?n_top="+n, nil)
		resp, body := doRequest(t, app, req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("n_top=%q: status = %d, body = %s", n, resp.StatusCode, body)
		}
	}
}

func TestGetTopDisabled(t *testing.T) {
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	backend := &stubBackend{balances: map[common.Address]*big.Int{addr: eth(1)}}
	fetcher := &stubFetcher{records: []supplier.TransferRecord{{From: addr.Hex(), To: addr.Hex(), Value: "1"}}}
	app := newTestApp(t, backend, fetcher, false)

	req := httptest.NewRequest(http.MethodGet,
		"/polygon/api/v1/transactions/get-top?n_top=5", nil)
	resp, body := doRequest(t, app, req)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var got []TopBalanceResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("entries = %d, want 0 when endpoint disabled", len(got))
	}
}
