package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/renaultluk/sweat-coin/native/ledger"
	"github.com/renaultluk/sweat-coin/native/marketplace"
	"github.com/renaultluk/sweat-coin/native/merchant"
	"github.com/renaultluk/sweat-coin/native/rewards"
	"github.com/renaultluk/sweat-coin/native/treasury"
	"github.com/renaultluk/sweat-coin/storage"
)

const testToken = "secret-token"

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func newTestServer(t *testing.T) (*Server, common.Address) {
	t.Helper()
	store := storage.NewMemDB()
	admin := addr(1)
	l, err := ledger.New(store, nil)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if err := l.Bootstrap(admin); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	engineAddr, treasuryAddr, gatewayAddr, oracleAddr := addr(2), addr(3), addr(4), addr(5)
	if err := l.GrantRole(admin, engineAddr, ledger.RoleMinter); err != nil {
		t.Fatalf("grant minter: %v", err)
	}
	if err := l.GrantRole(admin, gatewayAddr, ledger.RoleBurner); err != nil {
		t.Fatalf("grant burner: %v", err)
	}
	if err := l.GrantRole(admin, admin, ledger.RoleMinter); err != nil {
		t.Fatalf("grant admin minter: %v", err)
	}
	engine, err := rewards.NewEngine(engineAddr, l, store, nil, oracleAddr)
	if err != nil {
		t.Fatalf("rewards: %v", err)
	}
	tr, err := treasury.New(treasuryAddr, l, store, treasury.NewStaticOracle(big.NewRat(1, 1)), nil, nil)
	if err != nil {
		t.Fatalf("treasury: %v", err)
	}
	if err := tr.SetMerchantGateway(admin, gatewayAddr); err != nil {
		t.Fatalf("set gateway: %v", err)
	}
	market, err := marketplace.New(l, engine, tr, store, nil)
	if err != nil {
		t.Fatalf("marketplace: %v", err)
	}
	gateway, err := merchant.New(gatewayAddr, treasuryAddr, l, tr, store, nil)
	if err != nil {
		t.Fatalf("merchant: %v", err)
	}
	srv, err := NewServer(Services{
		Ledger:      l,
		Rewards:     engine,
		Marketplace: market,
		Treasury:    tr,
		Merchant:    gateway,
	}, Config{AuthToken: testToken, WriteRatePerMin: 120})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return srv, admin
}

func call(t *testing.T, handler http.Handler, body string, bearer string) (*RPCResponse, int) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	resp := &RPCResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp, rec.Code
}

func TestMethodNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, status := call(t, srv.Router(), `{"jsonrpc":"2.0","id":1,"method":"ledger_unknown"}`, "")
	if status != http.StatusNotFound || resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}
}

func TestParseError(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, status := call(t, srv.Router(), `{not json`, "")
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}
}

func TestWriteRequiresAuth(t *testing.T) {
	srv, admin := newTestServer(t)
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"ledger_mint","params":[{"caller":"%s","to":"%s","amount":"1000"}]}`,
		admin.Hex(), addr(9).Hex())

	resp, status := call(t, srv.Router(), body, "")
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}

	resp, status = call(t, srv.Router(), body, "wrong-token")
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}

	resp, status = call(t, srv.Router(), body, testToken)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}
}

func TestMintThenBalance(t *testing.T) {
	srv, admin := newTestServer(t)
	router := srv.Router()
	user := addr(9)

	mint := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"ledger_mint","params":[{"caller":"%s","to":"%s","amount":"5000"}]}`,
		admin.Hex(), user.Hex())
	if resp, status := call(t, router, mint, testToken); status != http.StatusOK || resp.Error != nil {
		t.Fatalf("mint failed: %+v", resp)
	}

	balance := fmt.Sprintf(`{"jsonrpc":"2.0","id":2,"method":"ledger_balanceOf","params":[{"address":"%s"}]}`, user.Hex())
	resp, status := call(t, router, balance, "")
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("balance failed: %+v", resp)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok || result["balance"] != "5000" {
		t.Fatalf("unexpected result %+v", resp.Result)
	}
}

func TestDomainErrorMapsToUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)
	intruder := addr(8)
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"ledger_mint","params":[{"caller":"%s","to":"%s","amount":"1"}]}`,
		intruder.Hex(), intruder.Hex())
	resp, status := call(t, srv.Router(), body, testToken)
	if status != http.StatusForbidden || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}
}

func TestInvalidParams(t *testing.T) {
	srv, _ := newTestServer(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"ledger_balanceOf","params":[{"address":"not-an-address"}]}`
	resp, status := call(t, srv.Router(), body, "")
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}
}

func TestWriteRateLimit(t *testing.T) {
	srv, admin := newTestServer(t)
	limited, err := NewServer(srv.services, Config{AuthToken: testToken, WriteRatePerMin: 1})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	router := limited.Router()
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"ledger_approve","params":[{"caller":"%s","spender":"%s","amount":"1"}]}`,
		admin.Hex(), addr(9).Hex())

	if resp, status := call(t, router, body, testToken); status != http.StatusOK || resp.Error != nil {
		t.Fatalf("first write should pass: %+v", resp)
	}
	resp, status := call(t, router, body, testToken)
	if status != http.StatusTooManyRequests || resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("status=%d resp=%+v", status, resp)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
}

func TestRewardsSubmitOverRPC(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	oracle, user := addr(5), addr(9)

	submit := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"rewards_submitHealthData","params":[{"caller":"%s","user":"%s","steps":5000,"goodSleep":false,"exerciseMinutes":0}]}`,
		oracle.Hex(), user.Hex())
	resp, status := call(t, router, submit, testToken)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("submit failed: %+v", resp)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result %+v", resp.Result)
	}
	if result["reward"] != "5000000000000000000" {
		t.Fatalf("reward = %v, want 5 SWEAT", result["reward"])
	}
}
