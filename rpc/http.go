package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/renaultluk/sweat-coin/native/ledger"
	"github.com/renaultluk/sweat-coin/native/marketplace"
	"github.com/renaultluk/sweat-coin/native/merchant"
	"github.com/renaultluk/sweat-coin/native/rewards"
	"github.com/renaultluk/sweat-coin/native/treasury"
	"github.com/renaultluk/sweat-coin/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32029
)

// Services bundles the engine handles the server dispatches into.
type Services struct {
	Ledger      *ledger.Ledger
	Rewards     *rewards.Engine
	Marketplace *marketplace.Marketplace
	Treasury    *treasury.Treasury
	Merchant    *merchant.Gateway
}

// Config tunes the server's boundary policies.
type Config struct {
	AuthToken       string
	WriteRatePerMin int
}

type Server struct {
	services Services
	cfg      Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	metrics *observability.RPCMetrics
	log     *slog.Logger
}

func NewServer(services Services, cfg Config) (*Server, error) {
	if services.Ledger == nil || services.Rewards == nil || services.Marketplace == nil ||
		services.Treasury == nil || services.Merchant == nil {
		return nil, fmt.Errorf("rpc: all services required")
	}
	if cfg.WriteRatePerMin <= 0 {
		cfg.WriteRatePerMin = 60
	}
	return &Server{
		services: services,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
		metrics:  observability.RPC(),
		log:      slog.Default().With("component", "rpc"),
	}, nil
}

// Router assembles the HTTP surface: the JSON-RPC endpoint plus health and
// metrics probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/rpc", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("serving JSON-RPC", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type route struct {
	handler handlerFunc
	write   bool
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		"ledger_balanceOf":   {handler: s.handleLedgerBalanceOf},
		"ledger_totalSupply": {handler: s.handleLedgerTotalSupply},
		"ledger_allowance":   {handler: s.handleLedgerAllowance},
		"ledger_hasRole":     {handler: s.handleLedgerHasRole},
		"ledger_grantRole":   {handler: s.handleLedgerGrantRole, write: true},
		"ledger_revokeRole":  {handler: s.handleLedgerRevokeRole, write: true},
		"ledger_mint":        {handler: s.handleLedgerMint, write: true},
		"ledger_burnFrom":    {handler: s.handleLedgerBurnFrom, write: true},
		"ledger_transfer":    {handler: s.handleLedgerTransfer, write: true},
		"ledger_approve":     {handler: s.handleLedgerApprove, write: true},

		"rewards_getDailyAggregate":         {handler: s.handleRewardsGetDailyAggregate},
		"rewards_getAggregatedDataForRange": {handler: s.handleRewardsGetRange},
		"rewards_getAverageMetricsForRange": {handler: s.handleRewardsGetAverages},
		"rewards_getParams":                 {handler: s.handleRewardsGetParams},
		"rewards_submitHealthData":          {handler: s.handleRewardsSubmitHealthData, write: true},
		"rewards_submitSelfReportedData":    {handler: s.handleRewardsSubmitSelfReported, write: true},
		"rewards_updateOracle":              {handler: s.handleRewardsUpdateOracle, write: true},
		"rewards_updateRewardRates":         {handler: s.handleRewardsUpdateRates, write: true},

		"market_getDataset":                     {handler: s.handleMarketGetDataset},
		"market_getActiveDatasets":              {handler: s.handleMarketGetActiveDatasets},
		"market_getPurchasedDatasets":           {handler: s.handleMarketGetPurchasedDatasets},
		"market_hasPurchasedDataset":            {handler: s.handleMarketHasPurchased},
		"market_calculatePriceForPeriod":        {handler: s.handleMarketCalculatePrice},
		"market_previewAggregatedData":          {handler: s.handleMarketPreview},
		"market_createDataset":                  {handler: s.handleMarketCreateDataset, write: true},
		"market_purchaseDataset":                {handler: s.handleMarketPurchase, write: true},
		"market_purchaseDatasetWithAggregation": {handler: s.handleMarketPurchaseWithAggregation, write: true},
		"market_setDatasetActive":               {handler: s.handleMarketSetDatasetActive, write: true},
		"market_updatePricing":                  {handler: s.handleMarketUpdatePricing, write: true},

		"treasury_getConfig":           {handler: s.handleTreasuryGetConfig},
		"treasury_getReserves":         {handler: s.handleTreasuryGetReserves},
		"treasury_getSweatPriceUSD":    {handler: s.handleTreasuryGetPrice},
		"treasury_checkPriceStability": {handler: s.handleTreasuryCheckStability},
		"treasury_stabilizePrice":      {handler: s.handleTreasuryStabilize, write: true},
		"treasury_withdrawEth":         {handler: s.handleTreasuryWithdraw, write: true},
		"treasury_updateSplit":         {handler: s.handleTreasuryUpdateSplit, write: true},
		"treasury_updatePegBand":       {handler: s.handleTreasuryUpdatePegBand, write: true},
		"treasury_updateSubsidy":       {handler: s.handleTreasuryUpdateSubsidy, write: true},

		"merchant_getCoupon":        {handler: s.handleMerchantGetCoupon},
		"merchant_getActiveCoupons": {handler: s.handleMerchantGetActiveCoupons},
		"merchant_getMerchant":      {handler: s.handleMerchantGetMerchant},
		"merchant_register":         {handler: s.handleMerchantRegister, write: true},
		"merchant_createCoupon":     {handler: s.handleMerchantCreateCoupon, write: true},
		"merchant_updateCoupon":     {handler: s.handleMerchantUpdateCoupon, write: true},
		"merchant_deactivateCoupon": {handler: s.handleMerchantDeactivateCoupon, write: true},
		"merchant_redeemCoupon":     {handler: s.handleMerchantRedeemCoupon, write: true},
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	entry, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	if entry.write {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.Observe(req.Method, false, time.Since(started))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		source := clientSource(r)
		if !s.allowSource(source) {
			s.metrics.Observe(req.Method, false, time.Since(started))
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "write rate limit exceeded", source)
			return
		}
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	entry.handler(rec, r, req)
	s.metrics.Observe(req.Method, rec.status < http.StatusBadRequest, time.Since(started))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		perSecond := rate.Limit(float64(s.cfg.WriteRatePerMin) / 60.0)
		limiter = rate.NewLimiter(perSecond, s.cfg.WriteRatePerMin)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("parameter object required")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

// writeDomainError maps engine errors onto the JSON-RPC error space. Domain
// rejections are well-formed requests the engine refused, so they come back
// as server errors with the sentinel message intact.
func writeDomainError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, rewards.ErrUnauthorized),
		errors.Is(err, marketplace.ErrUnauthorized),
		errors.Is(err, treasury.ErrUnauthorized),
		errors.Is(err, merchant.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
		return
	case errors.Is(err, marketplace.ErrDatasetNotFound),
		errors.Is(err, merchant.ErrCouponNotFound),
		errors.Is(err, merchant.ErrMerchantNotFound):
		status = http.StatusNotFound
	}
	writeError(w, status, id, codeServerError, err.Error(), nil)
}
