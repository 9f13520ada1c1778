package rpc

import (
	"net/http"

	"github.com/renaultluk/sweat-coin/native/merchant"
)

type couponResult struct {
	ID              uint64 `json:"id"`
	Description     string `json:"description"`
	ValueUSD        uint64 `json:"valueUSD"`
	MerchantAddress string `json:"merchantAddress"`
	IsActive        bool   `json:"isActive"`
	Deactivated     bool   `json:"deactivated"`
	CreatedAt       uint64 `json:"createdAt"`
	RedemptionCount uint64 `json:"redemptionCount"`
}

func couponResultFrom(c *merchant.Coupon) couponResult {
	return couponResult{
		ID:              c.ID,
		Description:     c.Description,
		ValueUSD:        c.ValueUSD,
		MerchantAddress: c.MerchantAddress.Hex(),
		IsActive:        c.IsActive,
		Deactivated:     c.Deactivated,
		CreatedAt:       c.CreatedAt,
		RedemptionCount: c.RedemptionCount,
	}
}

func (s *Server) handleMerchantGetCoupon(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		ID uint64 `json:"id"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	coupon, err := s.services.Merchant.GetCoupon(params.ID)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, couponResultFrom(coupon))
}

func (s *Server) handleMerchantGetActiveCoupons(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	ids, err := s.services.Merchant.GetAllActiveCouponIDs()
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ids)
}

type merchantResult struct {
	Name                  string `json:"name"`
	WalletAddress         string `json:"walletAddress"`
	IsActive              bool   `json:"isActive"`
	DefaultCouponValueUSD uint64 `json:"defaultCouponValueUSD"`
	TotalSweatReceived    string `json:"totalSweatReceived"`
	TotalEthReceived      string `json:"totalEthReceived"`
}

func (s *Server) handleMerchantGetMerchant(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Wallet string `json:"wallet"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	wallet, err := parseAddress(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	m, err := s.services.Merchant.GetMerchant(wallet)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, merchantResult{
		Name:                  m.Name,
		WalletAddress:         m.WalletAddress.Hex(),
		IsActive:              m.IsActive,
		DefaultCouponValueUSD: m.DefaultCouponValueUSD,
		TotalSweatReceived:    m.TotalSweatReceived.String(),
		TotalEthReceived:      m.TotalEthReceived.String(),
	})
}

func (s *Server) handleMerchantRegister(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller                string `json:"caller"`
		Name                  string `json:"name"`
		Wallet                string `json:"wallet"`
		DefaultCouponValueUSD uint64 `json:"defaultCouponValueUSD"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	wallet, err := parseAddress(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.services.Merchant.RegisterMerchant(caller, params.Name, wallet, params.DefaultCouponValueUSD); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleMerchantCreateCoupon(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller      string `json:"caller"`
		Description string `json:"description"`
		ValueUSD    uint64 `json:"valueUSD"`
		Merchant    string `json:"merchant"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	merchantAddr, err := parseAddress(params.Merchant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := s.services.Merchant.CreateCoupon(caller, params.Description, params.ValueUSD, merchantAddr)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, id)
}

func (s *Server) handleMerchantUpdateCoupon(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller      string `json:"caller"`
		ID          uint64 `json:"id"`
		Description string `json:"description"`
		ValueUSD    uint64 `json:"valueUSD"`
		IsActive    bool   `json:"isActive"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.services.Merchant.UpdateCoupon(caller, params.ID, params.Description, params.ValueUSD, params.IsActive); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleMerchantDeactivateCoupon(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		ID     uint64 `json:"id"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.services.Merchant.DeactivateCoupon(caller, params.ID); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

type redemptionResult struct {
	CouponID         uint64 `json:"couponId"`
	User             string `json:"user"`
	Merchant         string `json:"merchant"`
	AmountSpent      string `json:"amountSpent"`
	Burned           string `json:"burned"`
	MerchantShare    string `json:"merchantShare"`
	TreasuryFee      string `json:"treasuryFee"`
	SubsidyWei       string `json:"subsidyWei"`
	SubsidyRequested bool   `json:"subsidyRequested"`
}

func (s *Server) handleMerchantRedeemCoupon(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		User string `json:"user"`
		ID   uint64 `json:"id"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	redemption, err := s.services.Merchant.RedeemCoupon(user, params.ID)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, redemptionResult{
		CouponID:         redemption.CouponID,
		User:             redemption.User.Hex(),
		Merchant:         redemption.Merchant.Hex(),
		AmountSpent:      redemption.AmountSpent.String(),
		Burned:           redemption.Burned.String(),
		MerchantShare:    redemption.MerchantShare.String(),
		TreasuryFee:      redemption.TreasuryFee.String(),
		SubsidyWei:       redemption.SubsidyWei.String(),
		SubsidyRequested: redemption.SubsidyRequested,
	})
}
