package rpc

import "net/http"

type treasuryConfigResult struct {
	DefaultMerchantSubsidyWei string `json:"defaultMerchantSubsidyWei"`
	TreasurySweatFeePct       uint32 `json:"treasurySweatFeePct"`
	BurnRatePct               uint32 `json:"burnRatePct"`
	MerchantSweatPct          uint32 `json:"merchantSweatPct"`
	PegBandBps                uint32 `json:"pegBandBps"`
	TradeFractionBps          uint32 `json:"tradeFractionBps"`
}

func (s *Server) handleTreasuryGetConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	cfg, err := s.services.Treasury.GetConfig()
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, treasuryConfigResult{
		DefaultMerchantSubsidyWei: cfg.DefaultMerchantSubsidyWei.String(),
		TreasurySweatFeePct:       cfg.TreasurySweatFeePct,
		BurnRatePct:               cfg.BurnRatePct,
		MerchantSweatPct:          cfg.MerchantSweatPct,
		PegBandBps:                cfg.PegBandBps,
		TradeFractionBps:          cfg.TradeFractionBps,
	})
}

type reservesResult struct {
	NativeReserve string `json:"nativeReserve"`
	SweatReserve  string `json:"sweatReserve"`
}

func (s *Server) handleTreasuryGetReserves(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, reservesResult{
		NativeReserve: s.services.Treasury.NativeReserve().String(),
		SweatReserve:  s.services.Treasury.SweatReserve().String(),
	})
}

type priceResult struct {
	Price     string `json:"price"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleTreasuryGetPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	quote, err := s.services.Treasury.GetSweatPriceUSD()
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, priceResult{
		Price:     quote.Rate.FloatString(6),
		Source:    quote.Source,
		Timestamp: quote.Timestamp.Unix(),
	})
}

type stabilityResult struct {
	StabilizationNeeded bool   `json:"stabilizationNeeded"`
	Price               string `json:"price"`
}

func (s *Server) handleTreasuryCheckStability(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	needed, quote, err := s.services.Treasury.CheckPriceStability()
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stabilityResult{StabilizationNeeded: needed, Price: quote.Rate.FloatString(6)})
}

func (s *Server) handleTreasuryStabilize(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if err := s.services.Treasury.StabilizePrice(r.Context()); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleTreasuryWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller    string `json:"caller"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
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
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.services.Treasury.WithdrawETH(caller, recipient, amount); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleTreasuryUpdateSplit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller           string `json:"caller"`
		BurnRatePct      uint32 `json:"burnRatePct"`
		MerchantSweatPct uint32 `json:"merchantSweatPct"`
		TreasuryFeePct   uint32 `json:"treasuryFeePct"`
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
	if err := s.services.Treasury.UpdateSplit(caller, params.BurnRatePct, params.MerchantSweatPct, params.TreasuryFeePct); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleTreasuryUpdatePegBand(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller     string `json:"caller"`
		PegBandBps uint32 `json:"pegBandBps"`
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
	if err := s.services.Treasury.UpdatePegBand(caller, params.PegBandBps); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleTreasuryUpdateSubsidy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller     string `json:"caller"`
		SubsidyWei string `json:"subsidyWei"`
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
	subsidy, err := parseAmount(params.SubsidyWei)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.services.Treasury.UpdateDefaultMerchantSubsidyEth(caller, subsidy); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}
