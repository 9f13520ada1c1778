package rpc

import (
	"net/http"

	"github.com/renaultluk/sweat-coin/native/marketplace"
)

type datasetResult struct {
	ID                     uint64 `json:"id"`
	Title                  string `json:"title"`
	UserCount              uint64 `json:"userCount"`
	StartTimestamp         uint64 `json:"startTimestamp"`
	EndTimestamp           uint64 `json:"endTimestamp"`
	Price                  string `json:"price"`
	IsActive               bool   `json:"isActive"`
	CreatedAt              uint64 `json:"createdAt"`
	AverageDailySteps      uint64 `json:"averageDailySteps"`
	AverageSleepMinutes    uint64 `json:"averageSleepMinutes"`
	AverageExerciseMinutes uint64 `json:"averageExerciseMinutes"`
	MinAge                 uint32 `json:"minAge"`
	MaxAge                 uint32 `json:"maxAge"`
	Region                 string `json:"region"`
	DataLocation           string `json:"dataLocation"`
	PurchaseCount          uint64 `json:"purchaseCount"`
}

func datasetResultFrom(d *marketplace.Dataset) datasetResult {
	return datasetResult{
		ID:                     d.ID,
		Title:                  d.Title,
		UserCount:              d.UserCount,
		StartTimestamp:         d.StartTimestamp,
		EndTimestamp:           d.EndTimestamp,
		Price:                  d.Price.String(),
		IsActive:               d.IsActive,
		CreatedAt:              d.CreatedAt,
		AverageDailySteps:      d.AverageDailySteps,
		AverageSleepMinutes:    d.AverageSleepMinutes,
		AverageExerciseMinutes: d.AverageExerciseMinutes,
		MinAge:                 d.MinAge,
		MaxAge:                 d.MaxAge,
		Region:                 d.Region,
		DataLocation:           d.DataLocation,
		PurchaseCount:          d.PurchaseCount,
	}
}

func (s *Server) handleMarketGetDataset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		ID uint64 `json:"id"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	dataset, err := s.services.Marketplace.GetDataset(params.ID)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, datasetResultFrom(dataset))
}

func (s *Server) handleMarketGetActiveDatasets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	ids, err := s.services.Marketplace.GetActiveDatasetIDs()
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ids)
}

func (s *Server) handleMarketGetPurchasedDatasets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Buyer string `json:"buyer"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	ids, err := s.services.Marketplace.GetPurchasedDatasets(buyer)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ids)
}

func (s *Server) handleMarketHasPurchased(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Buyer string `json:"buyer"`
		ID    uint64 `json:"id"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	purchased, err := s.services.Marketplace.HasPurchasedDataset(buyer, params.ID)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, purchased)
}

type periodParams struct {
	StartTimestamp uint64 `json:"startTimestamp"`
	EndTimestamp   uint64 `json:"endTimestamp"`
}

func (s *Server) handleMarketCalculatePrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params periodParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	price, err := s.services.Marketplace.CalculatePriceForPeriod(params.StartTimestamp, params.EndTimestamp)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, price.String())
}

type previewResult struct {
	AverageDailySteps      uint64 `json:"averageDailySteps"`
	AverageSleepMinutes    uint64 `json:"averageSleepMinutes"`
	AverageExerciseMinutes uint64 `json:"averageExerciseMinutes"`
	TotalEntries           uint64 `json:"totalEntries"`
	UniqueDays             uint64 `json:"uniqueDays"`
	EstimatedUserCount     uint64 `json:"estimatedUserCount"`
	Price                  string `json:"price"`
}

func (s *Server) handleMarketPreview(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params periodParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	preview, err := s.services.Marketplace.PreviewAggregatedData(params.StartTimestamp, params.EndTimestamp)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, previewResult{
		AverageDailySteps:      preview.AverageDailySteps,
		AverageSleepMinutes:    preview.AverageSleepMinutes,
		AverageExerciseMinutes: preview.AverageExerciseMinutes,
		TotalEntries:           preview.TotalEntries,
		UniqueDays:             preview.UniqueDays,
		EstimatedUserCount:     preview.EstimatedUserCount,
		Price:                  preview.Price.String(),
	})
}

func (s *Server) handleMarketCreateDataset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller         string `json:"caller"`
		Title          string `json:"title"`
		UserCount      uint64 `json:"userCount"`
		StartTimestamp uint64 `json:"startTimestamp"`
		EndTimestamp   uint64 `json:"endTimestamp"`
		Price          string `json:"price"`
		MinAge         uint32 `json:"minAge"`
		MaxAge         uint32 `json:"maxAge"`
		Region         string `json:"region"`
		DataLocation   string `json:"dataLocation"`
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
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := s.services.Marketplace.CreateDataset(caller, params.Title, params.UserCount,
		params.StartTimestamp, params.EndTimestamp, price, params.MinAge, params.MaxAge, params.Region, params.DataLocation)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, id)
}

func (s *Server) handleMarketPurchase(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Buyer   string `json:"buyer"`
		ID      uint64 `json:"id"`
		Payment string `json:"payment"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payment, err := parseAmount(params.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.services.Marketplace.PurchaseDataset(buyer, params.ID, payment); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleMarketPurchaseWithAggregation(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Buyer          string `json:"buyer"`
		Title          string `json:"title"`
		StartTimestamp uint64 `json:"startTimestamp"`
		EndTimestamp   uint64 `json:"endTimestamp"`
		Payment        string `json:"payment"`
		MinAge         uint32 `json:"minAge"`
		MaxAge         uint32 `json:"maxAge"`
		Region         string `json:"region"`
		DataLocation   string `json:"dataLocation"`
	}
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payment, err := parseAmount(params.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := s.services.Marketplace.PurchaseDatasetWithAggregation(buyer, params.Title,
		params.StartTimestamp, params.EndTimestamp, payment, params.MinAge, params.MaxAge, params.Region, params.DataLocation)
	if err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, id)
}

func (s *Server) handleMarketSetDatasetActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		ID     uint64 `json:"id"`
		Active bool   `json:"active"`
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
	if err := s.services.Marketplace.SetDatasetActive(caller, params.ID, params.Active); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleMarketUpdatePricing(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller              string `json:"caller"`
		BasePrice           string `json:"basePrice"`
		PricePer1000Entries string `json:"pricePer1000Entries"`
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
	basePrice, err := parseAmount(params.BasePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	per1000, err := parseAmount(params.PricePer1000Entries)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.services.Marketplace.UpdatePricing(caller, basePrice, per1000); err != nil {
		writeDomainError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}
