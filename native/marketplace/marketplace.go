package marketplace

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/renaultluk/sweat-coin/core/events"
	"github.com/renaultluk/sweat-coin/native/ledger"
	"github.com/renaultluk/sweat-coin/native/rewards"
	"github.com/renaultluk/sweat-coin/observability"
	"github.com/renaultluk/sweat-coin/storage"
)

var (
	datasetPrefix    = []byte("market/dataset/")
	purchasePrefix   = []byte("market/purchase/")
	buyerIndexPrefix = []byte("market/buyer/")
	nextIDKey        = []byte("market/nextid")
	pricingKey       = []byte("market/pricing")
)

// RoleChecker answers role membership questions against the ledger.
type RoleChecker interface {
	HasRole(account common.Address, role ledger.Role) bool
}

// AggregateSource is the slice of the reward engine the marketplace prices
// against. It is the only source of aggregate truth.
type AggregateSource interface {
	GetAggregatedDataForRange(startDay, endDay uint64) (rewards.RangeAggregate, error)
	GetAverageMetricsForRange(startDay, endDay uint64) (rewards.AverageMetrics, error)
	Now() int64
}

// ProceedsSink receives the native-currency payment of a completed purchase.
type ProceedsSink interface {
	DepositNative(amount *big.Int)
}

// Marketplace exposes datasets backed by reward aggregates, prices them from
// aggregate volume, and deduplicates purchases per (buyer, dataset) pair.
type Marketplace struct {
	mu         sync.RWMutex
	token      RoleChecker
	aggregates AggregateSource
	sink       ProceedsSink
	store      storage.Database
	emitter    events.Emitter
	metrics    *observability.MarketMetrics
}

func New(token RoleChecker, aggregates AggregateSource, sink ProceedsSink, store storage.Database, emitter events.Emitter) (*Marketplace, error) {
	if token == nil || aggregates == nil || sink == nil || store == nil {
		return nil, fmt.Errorf("marketplace: all collaborators required")
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m := &Marketplace{
		token:      token,
		aggregates: aggregates,
		sink:       sink,
		store:      store,
		emitter:    emitter,
		metrics:    observability.Market(),
	}
	if _, err := m.loadPricing(); err != nil {
		if err != storage.ErrNotFound {
			return nil, err
		}
		if err := m.putPricing(DefaultPricing()); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// CalculatePrice applies the price curve to an aggregate entry count.
func (m *Marketplace) CalculatePrice(totalEntries uint64) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pricing, err := m.loadPricing()
	if err != nil {
		return nil, err
	}
	return applyPricing(pricing, totalEntries), nil
}

func applyPricing(pricing Pricing, totalEntries uint64) *big.Int {
	steps := new(big.Int).SetUint64(totalEntries / 1000)
	price := new(big.Int).Mul(steps, pricing.PricePer1000Entries)
	return price.Add(price, pricing.BasePrice)
}

// CalculatePriceForPeriod converts the unix-second window to day indices,
// reads the range aggregate, and applies the curve. This is the single
// source of truth for a period's price.
func (m *Marketplace) CalculatePriceForPeriod(startTs, endTs uint64) (*big.Int, error) {
	if startTs >= endTs {
		return nil, ErrInvalidPeriod
	}
	rangeAgg, err := m.aggregates.GetAggregatedDataForRange(startTs/rewards.SecondsPerDay, endTs/rewards.SecondsPerDay)
	if err != nil {
		return nil, fmt.Errorf("marketplace: range aggregate: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	pricing, err := m.loadPricing()
	if err != nil {
		return nil, err
	}
	return applyPricing(pricing, rangeAgg.TotalEntries), nil
}

// PreviewAggregatedData describes the dataset a period would yield, without
// creating state. EstimatedUserCount is max(1, entries/uniqueDays) while any
// entries exist, zero otherwise.
func (m *Marketplace) PreviewAggregatedData(startTs, endTs uint64) (*Preview, error) {
	if startTs >= endTs {
		return nil, ErrInvalidPeriod
	}
	startDay, endDay := startTs/rewards.SecondsPerDay, endTs/rewards.SecondsPerDay
	averages, err := m.aggregates.GetAverageMetricsForRange(startDay, endDay)
	if err != nil {
		return nil, fmt.Errorf("marketplace: averages: %w", err)
	}
	price, err := m.CalculatePriceForPeriod(startTs, endTs)
	if err != nil {
		return nil, err
	}
	preview := &Preview{
		AverageDailySteps:      averages.AverageSteps,
		AverageSleepMinutes:    averages.AverageSleepMinutes,
		AverageExerciseMinutes: averages.AverageExerciseMinutes,
		TotalEntries:           averages.TotalEntries,
		UniqueDays:             averages.UniqueDays,
		Price:                  price,
	}
	if averages.TotalEntries > 0 {
		estimated := averages.TotalEntries / averages.UniqueDays
		if estimated < 1 {
			estimated = 1
		}
		preview.EstimatedUserCount = estimated
	}
	return preview, nil
}

// CreateDataset registers a fixed-price dataset. Admin only.
func (m *Marketplace) CreateDataset(caller common.Address, title string, userCount uint64, startTs, endTs uint64, price *big.Int, minAge, maxAge uint32, region, dataLocation string) (uint64, error) {
	if price == nil || price.Sign() < 0 {
		return 0, ErrInvalidConfiguration
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.token.HasRole(caller, ledger.RoleAdmin) {
		return 0, ErrUnauthorized
	}
	dataset := &Dataset{
		Title:          title,
		UserCount:      userCount,
		StartTimestamp: startTs,
		EndTimestamp:   endTs,
		Price:          new(big.Int).Set(price),
		IsActive:       true,
		CreatedAt:      uint64(m.aggregates.Now()),
		MinAge:         minAge,
		MaxAge:         maxAge,
		Region:         region,
		DataLocation:   dataLocation,
	}
	if err := m.insertDataset(dataset); err != nil {
		return 0, err
	}
	m.emitter.Emit(newDatasetCreatedEvent(dataset))
	return dataset.ID, nil
}

// PurchaseDataset buys an existing dataset. Payment must equal the dataset
// price exactly; proceeds go to the treasury.
func (m *Marketplace) PurchaseDataset(buyer common.Address, id uint64, payment *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dataset, err := m.loadDataset(id)
	if err != nil {
		m.metrics.Record("not_found")
		return err
	}
	purchased, err := m.hasPurchased(buyer, id)
	if err != nil {
		return err
	}
	if purchased {
		m.metrics.Record("already_purchased")
		return ErrAlreadyPurchased
	}
	if !dataset.IsActive {
		m.metrics.Record("inactive")
		return ErrDatasetInactive
	}
	if payment == nil || payment.Cmp(dataset.Price) != 0 {
		m.metrics.Record("incorrect_payment")
		return ErrIncorrectPayment
	}
	if err := m.recordPurchase(buyer, dataset); err != nil {
		return err
	}
	m.sink.DepositNative(payment)
	m.metrics.Record("purchased")
	return nil
}

// PurchaseDatasetWithAggregation creates a dataset from the period's
// aggregate and purchases it in one step. The caller's payment must equal
// the authoritative period price.
func (m *Marketplace) PurchaseDatasetWithAggregation(buyer common.Address, title string, startTs, endTs uint64, payment *big.Int, minAge, maxAge uint32, region, dataLocation string) (uint64, error) {
	if startTs >= endTs || endTs > uint64(m.aggregates.Now()) {
		m.metrics.Record("invalid_period")
		return 0, ErrInvalidPeriod
	}
	startDay, endDay := startTs/rewards.SecondsPerDay, endTs/rewards.SecondsPerDay

	m.mu.Lock()
	defer m.mu.Unlock()
	// Price and averages come from one snapshot under the lock so the
	// stored dataset always matches the amount charged.
	rangeAgg, err := m.aggregates.GetAggregatedDataForRange(startDay, endDay)
	if err != nil {
		return 0, fmt.Errorf("marketplace: range aggregate: %w", err)
	}
	pricing, err := m.loadPricing()
	if err != nil {
		return 0, err
	}
	price := applyPricing(pricing, rangeAgg.TotalEntries)
	if payment == nil || payment.Cmp(price) != 0 {
		m.metrics.Record("incorrect_payment")
		return 0, ErrIncorrectPayment
	}
	averages := rangeAgg.Averages()
	userCount := uint64(0)
	if averages.TotalEntries > 0 {
		userCount = averages.TotalEntries / averages.UniqueDays
		if userCount < 1 {
			userCount = 1
		}
	}
	dataset := &Dataset{
		Title:                  title,
		UserCount:              userCount,
		StartTimestamp:         startTs,
		EndTimestamp:           endTs,
		Price:                  price,
		IsActive:               true,
		CreatedAt:              uint64(m.aggregates.Now()),
		AverageDailySteps:      averages.AverageSteps,
		AverageSleepMinutes:    averages.AverageSleepMinutes,
		AverageExerciseMinutes: averages.AverageExerciseMinutes,
		MinAge:                 minAge,
		MaxAge:                 maxAge,
		Region:                 region,
		DataLocation:           dataLocation,
	}
	if err := m.insertDataset(dataset); err != nil {
		return 0, err
	}
	m.emitter.Emit(newDatasetCreatedEvent(dataset))
	if err := m.recordPurchase(buyer, dataset); err != nil {
		return 0, err
	}
	m.sink.DepositNative(payment)
	m.metrics.Record("purchased")
	return dataset.ID, nil
}

// SetDatasetActive toggles a dataset's availability. Admin only; the only
// mutable dataset field besides the purchase counter.
func (m *Marketplace) SetDatasetActive(caller common.Address, id uint64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	dataset, err := m.loadDataset(id)
	if err != nil {
		return err
	}
	if dataset.IsActive == active {
		return nil
	}
	dataset.IsActive = active
	return m.putDataset(dataset)
}

// UpdatePricing replaces the price curve. Admin only.
func (m *Marketplace) UpdatePricing(caller common.Address, basePrice, per1000 *big.Int) error {
	if basePrice == nil || per1000 == nil || basePrice.Sign() < 0 || per1000.Sign() < 0 {
		return ErrInvalidConfiguration
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.token.HasRole(caller, ledger.RoleAdmin) {
		return ErrUnauthorized
	}
	return m.putPricing(Pricing{
		BasePrice:           new(big.Int).Set(basePrice),
		PricePer1000Entries: new(big.Int).Set(per1000),
	})
}

// GetDataset returns a copy of the dataset.
func (m *Marketplace) GetDataset(id uint64) (*Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dataset, err := m.loadDataset(id)
	if err != nil {
		return nil, err
	}
	return dataset.Clone(), nil
}

// GetActiveDatasetIDs returns active dataset ids in creation order.
func (m *Marketplace) GetActiveDatasetIDs() ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	next, err := m.nextID()
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for id := uint64(1); id < next; id++ {
		dataset, err := m.loadDataset(id)
		if err != nil {
			return nil, err
		}
		if dataset.IsActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetPurchasedDatasets returns the ids the buyer has purchased, in purchase
// order.
func (m *Marketplace) GetPurchasedDatasets(buyer common.Address) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buyerIndex(buyer)
}

// HasPurchasedDataset reports whether the (buyer, dataset) pair exists.
func (m *Marketplace) HasPurchasedDataset(buyer common.Address, id uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasPurchased(buyer, id)
}

func (m *Marketplace) insertDataset(dataset *Dataset) error {
	next, err := m.nextID()
	if err != nil {
		return err
	}
	dataset.ID = next
	if err := m.putDataset(dataset); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(next + 1)
	if err != nil {
		return err
	}
	return m.store.Put(nextIDKey, encoded)
}

func (m *Marketplace) recordPurchase(buyer common.Address, dataset *Dataset) error {
	timestamp := uint64(m.aggregates.Now())
	encoded, err := rlp.EncodeToBytes(storedPurchase{Timestamp: timestamp})
	if err != nil {
		return err
	}
	if err := m.store.Put(purchaseKey(buyer, dataset.ID), encoded); err != nil {
		return err
	}
	index, err := m.buyerIndex(buyer)
	if err != nil {
		return err
	}
	index = append(index, dataset.ID)
	encodedIndex, err := rlp.EncodeToBytes(index)
	if err != nil {
		return err
	}
	if err := m.store.Put(buyerIndexKey(buyer), encodedIndex); err != nil {
		return err
	}
	dataset.PurchaseCount++
	if err := m.putDataset(dataset); err != nil {
		return err
	}
	m.emitter.Emit(newDatasetPurchasedEvent(buyer, dataset, timestamp))
	return nil
}

func (m *Marketplace) hasPurchased(buyer common.Address, id uint64) (bool, error) {
	return m.store.Has(purchaseKey(buyer, id))
}

func (m *Marketplace) buyerIndex(buyer common.Address) ([]uint64, error) {
	raw, err := m.store.Get(buyerIndexKey(buyer))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var ids []uint64
	if err := rlp.DecodeBytes(raw, &ids); err != nil {
		return nil, fmt.Errorf("marketplace: decode buyer index: %w", err)
	}
	return ids, nil
}

func (m *Marketplace) loadDataset(id uint64) (*Dataset, error) {
	raw, err := m.store.Get(datasetKey(id))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, ErrDatasetNotFound
		}
		return nil, err
	}
	var stored storedDataset
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("marketplace: decode dataset %d: %w", id, err)
	}
	dataset := Dataset(stored)
	return &dataset, nil
}

func (m *Marketplace) putDataset(dataset *Dataset) error {
	stored := storedDataset(*dataset)
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return m.store.Put(datasetKey(dataset.ID), encoded)
}

func (m *Marketplace) nextID() (uint64, error) {
	raw, err := m.store.Get(nextIDKey)
	if err != nil {
		if err == storage.ErrNotFound {
			return 1, nil
		}
		return 0, err
	}
	var next uint64
	if err := rlp.DecodeBytes(raw, &next); err != nil {
		return 0, fmt.Errorf("marketplace: decode next id: %w", err)
	}
	return next, nil
}

func (m *Marketplace) loadPricing() (Pricing, error) {
	raw, err := m.store.Get(pricingKey)
	if err != nil {
		return Pricing{}, err
	}
	var stored storedPricing
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return Pricing{}, fmt.Errorf("marketplace: decode pricing: %w", err)
	}
	return Pricing{BasePrice: stored.BasePrice, PricePer1000Entries: stored.PricePer1000Entries}, nil
}

func (m *Marketplace) putPricing(pricing Pricing) error {
	encoded, err := rlp.EncodeToBytes(storedPricing{
		BasePrice:           pricing.BasePrice,
		PricePer1000Entries: pricing.PricePer1000Entries,
	})
	if err != nil {
		return err
	}
	return m.store.Put(pricingKey, encoded)
}

func datasetKey(id uint64) []byte {
	key := make([]byte, len(datasetPrefix)+8)
	copy(key, datasetPrefix)
	binary.BigEndian.PutUint64(key[len(datasetPrefix):], id)
	return key
}

func purchaseKey(buyer common.Address, id uint64) []byte {
	key := make([]byte, 0, len(purchasePrefix)+20+8)
	key = append(key, purchasePrefix...)
	key = append(key, buyer.Bytes()...)
	var suffix [8]byte
	binary.BigEndian.PutUint64(suffix[:], id)
	return append(key, suffix[:]...)
}

func buyerIndexKey(buyer common.Address) []byte {
	return append(append([]byte{}, buyerIndexPrefix...), buyer.Bytes()...)
}
