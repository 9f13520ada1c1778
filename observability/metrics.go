package observability

import (
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics

	rewardsOnce     sync.Once
	rewardsRegistry *RewardMetrics

	marketOnce     sync.Once
	marketRegistry *MarketMetrics

	treasuryOnce     sync.Once
	treasuryRegistry *TreasuryMetrics

	merchantOnce     sync.Once
	merchantRegistry *MerchantMetrics

	rpcOnce     sync.Once
	rpcRegistry *RPCMetrics
)

// LedgerMetrics tracks supply-changing activity on the token ledger.
type LedgerMetrics struct {
	Mints  prometheus.Counter
	Burns  prometheus.Counter
	supply prometheus.Gauge
}

// Ledger returns the lazily-initialised ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			Mints: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "sweat",
				Subsystem: "ledger",
				Name:      "mints_total",
				Help:      "Total successful mint operations.",
			}),
			Burns: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "sweat",
				Subsystem: "ledger",
				Name:      "burns_total",
				Help:      "Total successful burn operations.",
			}),
			supply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sweat",
				Subsystem: "ledger",
				Name:      "total_supply_units",
				Help:      "Outstanding SWEAT supply in whole units.",
			}),
		}
		prometheus.MustRegister(ledgerRegistry.Mints, ledgerRegistry.Burns, ledgerRegistry.supply)
	})
	return ledgerRegistry
}

// SetSupply records the outstanding supply, scaled from 18-decimal base units
// to whole tokens for dashboard readability.
func (m *LedgerMetrics) SetSupply(supply *big.Int) {
	if m == nil || supply == nil {
		return
	}
	scaled, _ := new(big.Rat).SetFrac(supply, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)).Float64()
	if math.IsInf(scaled, 0) || math.IsNaN(scaled) {
		return
	}
	m.supply.Set(scaled)
}

// RewardMetrics tracks health report submissions and resulting payouts.
type RewardMetrics struct {
	Submissions *prometheus.CounterVec
}

// Rewards returns the lazily-initialised reward engine metrics registry.
func Rewards() *RewardMetrics {
	rewardsOnce.Do(func() {
		rewardsRegistry = &RewardMetrics{
			Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sweat",
				Subsystem: "rewards",
				Name:      "submissions_total",
				Help:      "Health data submissions segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(rewardsRegistry.Submissions)
	})
	return rewardsRegistry
}

// Record increments the submission counter for a stable outcome label such as
// "accepted", "cooldown" or "unauthorized".
func (m *RewardMetrics) Record(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

// MarketMetrics tracks dataset purchase flow outcomes.
type MarketMetrics struct {
	Purchases *prometheus.CounterVec
}

// Market returns the lazily-initialised marketplace metrics registry.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sweat",
				Subsystem: "market",
				Name:      "purchases_total",
				Help:      "Dataset purchase attempts segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(marketRegistry.Purchases)
	})
	return marketRegistry
}

// Record increments the purchase counter for the supplied outcome label.
func (m *MarketMetrics) Record(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Purchases.WithLabelValues(outcome).Inc()
}

// TreasuryMetrics tracks peg maintenance and subsidy disbursement.
type TreasuryMetrics struct {
	StabilizeRuns *prometheus.CounterVec
	Subsidies     *prometheus.CounterVec
	nativeReserve prometheus.Gauge
}

// Treasury returns the lazily-initialised treasury metrics registry.
func Treasury() *TreasuryMetrics {
	treasuryOnce.Do(func() {
		treasuryRegistry = &TreasuryMetrics{
			StabilizeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sweat",
				Subsystem: "treasury",
				Name:      "stabilize_runs_total",
				Help:      "Peg stabilization attempts segmented by outcome.",
			}, []string{"outcome"}),
			Subsidies: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sweat",
				Subsystem: "treasury",
				Name:      "subsidies_total",
				Help:      "Merchant subsidy requests segmented by outcome.",
			}, []string{"outcome"}),
			nativeReserve: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sweat",
				Subsystem: "treasury",
				Name:      "native_reserve_wei",
				Help:      "Native currency reserve held by the treasury, in wei.",
			}),
		}
		prometheus.MustRegister(
			treasuryRegistry.StabilizeRuns,
			treasuryRegistry.Subsidies,
			treasuryRegistry.nativeReserve,
		)
	})
	return treasuryRegistry
}

// SetNativeReserve records the current native reserve level.
func (m *TreasuryMetrics) SetNativeReserve(reserve *big.Int) {
	if m == nil || reserve == nil {
		return
	}
	value, _ := new(big.Float).SetInt(reserve).Float64()
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return
	}
	m.nativeReserve.Set(value)
}

// MerchantMetrics tracks coupon redemption outcomes.
type MerchantMetrics struct {
	Redemptions *prometheus.CounterVec
}

// Merchant returns the lazily-initialised merchant gateway metrics registry.
func Merchant() *MerchantMetrics {
	merchantOnce.Do(func() {
		merchantRegistry = &MerchantMetrics{
			Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sweat",
				Subsystem: "merchant",
				Name:      "redemptions_total",
				Help:      "Coupon redemption attempts segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(merchantRegistry.Redemptions)
	})
	return merchantRegistry
}

// Record increments the redemption counter for the supplied outcome label.
func (m *MerchantMetrics) Record(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Redemptions.WithLabelValues(outcome).Inc()
}

type RPCMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// RPC returns the lazily-initialised RPC metrics registry.
func RPC() *RPCMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sweat",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "sweat",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.latency)
	})
	return rpcRegistry
}

// Observe records a completed JSON-RPC request.
func (m *RPCMetrics) Observe(method string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}
