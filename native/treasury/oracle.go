package treasury

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PriceQuote captures the USD price of one SWEAT as reported by an oracle,
// with the timestamp and identifier needed for audit trails.
type PriceQuote struct {
	ID        string
	Rate      *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutation.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{ID: q.ID, Timestamp: q.Timestamp, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Rat).Set(q.Rate)
	}
	return clone
}

// PriceOracle answers "current USD price of one unit". Implementations are
// fallible remote collaborators with no latency bound.
type PriceOracle interface {
	QuoteUSD() (PriceQuote, error)
}

// StaticOracle returns a fixed rate. Used in tests and as a pinned fallback.
type StaticOracle struct {
	mu   sync.RWMutex
	rate *big.Rat
}

func NewStaticOracle(rate *big.Rat) *StaticOracle {
	return &StaticOracle{rate: new(big.Rat).Set(rate)}
}

// SetRate replaces the pinned rate.
func (o *StaticOracle) SetRate(rate *big.Rat) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rate = new(big.Rat).Set(rate)
}

func (o *StaticOracle) QuoteUSD() (PriceQuote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return PriceQuote{
		ID:        uuid.NewString(),
		Rate:      new(big.Rat).Set(o.rate),
		Timestamp: time.Now(),
		Source:    "static",
	}, nil
}

// HTTPOracle fetches the price from a JSON endpoint of the shape
// {"price": "1.0125"}. Responses older than maxAge are rejected.
type HTTPOracle struct {
	endpoint string
	client   *http.Client
	maxAge   time.Duration
}

func NewHTTPOracle(endpoint string, timeout, maxAge time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	return &HTTPOracle{
		endpoint: strings.TrimSpace(endpoint),
		client:   &http.Client{Timeout: timeout},
		maxAge:   maxAge,
	}
}

type httpOracleResponse struct {
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (o *HTTPOracle) QuoteUSD() (PriceQuote, error) {
	if o.endpoint == "" {
		return PriceQuote{}, ErrOracleUnavailable
	}
	resp, err := o.client.Get(o.endpoint)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return PriceQuote{}, fmt.Errorf("%w: status %d", ErrOracleUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return PriceQuote{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	var payload httpOracleResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return PriceQuote{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	rate, ok := new(big.Rat).SetString(strings.TrimSpace(payload.Price))
	if !ok || rate.Sign() <= 0 {
		return PriceQuote{}, fmt.Errorf("%w: malformed price %q", ErrOracleUnavailable, payload.Price)
	}
	quoted := time.Now()
	if payload.Timestamp > 0 {
		quoted = time.Unix(payload.Timestamp, 0)
		if time.Since(quoted) > o.maxAge {
			return PriceQuote{}, fmt.Errorf("%w: stale quote from %s", ErrOracleUnavailable, quoted)
		}
	}
	return PriceQuote{
		ID:        uuid.NewString(),
		Rate:      rate,
		Timestamp: quoted,
		Source:    o.endpoint,
	}, nil
}
