package price

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ETHAddress is the sentinel payment-token address for native currency.
const ETHAddress = "0x0000000000000000000000000000000000000000"

// Token is one supported payment token.
type Token struct {
	Symbol   string
	Address  string // lowercased; ETHAddress for native
	Decimals int
	// CoingeckoID is the fetcher's lookup key.
	CoingeckoID string
}

// DefaultTokens is the payment-token table the USD sort understands.
// Anything else normalizes to 0.
var DefaultTokens = []Token{
	{Symbol: "ETH", Address: ETHAddress, Decimals: 18, CoingeckoID: "ethereum"},
	{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18, CoingeckoID: "weth"},
	{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18, CoingeckoID: "dai"},
	{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6, CoingeckoID: "usd-coin"},
	{Symbol: "XYZ", Address: "0x618679df9efcd19694bb1daa8d00718eacfa2883", Decimals: 18, CoingeckoID: "universe-xyz"},
}

// Entry is one token's live quote.
type Entry struct {
	USDPrice float64
	Decimals int
}

// Snapshot is an immutable address→quote table. Each query call receives
// one snapshot, so a mid-sort refresh can never skew comparisons.
type Snapshot struct {
	byAddress map[string]Entry
}

// NewSnapshot builds a snapshot from explicit entries; used by tests and
// the fetcher.
func NewSnapshot(entries map[string]Entry) Snapshot {
	byAddr := make(map[string]Entry, len(entries))
	for addr, e := range entries {
		byAddr[strings.ToLower(addr)] = e
	}
	return Snapshot{byAddress: byAddr}
}

// USDValue normalizes a base-unit amount to USD: value / 10^decimals *
// usdPrice. Unrecognized payment tokens contribute 0.
func (s Snapshot) USDValue(tokenAddress string, value *big.Int) float64 {
	if value == nil {
		return 0
	}
	e, ok := s.byAddress[strings.ToLower(tokenAddress)]
	if !ok {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(e.Decimals)), nil))
	norm := new(big.Float).Quo(new(big.Float).SetInt(value), scale)
	usd, _ := new(big.Float).Mul(norm, big.NewFloat(e.USDPrice)).Float64()
	return usd
}

// Decimals returns the registered decimals for a payment token.
func (s Snapshot) Decimals(tokenAddress string) (int, bool) {
	e, ok := s.byAddress[strings.ToLower(tokenAddress)]
	if !ok {
		return 0, false
	}
	return e.Decimals, true
}

// Fetcher produces a fresh snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// CoingeckoFetcher reads USD quotes from a Coingecko-style simple-price
// endpoint.
type CoingeckoFetcher struct {
	BaseURL string // e.g. https://api.coingecko.com/api/v3
	Tokens  []Token
	HTTP    *http.Client
}

func (f *CoingeckoFetcher) Fetch(ctx context.Context) (Snapshot, error) {
	ids := make([]string, len(f.Tokens))
	for i, t := range f.Tokens {
		ids[i] = t.CoingeckoID
	}
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", f.BaseURL, strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Snapshot{}, err
	}
	client := f.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch prices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("fetch prices: status %d", resp.StatusCode)
	}

	var quotes map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return Snapshot{}, fmt.Errorf("decode prices: %w", err)
	}

	entries := make(map[string]Entry, len(f.Tokens))
	for _, t := range f.Tokens {
		q, ok := quotes[t.CoingeckoID]
		if !ok {
			continue
		}
		entries[t.Address] = Entry{USDPrice: q.USD, Decimals: t.Decimals}
	}
	return NewSnapshot(entries), nil
}

// Scheduler refreshes the snapshot out-of-band and hands out the latest
// good one. A failed fetch retains the previous snapshot rather than
// discarding it.
type Scheduler struct {
	fetcher  Fetcher
	interval time.Duration
	log      *zap.SugaredLogger
	current  atomic.Value // Snapshot
}

func NewScheduler(fetcher Fetcher, interval time.Duration, log *zap.SugaredLogger) *Scheduler {
	s := &Scheduler{fetcher: fetcher, interval: interval, log: log}
	s.current.Store(Snapshot{})
	return s
}

// Current returns the latest snapshot; empty until the first fetch lands.
func (s *Scheduler) Current() Snapshot {
	return s.current.Load().(Snapshot)
}

// Run fetches once immediately, then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.refresh(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	snap, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.log.Warnw("price_refresh_failed", "err", err)
		return
	}
	s.current.Store(snap)
	s.log.Debugw("price_snapshot_refreshed", "tokens", len(snap.byAddress))
}
