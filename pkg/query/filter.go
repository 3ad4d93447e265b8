package query

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/universexyz/marketplace-orderbook/pkg/order"
	"github.com/universexyz/marketplace-orderbook/pkg/price"
)

// ActivityWindow selects orders by their [start, end) window relative to
// request time.
type ActivityWindow string

const (
	WindowActive   ActivityWindow = "ACTIVE" // default: started (or unbounded) and not yet ended
	WindowInactive ActivityWindow = "INACTIVE"
	WindowFuture   ActivityWindow = "FUTURE"
	WindowPassed   ActivityWindow = "PASSED"
	WindowAll      ActivityWindow = "ALL"
)

// SortMode orders the result set. All modes share the deterministic
// tiebreak: createdAt desc, then id desc.
type SortMode string

const (
	SortRecentlyListed SortMode = "RECENTLY_LISTED" // default
	SortEndingSoon     SortMode = "ENDING_SOON"
	SortHighestPrice   SortMode = "HIGHEST_PRICE"
	SortLowestPrice    SortMode = "LOWEST_PRICE"
)

// ETHTokenFilter is the sentinel value selecting native-currency listings.
const ETHTokenFilter = "ETH"

const (
	DefaultLimit = 12
	MaxLimit     = 100
)

// Filter is a pure descriptor of one listing query. All fields are optional
// and AND-combined; Normalized applies the defaults. It is compiled into a
// single predicate handed to the store, never mutated during execution.
type Filter struct {
	Side            order.Side
	Window          ActivityWindow
	Statuses        []order.Status
	HasOffers       bool
	Maker           string
	AssetClass      order.AssetClass
	Collection      string
	TokenIDs        []string
	BeforeTimestamp int64
	// Token filters by payment token: ETHTokenFilter or an ERC20 contract.
	Token    string
	MinPrice string // human-denominated decimal, converted to base units
	MaxPrice string
	Sort     SortMode
	Page     int
	Limit    int
}

// Normalized returns a copy with defaults applied.
func (f Filter) Normalized() Filter {
	if f.Window == "" {
		f.Window = WindowActive
	}
	if len(f.Statuses) == 0 {
		f.Statuses = []order.Status{order.StatusCreated, order.StatusPartialFilled}
	}
	if f.Sort == "" {
		f.Sort = SortRecentlyListed
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// paymentSide returns the non-NFT asset of an order: take for SELL, make
// for BUY.
func paymentSide(o *order.Order) order.Asset {
	if o.Side == order.SideSell {
		return o.Take
	}
	return o.Make
}

// paymentTokenAddress maps the payment side to its snapshot key.
func paymentTokenAddress(o *order.Order) string {
	a := paymentSide(o)
	if a.AssetType.Class == order.ClassETH {
		return price.ETHAddress
	}
	return strings.ToLower(a.AssetType.Contract)
}

// decimalToBase converts a human-denominated decimal string to base units.
func decimalToBase(s string, decimals int) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("not a decimal number: %q", s)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	// truncate toward zero; price bounds don't need sub-unit precision
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}
