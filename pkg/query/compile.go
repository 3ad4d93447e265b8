package query

import (
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/universexyz/marketplace-orderbook/pkg/order"
	"github.com/universexyz/marketplace-orderbook/pkg/price"
)

// compile turns a normalized filter into one predicate. now is computed
// once per request by the caller; offerKeys is the open-BUY asset set when
// HasOffers is requested (nil otherwise). Malformed price bounds reject the
// whole query rather than widening it.
func compile(f Filter, now int64, snap price.Snapshot, offerKeys map[string]bool) (func(*order.Order) bool, error) {
	var minBase, maxBase *big.Int
	if f.MinPrice != "" || f.MaxPrice != "" {
		decimals := 18
		if f.Token != "" && f.Token != ETHTokenFilter {
			if d, ok := snap.Decimals(f.Token); ok {
				decimals = d
			}
		}
		if f.MinPrice != "" {
			v, err := decimalToBase(f.MinPrice, decimals)
			if err != nil {
				return nil, order.Validationf("minPrice", "%v", err)
			}
			minBase = v
		}
		if f.MaxPrice != "" {
			v, err := decimalToBase(f.MaxPrice, decimals)
			if err != nil {
				return nil, order.Validationf("maxPrice", "%v", err)
			}
			maxBase = v
		}
	}

	return func(o *order.Order) bool {
		if f.Side != "" && o.Side != f.Side {
			return false
		}
		if !matchWindow(o, f.Window, now) {
			return false
		}
		if !matchStatus(o, f.Statuses) {
			return false
		}
		if f.Maker != "" && !strings.EqualFold(o.Maker, f.Maker) {
			return false
		}
		if f.AssetClass != "" &&
			o.Make.AssetType.Class != f.AssetClass && o.Take.AssetType.Class != f.AssetClass {
			return false
		}
		if f.Collection != "" &&
			!o.Make.AssetType.ContainsContract(f.Collection) && !o.Take.AssetType.ContainsContract(f.Collection) {
			return false
		}
		if len(f.TokenIDs) > 0 && !matchTokenIDs(o, f.Collection, f.TokenIDs) {
			return false
		}
		if f.BeforeTimestamp > 0 && o.CreatedAt >= f.BeforeTimestamp {
			return false
		}
		if f.Token != "" && !matchToken(o, f.Token) {
			return false
		}
		if minBase != nil || maxBase != nil {
			v := paymentSide(o).ValueBig()
			if v == nil {
				return false
			}
			if minBase != nil && v.Cmp(minBase) < 0 {
				return false
			}
			if maxBase != nil && v.Cmp(maxBase) > 0 {
				return false
			}
		}
		if offerKeys != nil && !matchOffers(o, offerKeys) {
			return false
		}
		return true
	}, nil
}

func matchWindow(o *order.Order, w ActivityWindow, now int64) bool {
	switch w {
	case WindowAll:
		return true
	case WindowActive:
		return o.ActiveAt(now)
	case WindowInactive:
		return !o.ActiveAt(now)
	case WindowFuture:
		return o.Start != 0 && o.Start >= now
	case WindowPassed:
		return o.End != 0 && o.End <= now
	}
	return true
}

func matchStatus(o *order.Order, statuses []order.Status) bool {
	for _, st := range statuses {
		if o.Status == st {
			return true
		}
	}
	return false
}

func matchTokenIDs(o *order.Order, collection string, ids []string) bool {
	check := func(t order.AssetType) bool {
		for _, id := range ids {
			if collection != "" {
				if t.ContainsToken(collection, id) {
					return true
				}
				continue
			}
			if t.Class == order.ClassERC721Bundle {
				for i := range t.Contracts {
					if t.ContainsToken(t.Contracts[i], id) {
						return true
					}
				}
			} else if t.TokenID == id {
				return true
			}
		}
		return false
	}
	return check(o.Make.AssetType) || check(o.Take.AssetType)
}

func matchToken(o *order.Order, token string) bool {
	a := paymentSide(o)
	if token == ETHTokenFilter {
		return a.AssetType.Class == order.ClassETH
	}
	return a.AssetType.Class == order.ClassERC20 && strings.EqualFold(a.AssetType.Contract, token)
}

// assetKeys enumerates "(contract|tokenId)" membership keys for the NFT side.
func assetKeys(o *order.Order) []string {
	t, ok := o.NFTAssetType()
	if !ok {
		return nil
	}
	if t.Class == order.ClassERC721Bundle {
		var keys []string
		for i, c := range t.Contracts {
			if i >= len(t.TokenIDs) {
				break
			}
			for _, id := range t.TokenIDs[i] {
				keys = append(keys, strings.ToLower(c)+"|"+id)
			}
		}
		return keys
	}
	return []string{strings.ToLower(t.Contract) + "|" + t.TokenID}
}

func matchOffers(o *order.Order, offerKeys map[string]bool) bool {
	if o.Side != order.SideSell {
		return false
	}
	for _, k := range assetKeys(o) {
		if offerKeys[k] {
			return true
		}
	}
	return false
}

// sortOrders sorts in place per the requested mode with the deterministic
// tiebreak (createdAt desc, id desc).
func sortOrders(orders []*order.Order, mode SortMode, snap price.Snapshot) {
	usd := func(o *order.Order) float64 {
		return snap.USDValue(paymentTokenAddress(o), paymentSide(o).ValueBig())
	}
	endKey := func(o *order.Order) int64 {
		if o.End == 0 {
			return math.MaxInt64 // unbounded listings sort last
		}
		return o.End
	}
	tiebreak := func(a, b *order.Order) bool {
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.ID > b.ID
	}
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		switch mode {
		case SortEndingSoon:
			if ak, bk := endKey(a), endKey(b); ak != bk {
				return ak < bk
			}
		case SortHighestPrice:
			if av, bv := usd(a), usd(b); av != bv {
				return av > bv
			}
		case SortLowestPrice:
			if av, bv := usd(a), usd(b); av != bv {
				return av < bv
			}
		}
		return tiebreak(a, b)
	})
}
