package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/universexyz/marketplace-orderbook/pkg/order"
	"github.com/universexyz/marketplace-orderbook/pkg/price"
)

const (
	daiContract     = "0x6b175474e89094c44da98b954eedeac495271d0f"
	unknownContract = "0x9999999999999999999999999999999999999999"
	nftContract     = "0x1111111111111111111111111111111111111111"
)

// memStore answers ScanAll from a slice.
type memStore struct {
	orders []*order.Order
}

func (m *memStore) ScanAll(pred func(*order.Order) bool) ([]*order.Order, error) {
	var out []*order.Order
	for _, o := range m.orders {
		if pred == nil || pred(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

const testNow = int64(1_700_000_000)

func newTestEngine(store *memStore) *Engine {
	return NewEngine(store).WithClock(func() time.Time { return time.Unix(testNow, 0) })
}

func testSnapshot() price.Snapshot {
	return price.NewSnapshot(map[string]price.Entry{
		price.ETHAddress: {USDPrice: 2000, Decimals: 18},
		daiContract:      {USDPrice: 1, Decimals: 18},
	})
}

func listing(id string, createdAt int64, takeClass order.AssetClass, takeContract, takeValue string) *order.Order {
	return &order.Order{
		ID:        id,
		Hash:      "0x" + id,
		CreatedAt: createdAt,
		Status:    order.StatusCreated,
		Side:      order.SideSell,
		Maker:     "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Make: order.Asset{
			AssetType: order.AssetType{Class: order.ClassERC721, Contract: nftContract, TokenID: id},
			Value:     "1",
		},
		Take: order.Asset{
			AssetType: order.AssetType{Class: takeClass, Contract: takeContract},
			Value:     takeValue,
		},
	}
}

func TestQueryPriceSortNormalizesUSD(t *testing.T) {
	// nominally the DAI listing's 500e18 dwarfs the ETH listing's 1e18; in
	// USD the ETH listing is worth 4x more
	eth := listing("a", 100, order.ClassETH, "", "1000000000000000000")           // $2000
	dai := listing("b", 200, order.ClassERC20, daiContract, "500000000000000000000") // $500
	unknown := listing("c", 300, order.ClassERC20, unknownContract, "1000000")       // $0

	e := newTestEngine(&memStore{orders: []*order.Order{eth, dai, unknown}})

	items, total, err := e.Query(context.Background(), Filter{Sort: SortLowestPrice}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	gotIDs := []string{items[0].ID, items[1].ID, items[2].ID}
	wantIDs := []string{"c", "b", "a"}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] {
			t.Fatalf("lowest price order = %v, want %v", gotIDs, wantIDs)
		}
	}

	items, _, err = e.Query(context.Background(), Filter{Sort: SortHighestPrice}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if items[0].ID != "a" || items[2].ID != "c" {
		t.Errorf("highest price order = %s..%s, want a..c", items[0].ID, items[2].ID)
	}
}

func TestQueryDefaultSortRecentlyListed(t *testing.T) {
	older := listing("a", 100, order.ClassETH, "", "1")
	newer := listing("b", 200, order.ClassETH, "", "1")
	e := newTestEngine(&memStore{orders: []*order.Order{older, newer}})

	items, _, err := e.Query(context.Background(), Filter{}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if items[0].ID != "b" || items[1].ID != "a" {
		t.Errorf("recently listed order: got %s, %s", items[0].ID, items[1].ID)
	}
}

func TestQueryEndingSoon(t *testing.T) {
	soon := listing("a", 100, order.ClassETH, "", "1")
	soon.End = testNow + 100
	later := listing("b", 200, order.ClassETH, "", "1")
	later.End = testNow + 5000
	unbounded := listing("c", 300, order.ClassETH, "", "1")

	e := newTestEngine(&memStore{orders: []*order.Order{unbounded, later, soon}})
	items, _, err := e.Query(context.Background(), Filter{Sort: SortEndingSoon}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	// unbounded listings sort last
	if items[0].ID != "a" || items[1].ID != "b" || items[2].ID != "c" {
		t.Errorf("ending soon order: %s, %s, %s", items[0].ID, items[1].ID, items[2].ID)
	}
}

func TestQueryWindowFilters(t *testing.T) {
	active := listing("a", 100, order.ClassETH, "", "1")
	future := listing("b", 200, order.ClassETH, "", "1")
	future.Start = testNow + 1000
	passed := listing("c", 300, order.ClassETH, "", "1")
	passed.End = testNow - 1000

	e := newTestEngine(&memStore{orders: []*order.Order{active, future, passed}})
	ctx := context.Background()

	tests := []struct {
		window ActivityWindow
		want   []string
	}{
		{WindowActive, []string{"a"}},
		{WindowFuture, []string{"b"}},
		{WindowPassed, []string{"c"}},
		{WindowAll, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		items, total, err := e.Query(ctx, Filter{Window: tt.window}, testSnapshot())
		if err != nil {
			t.Fatalf("query %s: %v", tt.window, err)
		}
		if total != len(tt.want) {
			t.Errorf("%s: total = %d, want %d", tt.window, total, len(tt.want))
			continue
		}
		for _, wantID := range tt.want {
			found := false
			for _, it := range items {
				if it.ID == wantID {
					found = true
				}
			}
			if !found {
				t.Errorf("%s: order %s missing from result", tt.window, wantID)
			}
		}
	}
}

func TestQueryStatusDefaults(t *testing.T) {
	created := listing("a", 100, order.ClassETH, "", "1")
	cancelled := listing("b", 200, order.ClassETH, "", "1")
	cancelled.Status = order.StatusCancelled
	partial := listing("c", 300, order.ClassETH, "", "1")
	partial.Status = order.StatusPartialFilled

	e := newTestEngine(&memStore{orders: []*order.Order{created, cancelled, partial}})
	_, total, err := e.Query(context.Background(), Filter{}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	// defaults select CREATED and PARTIALFILLED only
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
}

func TestQueryPagination(t *testing.T) {
	var orders []*order.Order
	for i := 0; i < 30; i++ {
		orders = append(orders, listing(string(rune('a'+i)), int64(i), order.ClassETH, "", "1"))
	}
	e := newTestEngine(&memStore{orders: orders})
	ctx := context.Background()

	items, total, err := e.Query(ctx, Filter{}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 30 {
		t.Errorf("total = %d, want 30", total)
	}
	if len(items) != DefaultLimit {
		t.Errorf("default page size = %d, want %d", len(items), DefaultLimit)
	}

	page3, _, err := e.Query(ctx, Filter{Page: 3, Limit: 12}, testSnapshot())
	if err != nil {
		t.Fatalf("query page 3: %v", err)
	}
	if len(page3) != 6 {
		t.Errorf("page 3 size = %d, want 6", len(page3))
	}

	beyond, total, err := e.Query(ctx, Filter{Page: 10}, testSnapshot())
	if err != nil {
		t.Fatalf("query beyond: %v", err)
	}
	if len(beyond) != 0 || total != 30 {
		t.Errorf("past-the-end page: %d items, total %d", len(beyond), total)
	}

	capped, _, err := e.Query(ctx, Filter{Limit: 500}, testSnapshot())
	if err != nil {
		t.Fatalf("query capped: %v", err)
	}
	if len(capped) != 30 {
		t.Errorf("limit should cap at %d but return all 30 here, got %d", MaxLimit, len(capped))
	}
}

func TestQueryTokenAndPriceBounds(t *testing.T) {
	cheap := listing("a", 100, order.ClassETH, "", "500000000000000000")      // 0.5 ETH
	mid := listing("b", 200, order.ClassETH, "", "2000000000000000000")       // 2 ETH
	expensive := listing("c", 300, order.ClassETH, "", "9000000000000000000") // 9 ETH
	dai := listing("d", 400, order.ClassERC20, daiContract, "1000000000000000000000")

	e := newTestEngine(&memStore{orders: []*order.Order{cheap, mid, expensive, dai}})
	ctx := context.Background()

	// token filter: ETH sentinel excludes the DAI listing
	_, total, err := e.Query(ctx, Filter{Token: ETHTokenFilter}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 3 {
		t.Errorf("ETH listings = %d, want 3", total)
	}

	// price bounds are human-denominated and converted via token decimals
	items, total, err := e.Query(ctx, Filter{Token: ETHTokenFilter, MinPrice: "1", MaxPrice: "5"}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1 || items[0].ID != "b" {
		t.Errorf("bounded query: total %d, want just order b", total)
	}
}

func TestQueryHasOffers(t *testing.T) {
	listed := listing("a", 100, order.ClassETH, "", "1")
	unwanted := listing("b", 200, order.ClassETH, "", "1")
	unwanted.Make.AssetType.TokenID = "other"

	offer := &order.Order{
		ID:        "buy1",
		Hash:      "0xbuy1",
		CreatedAt: 50,
		Status:    order.StatusCreated,
		Side:      order.SideBuy,
		Maker:     "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Make: order.Asset{
			AssetType: order.AssetType{Class: order.ClassERC20, Contract: daiContract},
			Value:     "100",
		},
		Take: order.Asset{
			AssetType: order.AssetType{Class: order.ClassERC721, Contract: nftContract, TokenID: "a"},
			Value:     "1",
		},
	}

	e := newTestEngine(&memStore{orders: []*order.Order{listed, unwanted, offer}})
	items, total, err := e.Query(context.Background(), Filter{Side: order.SideSell, HasOffers: true}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1 || items[0].ID != "a" {
		t.Errorf("hasOffers: total %d, want only the listing with an open BUY", total)
	}
}

func TestQueryHasOffersShortCircuit(t *testing.T) {
	// no open BUY orders at all: the query answers empty without scanning twice
	listed := listing("a", 100, order.ClassETH, "", "1")
	e := newTestEngine(&memStore{orders: []*order.Order{listed}})
	items, total, err := e.Query(context.Background(), Filter{HasOffers: true}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(items) != 0 || total != 0 {
		t.Errorf("expected empty result, got %d/%d", len(items), total)
	}
}

func TestQueryMakerAndCollection(t *testing.T) {
	a := listing("a", 100, order.ClassETH, "", "1")
	b := listing("b", 200, order.ClassETH, "", "1")
	b.Maker = "0xcccccccccccccccccccccccccccccccccccccccc"

	e := newTestEngine(&memStore{orders: []*order.Order{a, b}})
	ctx := context.Background()

	_, total, err := e.Query(ctx, Filter{Maker: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1 {
		t.Errorf("maker filter: total = %d, want 1 (case-insensitive)", total)
	}

	_, total, err = e.Query(ctx, Filter{Collection: nftContract, TokenIDs: []string{"b"}}, testSnapshot())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1 {
		t.Errorf("collection+tokenIds filter: total = %d, want 1", total)
	}
}

func TestQueryRejectsMalformedPriceBounds(t *testing.T) {
	e := newTestEngine(&memStore{orders: []*order.Order{listing("a", 100, order.ClassETH, "", "1")}})
	ctx := context.Background()

	for _, f := range []Filter{
		{MinPrice: "not-a-number"},
		{MaxPrice: "1.2.3"},
		{HasOffers: true, MinPrice: "abc"}, // validated even when no offers exist
	} {
		_, _, err := e.Query(ctx, f, testSnapshot())
		if err == nil {
			t.Fatalf("filter %+v: expected an error", f)
		}
		var ve *order.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("filter %+v: want ValidationError, got %T: %v", f, err, err)
		}
	}
}

func TestDecimalToBase(t *testing.T) {
	tests := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"0.5", 18, "500000000000000000"},
		{"2.75", 6, "2750000"},
		{"0.0000001", 6, "0"}, // truncates below one base unit
	}
	for _, tt := range tests {
		got, err := decimalToBase(tt.in, tt.decimals)
		if err != nil {
			t.Fatalf("decimalToBase(%q): %v", tt.in, err)
		}
		if got.String() != tt.want {
			t.Errorf("decimalToBase(%q, %d) = %s, want %s", tt.in, tt.decimals, got, tt.want)
		}
	}
	if _, err := decimalToBase("not-a-number", 18); err == nil {
		t.Error("malformed input should fail")
	}
}
