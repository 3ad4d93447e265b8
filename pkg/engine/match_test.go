package engine

import (
	"testing"

	"github.com/universexyz/marketplace-orderbook/pkg/order"
)

// seed persists an order directly, bypassing creation checks.
func seed(t *testing.T, f *fixture, o *order.Order) {
	t.Helper()
	if err := f.store.Save(o); err != nil {
		t.Fatalf("seed %s: %v", o.Hash, err)
	}
}

func seededSell(hash, tokenID string) *order.Order {
	return &order.Order{
		ID:     "id-" + hash,
		Hash:   hash,
		Maker:  testMaker,
		Side:   order.SideSell,
		Status: order.StatusCreated,
		Fill:   "0",
		Make: order.Asset{
			AssetType: order.AssetType{Class: order.ClassERC721, Contract: testContract, TokenID: tokenID},
			Value:     "1",
		},
		Take: order.Asset{
			AssetType: order.AssetType{Class: order.ClassETH},
			Value:     "1000000000000000000",
		},
	}
}

func TestMatchFillsOrder(t *testing.T) {
	f := newFixture(t)
	seed(t, f, seededSell("0xaa01", "1"))

	out := f.engine.MatchOrders([]order.MatchEvent{{
		TxHash:        "0xt1",
		LeftOrderHash: "0xaa01",
		LeftMaker:     testMaker,
		RightMaker:    testTaker,
		NewRightFill:  "1",
	}})
	if out["0xt1"] != order.OutcomeSuccess {
		t.Fatalf("outcome = %q, want success", out["0xt1"])
	}

	got, _ := f.store.GetByHash("0xaa01")
	if got.Status != order.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}
	if got.Fill != "0" {
		t.Errorf("fill = %q, want reset to 0", got.Fill)
	}
	if got.Taker != testTaker {
		t.Errorf("taker = %q, want %q", got.Taker, testTaker)
	}
	if len(got.MatchedTxHashes) != 1 || got.MatchedTxHashes[0].TxHash != "0xt1" {
		t.Errorf("matched ledger: %+v", got.MatchedTxHashes)
	}
	// maker has no live orders left; the watchdog drops them
	if len(f.notifier.unsubscribed) == 0 {
		t.Error("expected an unsubscribe after the last order filled")
	}
}

func TestMatchRedeliveryIsNoop(t *testing.T) {
	f := newFixture(t)
	seed(t, f, seededSell("0xaa01", "1"))

	ev := order.MatchEvent{
		TxHash: "0xt1", LeftOrderHash: "0xaa01",
		LeftMaker: testMaker, RightMaker: testTaker, NewRightFill: "1",
	}
	f.engine.MatchOrders([]order.MatchEvent{ev})
	first, _ := f.store.GetByHash("0xaa01")

	out := f.engine.MatchOrders([]order.MatchEvent{ev})
	if out["0xt1"] != order.OutcomeSuccess {
		t.Fatalf("re-delivery outcome = %q, want success", out["0xt1"])
	}
	second, _ := f.store.GetByHash("0xaa01")
	if second.UpdatedAt != first.UpdatedAt || len(second.MatchedTxHashes) != 1 {
		t.Errorf("re-delivered event mutated state: %+v", second)
	}
}

func TestMatchUnknownOrder(t *testing.T) {
	f := newFixture(t)
	out := f.engine.MatchOrders([]order.MatchEvent{{TxHash: "0xt1", LeftOrderHash: "0xdead"}})
	if out["0xt1"] != order.OutcomeNotFound {
		t.Errorf("outcome = %q, want %q", out["0xt1"], order.OutcomeNotFound)
	}
}

func TestMatch1155PartialThenFull(t *testing.T) {
	f := newFixture(t)
	o := seededSell("0xaa01", "1")
	o.Make = order.Asset{
		AssetType: order.AssetType{Class: order.ClassERC1155, Contract: testContract, TokenID: "1"},
		Value:     "10",
	}
	seed(t, f, o)

	// 3 of 10 editions trade: order stays open as PARTIALFILLED
	f.engine.MatchOrders([]order.MatchEvent{{
		TxHash: "0xt1", LeftOrderHash: "0xaa01",
		LeftMaker: testMaker, RightMaker: testTaker, NewRightFill: "3",
	}})
	got, _ := f.store.GetByHash("0xaa01")
	if got.Status != order.StatusPartialFilled {
		t.Fatalf("status = %s, want PARTIALFILLED", got.Status)
	}
	if got.Fill != "3" {
		t.Errorf("fill = %q, want 3", got.Fill)
	}

	// remaining 7 trade: full fill, counter resets
	f.engine.MatchOrders([]order.MatchEvent{{
		TxHash: "0xt2", LeftOrderHash: "0xaa01",
		LeftMaker: testMaker, RightMaker: testTaker, NewRightFill: "7",
	}})
	got, _ = f.store.GetByHash("0xaa01")
	if got.Status != order.StatusFilled {
		t.Fatalf("status = %s, want FILLED", got.Status)
	}
	if got.Fill != "0" {
		t.Errorf("fill = %q, want 0", got.Fill)
	}
	if len(got.MatchedTxHashes) != 2 {
		t.Errorf("ledger length = %d, want 2", len(got.MatchedTxHashes))
	}
}

func TestMatchCascadesSiblings(t *testing.T) {
	f := newFixture(t)
	seed(t, f, seededSell("0xaa01", "1"))

	// same maker, same token, second listing seeded directly
	sib := seededSell("0xaa02", "1")
	sib.End = 9_999_999_999
	seed(t, f, sib)

	// a listing by another maker must stay untouched
	foreign := seededSell("0xbb01", "1")
	foreign.Maker = testTaker
	seed(t, f, foreign)

	f.engine.MatchOrders([]order.MatchEvent{{
		TxHash: "0xt1", LeftOrderHash: "0xaa01",
		LeftMaker: testMaker, RightMaker: testTaker, NewRightFill: "1",
	}})

	got, _ := f.store.GetByHash("0xaa02")
	if got.Status != order.StatusStale {
		t.Errorf("sibling status = %s, want STALE", got.Status)
	}
	other, _ := f.store.GetByHash("0xbb01")
	if other.Status != order.StatusCreated {
		t.Errorf("foreign listing status = %s, want CREATED", other.Status)
	}
}

func TestMatch1155CascadePartial(t *testing.T) {
	f := newFixture(t)
	mk1155 := func(hash string, value string) *order.Order {
		o := seededSell(hash, "1")
		o.Make = order.Asset{
			AssetType: order.AssetType{Class: order.ClassERC1155, Contract: testContract, TokenID: "1"},
			Value:     value,
		}
		return o
	}
	seed(t, f, mk1155("0xaa01", "3"))
	seed(t, f, mk1155("0xaa02", "10")) // sibling with stock to spare

	f.engine.MatchOrders([]order.MatchEvent{{
		TxHash: "0xt1", LeftOrderHash: "0xaa01",
		LeftMaker: testMaker, RightMaker: testTaker, NewRightFill: "3",
	}})

	trigger, _ := f.store.GetByHash("0xaa01")
	if trigger.Status != order.StatusFilled {
		t.Errorf("trigger status = %s, want FILLED", trigger.Status)
	}
	sib, _ := f.store.GetByHash("0xaa02")
	if sib.Status != order.StatusPartialFilled {
		t.Errorf("sibling status = %s, want PARTIALFILLED", sib.Status)
	}
	if sib.Fill != "3" {
		t.Errorf("sibling fill = %q, want 3", sib.Fill)
	}
	if !sib.HasMatchedTx("0xt1") {
		t.Error("cascade must record the tx on the sibling ledger")
	}
	if sib.MatchedTxHashes[0].Amount != "3" {
		t.Errorf("ledger amount = %q, want 3", sib.MatchedTxHashes[0].Amount)
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	seed(t, f, seededSell("0xaa01", "1"))

	out := f.engine.CancelOrders([]order.CancelEvent{{TxHash: "0xc1", LeftOrderHash: "0xaa01"}})
	if out["0xc1"] != order.OutcomeSuccess {
		t.Fatalf("outcome = %q, want success", out["0xc1"])
	}
	got, _ := f.store.GetByHash("0xaa01")
	if got.Status != order.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	if got.CancelledTxHash != "0xc1" {
		t.Errorf("cancelledTxHash = %q", got.CancelledTxHash)
	}
}

func TestCancelFilledOrderIsGuarded(t *testing.T) {
	f := newFixture(t)
	o := seededSell("0xaa01", "1")
	o.Status = order.StatusFilled
	seed(t, f, o)

	out := f.engine.CancelOrders([]order.CancelEvent{{TxHash: "0xc1", LeftOrderHash: "0xaa01"}})
	// the event is acknowledged but a FILLED order never regresses
	if out["0xc1"] != order.OutcomeSuccess {
		t.Fatalf("outcome = %q, want success", out["0xc1"])
	}
	got, _ := f.store.GetByHash("0xaa01")
	if got.Status != order.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	f := newFixture(t)
	out := f.engine.CancelOrders([]order.CancelEvent{{TxHash: "0xc1", LeftOrderHash: "0xdead"}})
	if out["0xc1"] != order.OutcomeNotFound {
		t.Errorf("outcome = %q, want %q", out["0xc1"], order.OutcomeNotFound)
	}
}

func TestCancelRedeliveryIsNoop(t *testing.T) {
	f := newFixture(t)
	seed(t, f, seededSell("0xaa01", "1"))

	f.engine.CancelOrders([]order.CancelEvent{{TxHash: "0xc1", LeftOrderHash: "0xaa01"}})
	out := f.engine.CancelOrders([]order.CancelEvent{{TxHash: "0xc1", LeftOrderHash: "0xaa01"}})
	if out["0xc1"] != order.OutcomeSuccess {
		t.Errorf("duplicate cancel outcome = %q, want success", out["0xc1"])
	}
	got, _ := f.store.GetByHash("0xaa01")
	if got.Status != order.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
}

func TestStaleOrderOnTransfer(t *testing.T) {
	f := newFixture(t)
	seed(t, f, seededSell("0xaa01", "1"))

	err := f.engine.StaleOrder(order.TransferEvent{
		ContractAddress: testContract,
		TokenID:         "1",
		From:            testMaker,
		To:              testTaker,
		ERC721:          true,
	})
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	got, _ := f.store.GetByHash("0xaa01")
	if got.Status != order.StatusStale {
		t.Errorf("status = %s, want STALE", got.Status)
	}
}

func TestStaleOrderSkipsCancelledRelist(t *testing.T) {
	f := newFixture(t)
	// cancelled first listing, then a live re-list of the same token:
	// create -> cancel -> re-list leaves both records in the token index
	cancelled := seededSell("0xaa01", "1")
	cancelled.Status = order.StatusCancelled
	seed(t, f, cancelled)
	seed(t, f, seededSell("0xaa02", "1"))

	err := f.engine.StaleOrder(order.TransferEvent{
		ContractAddress: testContract,
		TokenID:         "1",
		From:            testMaker,
		To:              testTaker,
		ERC721:          true,
	})
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	live, _ := f.store.GetByHash("0xaa02")
	if live.Status != order.StatusStale {
		t.Errorf("live listing status = %s, want STALE", live.Status)
	}
	old, _ := f.store.GetByHash("0xaa01")
	if old.Status != order.StatusCancelled {
		t.Errorf("cancelled record status = %s, want CANCELLED untouched", old.Status)
	}
}

func TestStaleOrderIgnoresOtherSellers(t *testing.T) {
	f := newFixture(t)
	seed(t, f, seededSell("0xaa01", "1"))

	// token moved between unrelated wallets; the listing stays live
	err := f.engine.StaleOrder(order.TransferEvent{
		ContractAddress: testContract,
		TokenID:         "1",
		From:            testTaker,
		To:              "0xcccccccccccccccccccccccccccccccccccccccc",
	})
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	got, _ := f.store.GetByHash("0xaa01")
	if got.Status != order.StatusCreated {
		t.Errorf("status = %s, want CREATED", got.Status)
	}
}
