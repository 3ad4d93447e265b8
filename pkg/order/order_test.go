package order

import (
	"math/big"
	"testing"
)

func TestActiveAt(t *testing.T) {
	tests := []struct {
		name       string
		start, end int64
		now        int64
		want       bool
	}{
		{"unbounded", 0, 0, 1000, true},
		{"inside window", 500, 2000, 1000, true},
		{"not started", 1500, 2000, 1000, false},
		{"already ended", 100, 900, 1000, false},
		{"start boundary excluded", 1000, 0, 1000, false},
		{"end boundary excluded", 0, 1000, 1000, false},
		{"open ended", 500, 0, 1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Start: tt.start, End: tt.end}
			if got := o.ActiveAt(tt.now); got != tt.want {
				t.Errorf("ActiveAt(%d) with [%d,%d) = %v, want %v", tt.now, tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestContainsToken(t *testing.T) {
	single := AssetType{Class: ClassERC721, Contract: "0xAbCd000000000000000000000000000000000001", TokenID: "7"}
	if !single.ContainsToken("0xabcd000000000000000000000000000000000001", "7") {
		t.Error("single: case-insensitive contract match expected")
	}
	if single.ContainsToken("0xabcd000000000000000000000000000000000001", "8") {
		t.Error("single: wrong token id matched")
	}

	bundle := AssetType{
		Class:     ClassERC721Bundle,
		Contracts: []string{"0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222"},
		TokenIDs:  [][]string{{"1", "2"}, {"9"}},
	}
	if !bundle.ContainsToken("0x2222222222222222222222222222222222222222", "9") {
		t.Error("bundle: membership across contracts expected")
	}
	if bundle.ContainsToken("0x1111111111111111111111111111111111111111", "9") {
		t.Error("bundle: token id matched under the wrong contract")
	}
}

func TestNFTAssetType(t *testing.T) {
	sell := &Order{
		Side: SideSell,
		Make: Asset{AssetType: AssetType{Class: ClassERC721, Contract: "0x1", TokenID: "1"}},
		Take: Asset{AssetType: AssetType{Class: ClassETH}},
	}
	if at, ok := sell.NFTAssetType(); !ok || at.Class != ClassERC721 {
		t.Errorf("sell NFT side: got %v ok=%v", at.Class, ok)
	}

	buy := &Order{
		Side: SideBuy,
		Make: Asset{AssetType: AssetType{Class: ClassERC20, Contract: "0x2"}},
		Take: Asset{AssetType: AssetType{Class: ClassERC1155, Contract: "0x3", TokenID: "5"}},
	}
	if at, ok := buy.NFTAssetType(); !ok || at.Class != ClassERC1155 {
		t.Errorf("buy NFT side: got %v ok=%v", at.Class, ok)
	}

	none := &Order{
		Make: Asset{AssetType: AssetType{Class: ClassERC20}},
		Take: Asset{AssetType: AssetType{Class: ClassETH}},
	}
	if _, ok := none.NFTAssetType(); ok {
		t.Error("order with no NFT side reported one")
	}
}

func TestFillableValue(t *testing.T) {
	o := &Order{
		Side: SideSell,
		Make: Asset{AssetType: AssetType{Class: ClassERC1155}, Value: "10"},
		Take: Asset{AssetType: AssetType{Class: ClassETH}, Value: "5"},
	}
	if got := o.FillableValue(); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("sell fillable = %s, want 10", got)
	}
	o.Side = SideBuy
	if got := o.FillableValue(); got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("buy fillable = %s, want 5", got)
	}
}

func TestMatchedTxLedger(t *testing.T) {
	o := &Order{}
	o.AppendMatchedTx("0xABC", "1")
	o.AppendMatchedTx("0xabc", "1") // same tx, different case
	if len(o.MatchedTxHashes) != 1 {
		t.Fatalf("ledger length = %d, want 1", len(o.MatchedTxHashes))
	}
	if !o.HasMatchedTx("0xAbC") {
		t.Error("HasMatchedTx must be case-insensitive")
	}
	o.AppendMatchedTx("0xdef", "3")
	if len(o.MatchedTxHashes) != 2 {
		t.Fatalf("ledger length = %d, want 2", len(o.MatchedTxHashes))
	}
}

func TestFillBig(t *testing.T) {
	o := &Order{}
	if o.FillBig().Sign() != 0 {
		t.Error("empty fill should parse as zero")
	}
	o.Fill = "7"
	if o.FillBig().Cmp(big.NewInt(7)) != 0 {
		t.Errorf("fill = %s, want 7", o.FillBig())
	}
	o.Fill = "garbage"
	if o.FillBig().Sign() != 0 {
		t.Error("malformed fill should default to zero")
	}
}
