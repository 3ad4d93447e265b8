package order

import (
	"math/big"
	"strings"
)

// Status is the lifecycle state of an order.
//
// CREATED -> {PARTIALFILLED, FILLED, CANCELLED, STALE}
// PARTIALFILLED -> {FILLED, STALE}
// STALE -> {PARTIALFILLED, FILLED, CANCELLED}
// FILLED, CANCELLED are terminal (CANCELLED -> CANCELLED is a no-op).
type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusPartialFilled Status = "PARTIALFILLED"
	StatusFilled        Status = "FILLED"
	StatusCancelled     Status = "CANCELLED"
	StatusStale         Status = "STALE"
)

// Side of an order: SELL lists an NFT for ETH/ERC20, BUY offers ERC20 for an NFT.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// AssetClass identifies what kind of asset a side of an order carries.
type AssetClass string

const (
	ClassETH          AssetClass = "ETH"
	ClassERC20        AssetClass = "ERC20"
	ClassERC721       AssetClass = "ERC721"
	ClassERC1155      AssetClass = "ERC1155"
	ClassERC721Bundle AssetClass = "ERC721_BUNDLE"
)

// IsNFT reports whether the class carries NFT identity.
func (c AssetClass) IsNFT() bool {
	switch c {
	case ClassERC721, ClassERC1155, ClassERC721Bundle:
		return true
	}
	return false
}

// Valid reports whether the class is one the exchange understands.
func (c AssetClass) Valid() bool {
	switch c {
	case ClassETH, ClassERC20, ClassERC721, ClassERC1155, ClassERC721Bundle:
		return true
	}
	return false
}

// AllowedTypes is the allow-list of order type tags accepted at creation.
var AllowedTypes = map[string]bool{
	"UNIVERSE_V1": true,
}

// AssetType describes the on-chain identity of an asset. Single-contract
// assets use Contract/TokenID; ERC721_BUNDLE uses Contracts/TokenIDs with
// TokenIDs[i] listing the ids under Contracts[i].
type AssetType struct {
	Class             AssetClass `json:"assetClass"`
	Contract          string     `json:"contract,omitempty"`
	TokenID           string     `json:"tokenId,omitempty"`
	Contracts         []string   `json:"contracts,omitempty"`
	TokenIDs          [][]string `json:"tokenIds,omitempty"`
	BundleName        string     `json:"bundleName,omitempty"`
	BundleDescription string     `json:"bundleDescription,omitempty"`
}

// ContainsToken reports whether the asset type covers (contract, tokenID).
// For bundles this is membership across the per-contract id lists.
func (t AssetType) ContainsToken(contract, tokenID string) bool {
	contract = strings.ToLower(contract)
	if t.Class == ClassERC721Bundle {
		for i, c := range t.Contracts {
			if strings.ToLower(c) != contract || i >= len(t.TokenIDs) {
				continue
			}
			for _, id := range t.TokenIDs[i] {
				if id == tokenID {
					return true
				}
			}
		}
		return false
	}
	return strings.ToLower(t.Contract) == contract && t.TokenID == tokenID
}

// ContainsContract reports whether the asset type references the contract.
func (t AssetType) ContainsContract(contract string) bool {
	contract = strings.ToLower(contract)
	if t.Class == ClassERC721Bundle {
		for _, c := range t.Contracts {
			if strings.ToLower(c) == contract {
				return true
			}
		}
		return false
	}
	return strings.ToLower(t.Contract) == contract
}

// Asset is one side of an order: an asset type plus a base-unit amount.
// Value is a decimal string to survive JSON round-trips without precision loss.
type Asset struct {
	AssetType AssetType `json:"assetType"`
	Value     string    `json:"value"`
}

// ValueBig parses the asset value; nil if unset or malformed.
func (a Asset) ValueBig() *big.Int {
	if a.Value == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(a.Value, 10)
	if !ok {
		return nil
	}
	return v
}

// RevenueSplit routes a share of sale proceeds to an account.
// Value is a uint96 basis amount as a decimal string.
type RevenueSplit struct {
	Account string `json:"account"`
	Value   string `json:"value"`
}

// Data carries the revenue-split instructions attached to an order.
type Data struct {
	DataType      string         `json:"dataType,omitempty"`
	RevenueSplits []RevenueSplit `json:"revenueSplits,omitempty"`
}

// MatchedTx is one settlement transaction that (partially) filled an order.
type MatchedTx struct {
	TxHash string `json:"txHash"`
	Amount string `json:"amount"`
}

// Order is the persistent record of a signed off-chain order. Hash is the
// sole external identity and is derived from (maker, make type, take type,
// salt); records are never deleted, only status-transitioned.
type Order struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	Status    Status `json:"status"`
	Hash      string `json:"hash"`
	Type      string `json:"type"`
	Side      Side   `json:"side"`
	Maker     string `json:"maker"`
	Taker     string `json:"taker,omitempty"`
	Make      Asset  `json:"make"`
	Take      Asset  `json:"take"`
	Salt      int64  `json:"salt"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Data      Data   `json:"data"`
	Signature string `json:"signature"`

	// Fill is the cumulative edition count consumed by partial matches;
	// only meaningful for ERC1155 assets, reset to "0" on full fill.
	Fill string `json:"fill"`

	// MakeStock/MakeBalance snapshot the maker's holdings at creation.
	MakeStock   string `json:"makeStock,omitempty"`
	MakeBalance string `json:"makeBalance,omitempty"`

	CancelledTxHash string      `json:"cancelledTxHash,omitempty"`
	MatchedTxHashes []MatchedTx `json:"matchedTxHash,omitempty"`

	// ERC1155TokenBalance is an advisory cache; chain events stay authoritative.
	ERC1155TokenBalance string `json:"erc1155TokenBalance,omitempty"`
}

// NFTAssetType returns whichever side carries NFT identity. Exactly one of
// make/take does for a well-formed order.
func (o *Order) NFTAssetType() (AssetType, bool) {
	if o.Make.AssetType.Class.IsNFT() {
		return o.Make.AssetType, true
	}
	if o.Take.AssetType.Class.IsNFT() {
		return o.Take.AssetType, true
	}
	return AssetType{}, false
}

// NFTAsset returns the asset carrying NFT identity.
func (o *Order) NFTAsset() (Asset, bool) {
	if o.Make.AssetType.Class.IsNFT() {
		return o.Make, true
	}
	if o.Take.AssetType.Class.IsNFT() {
		return o.Take, true
	}
	return Asset{}, false
}

// IsERC1155 reports whether the order's NFT side is an ERC1155 edition.
func (o *Order) IsERC1155() bool {
	t, ok := o.NFTAssetType()
	return ok && t.Class == ClassERC1155
}

// ActiveAt reports whether now falls inside [start, end), with 0 meaning
// unbounded on either side.
func (o *Order) ActiveAt(now int64) bool {
	startOK := o.Start == 0 || o.Start < now
	endOK := o.End == 0 || o.End > now
	return startOK && endOK
}

// FillableValue is the total amount the fill counter runs against: the make
// value for SELL orders, the take value for BUY orders.
func (o *Order) FillableValue() *big.Int {
	if o.Side == SideSell {
		return o.Make.ValueBig()
	}
	return o.Take.ValueBig()
}

// FillBig parses the cumulative fill, defaulting to zero.
func (o *Order) FillBig() *big.Int {
	if o.Fill == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(o.Fill, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

// HasMatchedTx reports whether txHash is already on the matched ledger.
func (o *Order) HasMatchedTx(txHash string) bool {
	for _, m := range o.MatchedTxHashes {
		if strings.EqualFold(m.TxHash, txHash) {
			return true
		}
	}
	return false
}

// AppendMatchedTx records a settlement tx, deduplicated by txHash.
func (o *Order) AppendMatchedTx(txHash, amount string) {
	if o.HasMatchedTx(txHash) {
		return
	}
	o.MatchedTxHashes = append(o.MatchedTxHashes, MatchedTx{TxHash: txHash, Amount: amount})
}
