package order

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EmptyClassSelector marks an absent asset class or data type.
const EmptyClassSelector = "0xffffffff"

// The settlement contract verifies signatures against these exact struct
// hashes; every encoding below must bit-match the Solidity side.
var (
	assetTypeTypehash = crypto.Keccak256Hash([]byte("AssetType(bytes4 assetClass,bytes data)"))
	assetTypehash     = crypto.Keccak256Hash([]byte("Asset(AssetType assetType,uint256 value)AssetType(bytes4 assetClass,bytes data)"))
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Errorf("abi type %s: %w", t, err))
	}
	return typ
}

var (
	typeAddress = mustType("address", nil)
	typeUint256 = mustType("uint256", nil)
	typeBytes32 = mustType("bytes32", nil)
	typeBytes4  = mustType("bytes4", nil)

	typeBundle = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "contractAddress", Type: "address"},
		{Name: "tokenIds", Type: "uint256[]"},
	})

	typeOrderData = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "revenueSplits", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "account", Type: "address"},
			{Name: "value", Type: "uint96"},
		}},
	})

	singleTokenArgs   = abi.Arguments{{Type: typeAddress}, {Type: typeUint256}}
	contractOnlyArgs  = abi.Arguments{{Type: typeAddress}}
	bundleArgs        = abi.Arguments{{Type: typeBundle}}
	orderDataArgs     = abi.Arguments{{Type: typeOrderData}}
	assetTypeHashArgs = abi.Arguments{{Type: typeBytes32}, {Type: typeBytes4}, {Type: typeBytes32}}
	assetHashArgs     = abi.Arguments{{Type: typeBytes32}, {Type: typeBytes32}, {Type: typeUint256}}
	orderKeyArgs      = abi.Arguments{{Type: typeAddress}, {Type: typeBytes32}, {Type: typeBytes32}, {Type: typeUint256}}
)

type bundleTuple struct {
	ContractAddress common.Address
	TokenIds        []*big.Int
}

type revenueSplitTuple struct {
	Account common.Address
	Value   *big.Int
}

type orderDataTuple struct {
	RevenueSplits []revenueSplitTuple
}

// EncodeAssetClass returns the first 4 bytes of keccak256(name) as a hex
// selector, or the 0xffffffff sentinel for an empty name.
func EncodeAssetClass(name string) string {
	if name == "" {
		return EmptyClassSelector
	}
	sel := crypto.Keccak256([]byte(name))[:4]
	return "0x" + hex.EncodeToString(sel)
}

// ClassSelector returns the selector as a fixed 4-byte array.
func ClassSelector(name string) [4]byte {
	var out [4]byte
	raw, _ := hex.DecodeString(strings.TrimPrefix(EncodeAssetClass(name), "0x"))
	copy(out[:], raw)
	return out
}

// EncodeAssetType ABI-encodes the asset type's payload: (address,uint256)
// with a token id, (address) with only a contract, empty bytes otherwise.
// Bundles encode as an array of (address, uint256[]) tuples.
func EncodeAssetType(t AssetType) ([]byte, error) {
	switch {
	case t.Class == ClassERC721Bundle:
		if len(t.Contracts) != len(t.TokenIDs) {
			return nil, Validationf("tokenIds", "want one id list per contract, got %d lists for %d contracts", len(t.TokenIDs), len(t.Contracts))
		}
		items := make([]bundleTuple, len(t.Contracts))
		for i, c := range t.Contracts {
			ids := make([]*big.Int, len(t.TokenIDs[i]))
			for j, raw := range t.TokenIDs[i] {
				id, ok := new(big.Int).SetString(raw, 10)
				if !ok {
					return nil, Validationf("tokenIds", "not a decimal integer: %q", raw)
				}
				ids[j] = id
			}
			items[i] = bundleTuple{ContractAddress: common.HexToAddress(c), TokenIds: ids}
		}
		return bundleArgs.Pack(items)
	case t.TokenID != "":
		id, ok := new(big.Int).SetString(t.TokenID, 10)
		if !ok {
			return nil, Validationf("tokenId", "not a decimal integer: %q", t.TokenID)
		}
		return singleTokenArgs.Pack(common.HexToAddress(t.Contract), id)
	case t.Contract != "":
		return contractOnlyArgs.Pack(common.HexToAddress(t.Contract))
	default:
		return []byte{}, nil
	}
}

// EncodeOrderData ABI-encodes the revenue-split instructions; absent or
// empty splits encode as empty bytes.
func EncodeOrderData(d Data) ([]byte, error) {
	if len(d.RevenueSplits) == 0 {
		return []byte{}, nil
	}
	splits := make([]revenueSplitTuple, len(d.RevenueSplits))
	for i, s := range d.RevenueSplits {
		v, ok := new(big.Int).SetString(s.Value, 10)
		if !ok {
			return nil, Validationf("revenueSplits", "not a decimal integer: %q", s.Value)
		}
		splits[i] = revenueSplitTuple{Account: common.HexToAddress(s.Account), Value: v}
	}
	return orderDataArgs.Pack(orderDataTuple{RevenueSplits: splits})
}

// HashAssetType computes the EIP-712 struct hash of an asset type.
func HashAssetType(t AssetType) (common.Hash, error) {
	data, err := EncodeAssetType(t)
	if err != nil {
		return common.Hash{}, err
	}
	packed, err := assetTypeHashArgs.Pack(assetTypeTypehash, ClassSelector(string(t.Class)), crypto.Keccak256Hash(data))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack asset type: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// HashAsset computes the EIP-712 struct hash of an asset.
func HashAsset(a Asset) (common.Hash, error) {
	th, err := HashAssetType(a.AssetType)
	if err != nil {
		return common.Hash{}, err
	}
	v := a.ValueBig()
	if v == nil {
		return common.Hash{}, Validationf("value", "not a decimal integer: %q", a.Value)
	}
	packed, err := assetHashArgs.Pack(assetTypehash, th, v)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack asset: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// HashOrderKey derives the order's public identity:
// keccak256(abi.encode(maker, hash(makeType), hash(takeType), salt)).
// Any client can re-derive it from the same tuple.
func HashOrderKey(maker string, makeType, takeType AssetType, salt int64) (string, error) {
	mh, err := HashAssetType(makeType)
	if err != nil {
		return "", err
	}
	th, err := HashAssetType(takeType)
	if err != nil {
		return "", err
	}
	packed, err := orderKeyArgs.Pack(
		common.HexToAddress(strings.ToLower(maker)),
		mh, th,
		big.NewInt(salt),
	)
	if err != nil {
		return "", fmt.Errorf("pack order key: %w", err)
	}
	return crypto.Keccak256Hash(packed).Hex(), nil
}

// EncodedAssetType is the wire form of an asset type.
type EncodedAssetType struct {
	AssetClass [4]byte
	Data       []byte
}

// EncodedAsset is the wire form of an asset.
type EncodedAsset struct {
	AssetType EncodedAssetType
	Value     *big.Int
}

// EncodedOrder is the canonical tuple the settlement contract consumes and
// the EIP-712 payload is built from.
type EncodedOrder struct {
	Maker     common.Address
	MakeAsset EncodedAsset
	Taker     common.Address
	TakeAsset EncodedAsset
	Salt      *big.Int
	Start     *big.Int
	End       *big.Int
	DataType  [4]byte
	Data      []byte
}

func encodeAsset(a Asset) (EncodedAsset, error) {
	data, err := EncodeAssetType(a.AssetType)
	if err != nil {
		return EncodedAsset{}, err
	}
	v := a.ValueBig()
	if v == nil {
		return EncodedAsset{}, Validationf("value", "not a decimal integer: %q", a.Value)
	}
	return EncodedAsset{
		AssetType: EncodedAssetType{AssetClass: ClassSelector(string(a.AssetType.Class)), Data: data},
		Value:     v,
	}, nil
}

// Encode produces the canonical struct used both for EIP-712 signing and
// for the settlement transaction payload. The maker is lowercased first.
func Encode(o *Order) (EncodedOrder, error) {
	makeAsset, err := encodeAsset(o.Make)
	if err != nil {
		return EncodedOrder{}, err
	}
	takeAsset, err := encodeAsset(o.Take)
	if err != nil {
		return EncodedOrder{}, err
	}
	data, err := EncodeOrderData(o.Data)
	if err != nil {
		return EncodedOrder{}, err
	}
	return EncodedOrder{
		Maker:     common.HexToAddress(strings.ToLower(o.Maker)),
		MakeAsset: makeAsset,
		Taker:     common.HexToAddress(strings.ToLower(o.Taker)),
		TakeAsset: takeAsset,
		Salt:      big.NewInt(o.Salt),
		Start:     big.NewInt(o.Start),
		End:       big.NewInt(o.End),
		DataType:  ClassSelector(o.Data.DataType),
		Data:      data,
	}, nil
}

// TypedData builds the EIP-712 typed-data payload for an order, matching
// what wallets sign via eth_signTypedData_v4.
func TypedData(o *Order, domain apitypes.TypedDataDomain) (apitypes.TypedData, error) {
	enc, err := Encode(o)
	if err != nil {
		return apitypes.TypedData{}, err
	}
	assetMsg := func(a EncodedAsset) map[string]interface{} {
		return map[string]interface{}{
			"assetType": map[string]interface{}{
				"assetClass": hexutil.Encode(a.AssetType.AssetClass[:]),
				"data":       hexutil.Encode(a.AssetType.Data),
			},
			"value": a.Value.String(),
		}
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"AssetType": []apitypes.Type{
				{Name: "assetClass", Type: "bytes4"},
				{Name: "data", Type: "bytes"},
			},
			"Asset": []apitypes.Type{
				{Name: "assetType", Type: "AssetType"},
				{Name: "value", Type: "uint256"},
			},
			"Order": []apitypes.Type{
				{Name: "maker", Type: "address"},
				{Name: "makeAsset", Type: "Asset"},
				{Name: "taker", Type: "address"},
				{Name: "takeAsset", Type: "Asset"},
				{Name: "salt", Type: "uint256"},
				{Name: "start", Type: "uint256"},
				{Name: "end", Type: "uint256"},
				{Name: "dataType", Type: "bytes4"},
				{Name: "data", Type: "bytes"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"maker":     enc.Maker.Hex(),
			"makeAsset": assetMsg(enc.MakeAsset),
			"taker":     enc.Taker.Hex(),
			"takeAsset": assetMsg(enc.TakeAsset),
			"salt":      enc.Salt.String(),
			"start":     enc.Start.String(),
			"end":       enc.End.String(),
			"dataType":  hexutil.Encode(enc.DataType[:]),
			"data":      hexutil.Encode(enc.Data),
		},
	}, nil
}
