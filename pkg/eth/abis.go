package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal read surfaces of the token standards plus the settlement
// contract's matchOrders entrypoint. Only what the verifier calls.

const erc20ABIJSON = `[
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc721ABIJSON = `[
	{"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"getApproved","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}
]`

const erc1155ABIJSON = `[
	{"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const exchangeABIJSON = `[
	{"name":"matchOrders","type":"function","stateMutability":"payable","inputs":[
		{"name":"orderLeft","type":"tuple","components":[
			{"name":"maker","type":"address"},
			{"name":"makeAsset","type":"tuple","components":[
				{"name":"assetType","type":"tuple","components":[
					{"name":"assetClass","type":"bytes4"},
					{"name":"data","type":"bytes"}]},
				{"name":"value","type":"uint256"}]},
			{"name":"taker","type":"address"},
			{"name":"takeAsset","type":"tuple","components":[
				{"name":"assetType","type":"tuple","components":[
					{"name":"assetClass","type":"bytes4"},
					{"name":"data","type":"bytes"}]},
				{"name":"value","type":"uint256"}]},
			{"name":"salt","type":"uint256"},
			{"name":"start","type":"uint256"},
			{"name":"end","type":"uint256"},
			{"name":"dataType","type":"bytes4"},
			{"name":"data","type":"bytes"}]},
		{"name":"signatureLeft","type":"bytes"},
		{"name":"orderRight","type":"tuple","components":[
			{"name":"maker","type":"address"},
			{"name":"makeAsset","type":"tuple","components":[
				{"name":"assetType","type":"tuple","components":[
					{"name":"assetClass","type":"bytes4"},
					{"name":"data","type":"bytes"}]},
				{"name":"value","type":"uint256"}]},
			{"name":"taker","type":"address"},
			{"name":"takeAsset","type":"tuple","components":[
				{"name":"assetType","type":"tuple","components":[
					{"name":"assetClass","type":"bytes4"},
					{"name":"data","type":"bytes"}]},
				{"name":"value","type":"uint256"}]},
			{"name":"salt","type":"uint256"},
			{"name":"start","type":"uint256"},
			{"name":"end","type":"uint256"},
			{"name":"dataType","type":"bytes4"},
			{"name":"data","type":"bytes"}]},
		{"name":"signatureRight","type":"bytes"}],
	"outputs":[]}
]`

func mustABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Errorf("parse %s abi: %w", name, err))
	}
	return parsed
}

var (
	erc20ABI    = mustABI("erc20", erc20ABIJSON)
	erc721ABI   = mustABI("erc721", erc721ABIJSON)
	erc1155ABI  = mustABI("erc1155", erc1155ABIJSON)
	exchangeABI = mustABI("exchange", exchangeABIJSON)
)
