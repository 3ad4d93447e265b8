package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/universexyz/marketplace-orderbook/pkg/eth"
	"github.com/universexyz/marketplace-orderbook/pkg/order"
	"github.com/universexyz/marketplace-orderbook/pkg/util"
)

// sign-order builds a sample listing, signs it with a throwaway key and
// prints the JSON body ready for POST /v1/orders. Handy for local testing
// without a wallet.
func main() {
	var (
		privHex  = flag.String("key", "", "hex private key; generates a fresh one when empty")
		chainID  = flag.Int64("chain-id", 1, "EIP-712 domain chain id")
		exchange = flag.String("exchange", "0x0000000000000000000000000000000000000000", "settlement contract address")
		contract = flag.String("contract", "0x1111111111111111111111111111111111111111", "NFT contract for the sample listing")
		tokenID  = flag.String("token-id", "1", "NFT token id")
		price    = flag.String("price", "1000000000000000000", "asking price in wei")
		salt     = flag.Int64("salt", 1, "order salt")
	)
	flag.Parse()

	// Step 1: generate or load key
	var key *ecdsaKey
	var err error
	if *privHex == "" {
		fmt.Println("Generating new keypair...")
		key, err = generateKey()
	} else {
		key, err = loadKey(*privHex)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	maker := util.EIP55(key.address.Bytes())
	fmt.Printf("Address: %s\n", maker)
	fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", key.privHex)

	// Step 2: build the order
	o := &order.Order{
		Type:  "UNIVERSE_V1",
		Maker: strings.ToLower(maker),
		Make: order.Asset{
			AssetType: order.AssetType{Class: order.ClassERC721, Contract: *contract, TokenID: *tokenID},
			Value:     "1",
		},
		Take: order.Asset{
			AssetType: order.AssetType{Class: order.ClassETH},
			Value:     *price,
		},
		Salt: *salt,
		Data: order.Data{DataType: "ORDER_DATA"},
	}

	hash, err := order.HashOrderKey(o.Maker, o.Make.AssetType, o.Take.AssetType, o.Salt)
	if err != nil {
		fmt.Printf("Error hashing order: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Order Details:")
	fmt.Printf("  Hash: %s\n", hash)
	fmt.Printf("  Make: %s %s #%s\n", o.Make.AssetType.Class, o.Make.AssetType.Contract, o.Make.AssetType.TokenID)
	fmt.Printf("  Take: %s wei ETH\n", o.Take.Value)
	fmt.Printf("  Salt: %d\n\n", o.Salt)

	// Step 3: sign with EIP-712
	domain := eth.Domain("Exchange", "2", *chainID, common.HexToAddress(*exchange))
	td, err := order.TypedData(o, domain)
	if err != nil {
		fmt.Printf("Error building typed data: %v\n", err)
		os.Exit(1)
	}
	digest, err := eth.SigningDigest(td)
	if err != nil {
		fmt.Printf("Error computing digest: %v\n", err)
		os.Exit(1)
	}
	sig, err := crypto.Sign(digest, key.priv)
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	sig[64] += 27 // wallet-style V
	o.Signature = hexutil.Encode(sig)

	fmt.Printf("Signature: %s\n\n", o.Signature)

	// Step 4: verify recovery round-trips
	fmt.Println("Verifying signature...")
	recovered, err := eth.RecoverTypedDataSigner(td, sig)
	if err != nil {
		fmt.Printf("Error verifying: %v\n", err)
		os.Exit(1)
	}
	if !strings.EqualFold(recovered.Hex(), o.Maker) {
		fmt.Printf("✗ Signature INVALID (recovered %s)\n", recovered.Hex())
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")
	fmt.Printf("  Signer: %s\n\n", recovered.Hex())

	// Step 5: print the submit payload
	body, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("To submit this order:")
	fmt.Println("  POST http://localhost:8080/v1/orders")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Body:")
	fmt.Println(string(body))
}
