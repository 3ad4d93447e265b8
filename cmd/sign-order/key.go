package main

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

type ecdsaKey struct {
	priv    *ecdsa.PrivateKey
	address common.Address
	privHex string
}

func generateKey() (*ecdsaKey, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return wrapKey(priv), nil
}

func loadKey(hexKey string) (*ecdsaKey, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	return wrapKey(priv), nil
}

func wrapKey(priv *ecdsa.PrivateKey) *ecdsaKey {
	return &ecdsaKey{
		priv:    priv,
		address: crypto.PubkeyToAddress(priv.PublicKey),
		privHex: hexutil.Encode(crypto.FromECDSA(priv)),
	}
}
