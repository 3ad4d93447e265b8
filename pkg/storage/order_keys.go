package storage

import (
	"fmt"
	"strings"
)

// Order key schema for Pebble storage:
//
//	o:<hash>                          → Order (JSON)
//	idx:mk:<maker>:<hash>             → nil   (per-maker membership, salt counting)
//	idx:tok:<contract>:<tokenId>:<hash> → nil (NFT asset membership, one per
//	                                          bundle entry)
//
// Hashes and addresses are lowercased so keys are case-insensitive.

const (
	prefixOrder    = "o:"
	prefixMakerIdx = "idx:mk:"
	prefixTokenIdx = "idx:tok:"
)

func orderKey(hash string) []byte {
	return []byte(prefixOrder + strings.ToLower(hash))
}

func makerIdxKey(maker, hash string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixMakerIdx, strings.ToLower(maker), strings.ToLower(hash)))
}

func makerIdxPrefix(maker string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixMakerIdx, strings.ToLower(maker)))
}

func tokenIdxKey(contract, tokenID, hash string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixTokenIdx, strings.ToLower(contract), tokenID, strings.ToLower(hash)))
}

func tokenIdxPrefix(contract, tokenID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixTokenIdx, strings.ToLower(contract), tokenID))
}

func orderPrefix() []byte {
	return []byte(prefixOrder)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
