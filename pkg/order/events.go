package order

// MatchEvent is posted by the chain indexer when the settlement contract
// emits a Match. The left order hash is the book-side identity; fills are
// decimal strings in base units.
type MatchEvent struct {
	TxHash         string `json:"txHash"`
	LeftOrderHash  string `json:"leftOrderHash"`
	RightOrderHash string `json:"rightOrderHash,omitempty"`
	LeftMaker      string `json:"leftMaker"`
	RightMaker     string `json:"rightMaker"`
	NewLeftFill    string `json:"newLeftFill"`
	NewRightFill   string `json:"newRightFill"`
}

// CancelEvent is posted when the settlement contract emits a Cancel.
type CancelEvent struct {
	TxHash        string `json:"txHash"`
	LeftOrderHash string `json:"leftOrderHash"`
}

// TransferEvent is posted when a watched NFT moves outside the exchange;
// it invalidates the owner's listing without a match or cancel.
type TransferEvent struct {
	ContractAddress string `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
	From            string `json:"fromAddress"`
	To              string `json:"toAddress"`
	ERC721          bool   `json:"erc721"`
}

// Batch outcome labels for match/cancel processing.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not found"
)
