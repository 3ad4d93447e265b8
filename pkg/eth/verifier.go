package eth

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"github.com/universexyz/marketplace-orderbook/pkg/order"
)

// Verifier is the on-chain collaborator the lifecycle engine consults:
// signature recovery, ownership/allowance checks and balance snapshots.
type Verifier interface {
	// VerifyAllowance reports whether wallet still owns and has approved the
	// exchange for the given assets. RPC failures degrade to false.
	VerifyAllowance(ctx context.Context, class order.AssetClass, wallet string, contracts []string, tokenIDs [][]string, amount *big.Int) bool

	// RecoverTypedDataSigner recovers the address that signed the EIP-712
	// payload.
	RecoverTypedDataSigner(td apitypes.TypedData, signature []byte) (common.Address, error)

	// Erc1155Balance reads the wallet's edition balance for a token.
	Erc1155Balance(ctx context.Context, wallet, contract string, tokenID *big.Int) (*big.Int, error)
}

// TxPayload is an unsigned settlement transaction for the taker to sign.
type TxPayload struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *big.Int       `json:"value"`
}

// caller is the slice of ethclient.Client the verifier needs; narrowed for
// tests.
type caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client implements Verifier against a JSON-RPC backend.
type Client struct {
	backend  caller
	exchange common.Address // settlement contract; the operator approvals point here
	log      *zap.SugaredLogger
}

// Dial connects to the RPC endpoint and returns a verifier bound to the
// settlement contract address.
func Dial(rpcURL string, exchange common.Address, log *zap.SugaredLogger) (*Client, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &Client{backend: ec, exchange: exchange, log: log}, nil
}

// NewClient wraps an existing backend; used by tests with a fake caller.
func NewClient(backend caller, exchange common.Address, log *zap.SugaredLogger) *Client {
	return &Client{backend: backend, exchange: exchange, log: log}
}

func (c *Client) call(ctx context.Context, contract common.Address, parsed *callSpec) ([]interface{}, error) {
	input, err := parsed.abi.Pack(parsed.method, parsed.args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", parsed.method, err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", parsed.method, err)
	}
	return parsed.abi.Unpack(parsed.method, out)
}

type callSpec struct {
	abi    abi.ABI
	method string
	args   []interface{}
}

// VerifyAllowance branches per asset class:
//
//	ERC721 / bundle: isApprovedForAll, else per-token getApproved, plus ownerOf
//	ERC20:           allowance + balanceOf
//	ERC1155:         isApprovedForAll + balanceOf
//
// Any RPC failure is logged and treated as a failed check, never an error.
func (c *Client) VerifyAllowance(ctx context.Context, class order.AssetClass, wallet string, contracts []string, tokenIDs [][]string, amount *big.Int) bool {
	owner := common.HexToAddress(wallet)
	switch class {
	case order.ClassERC721, order.ClassERC721Bundle:
		for i, contract := range contracts {
			addr := common.HexToAddress(contract)
			approvedAll, err := c.isApprovedForAll(ctx, erc721ABI, addr, owner)
			if err != nil {
				c.log.Warnw("allowance_check_failed", "contract", contract, "err", err)
				return false
			}
			if i >= len(tokenIDs) {
				return false
			}
			for _, raw := range tokenIDs[i] {
				id, ok := new(big.Int).SetString(raw, 10)
				if !ok {
					return false
				}
				if !approvedAll {
					out, err := c.call(ctx, addr, &callSpec{abi: erc721ABI, method: "getApproved", args: []interface{}{id}})
					if err != nil {
						c.log.Warnw("allowance_check_failed", "contract", contract, "err", err)
						return false
					}
					if out[0].(common.Address) != c.exchange {
						return false
					}
				}
				out, err := c.call(ctx, addr, &callSpec{abi: erc721ABI, method: "ownerOf", args: []interface{}{id}})
				if err != nil {
					c.log.Warnw("allowance_check_failed", "contract", contract, "err", err)
					return false
				}
				if out[0].(common.Address) != owner {
					return false
				}
			}
		}
		return true

	case order.ClassERC20:
		if len(contracts) == 0 {
			return false
		}
		addr := common.HexToAddress(contracts[0])
		out, err := c.call(ctx, addr, &callSpec{abi: erc20ABI, method: "allowance", args: []interface{}{owner, c.exchange}})
		if err != nil {
			c.log.Warnw("allowance_check_failed", "contract", contracts[0], "err", err)
			return false
		}
		if out[0].(*big.Int).Cmp(amount) < 0 {
			return false
		}
		out, err = c.call(ctx, addr, &callSpec{abi: erc20ABI, method: "balanceOf", args: []interface{}{owner}})
		if err != nil {
			c.log.Warnw("allowance_check_failed", "contract", contracts[0], "err", err)
			return false
		}
		return out[0].(*big.Int).Cmp(amount) >= 0

	case order.ClassERC1155:
		if len(contracts) == 0 || len(tokenIDs) == 0 || len(tokenIDs[0]) == 0 {
			return false
		}
		addr := common.HexToAddress(contracts[0])
		approvedAll, err := c.isApprovedForAll(ctx, erc1155ABI, addr, owner)
		if err != nil {
			c.log.Warnw("allowance_check_failed", "contract", contracts[0], "err", err)
			return false
		}
		if !approvedAll {
			return false
		}
		id, ok := new(big.Int).SetString(tokenIDs[0][0], 10)
		if !ok {
			return false
		}
		bal, err := c.Erc1155Balance(ctx, wallet, contracts[0], id)
		if err != nil {
			c.log.Warnw("allowance_check_failed", "contract", contracts[0], "err", err)
			return false
		}
		return bal.Cmp(amount) >= 0
	}
	return false
}

func (c *Client) isApprovedForAll(ctx context.Context, tokenABI abi.ABI, contract, owner common.Address) (bool, error) {
	out, err := c.call(ctx, contract, &callSpec{abi: tokenABI, method: "isApprovedForAll", args: []interface{}{owner, c.exchange}})
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// Erc1155Balance reads balanceOf(wallet, id) on an ERC1155 contract.
func (c *Client) Erc1155Balance(ctx context.Context, wallet, contract string, tokenID *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, common.HexToAddress(contract), &callSpec{
		abi: erc1155ABI, method: "balanceOf",
		args: []interface{}{common.HexToAddress(wallet), tokenID},
	})
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// RecoverTypedDataSigner recovers the signer of an EIP-712 payload.
// Accepts wallet-style V values (27/28) as well as raw recovery ids.
func (c *Client) RecoverTypedDataSigner(td apitypes.TypedData, signature []byte) (common.Address, error) {
	return RecoverTypedDataSigner(td, signature)
}

// RecoverTypedDataSigner is the package-level recovery used by both the
// client and the sign-order CLI.
func RecoverTypedDataSigner(td apitypes.TypedData, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	digest, err := SigningDigest(td)
	if err != nil {
		return common.Address{}, err
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.Ecrecover(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	pubKey, err := crypto.UnmarshalPubkey(pub)
	if err != nil {
		return common.Address{}, fmt.Errorf("unmarshal public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// SigningDigest computes keccak256("\x19\x01" || domainSeparator || structHash).
func SigningDigest(td apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}
	raw := append(append([]byte("\x19\x01"), domainSeparator...), structHash...)
	return crypto.Keccak256(raw), nil
}

// Domain builds the EIP-712 domain the wallets sign against.
func Domain(name, version string, chainID int64, verifying common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              name,
		Version:           version,
		ChainId:           (*math.HexOrDecimal256)(big.NewInt(chainID)),
		VerifyingContract: verifying.Hex(),
	}
}

// CalculateTxValue returns the native currency the settlement tx must carry:
// non-zero only when one side's asset class is ETH.
func CalculateTxValue(makeClass order.AssetClass, makeAmount string, takeClass order.AssetClass, takeAmount string) *big.Int {
	parse := func(s string) *big.Int {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return big.NewInt(0)
		}
		return v
	}
	if makeClass == order.ClassETH {
		return parse(makeAmount)
	}
	if takeClass == order.ClassETH {
		return parse(takeAmount)
	}
	return big.NewInt(0)
}

// PrepareMatchTx assembles the unsigned matchOrders call for the taker.
// The right order mirrors the left with maker/taker swapped; its signature
// slot stays empty because the taker signs the transaction itself.
func PrepareMatchTx(left order.EncodedOrder, leftSig []byte, right order.EncodedOrder, from common.Address, value *big.Int, exchange common.Address) (*TxPayload, error) {
	data, err := exchangeABI.Pack("matchOrders", left, leftSig, right, []byte{})
	if err != nil {
		return nil, fmt.Errorf("pack matchOrders: %w", err)
	}
	return &TxPayload{From: from, To: exchange, Data: data, Value: value}, nil
}
