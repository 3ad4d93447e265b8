package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/universexyz/marketplace-orderbook/pkg/eth"
	"github.com/universexyz/marketplace-orderbook/pkg/order"
	"github.com/universexyz/marketplace-orderbook/pkg/storage"
	"github.com/universexyz/marketplace-orderbook/pkg/watchdog"
)

// Engine drives the order lifecycle: creation with signature and allowance
// checks, then match/cancel/transfer events from the chain indexer. It holds
// no locks of its own; every status mutation goes through the store's
// guarded conditional update.
type Engine struct {
	store    *storage.OrderStore
	verifier eth.Verifier
	notifier watchdog.Notifier
	domain   apitypes.TypedDataDomain
	exchange common.Address
	log      *zap.SugaredLogger
	clock    func() time.Time

	// onUpdate fans lifecycle transitions out to the websocket hub.
	onUpdate func(*order.Order)
}

func New(store *storage.OrderStore, verifier eth.Verifier, notifier watchdog.Notifier, domain apitypes.TypedDataDomain, exchange common.Address, log *zap.SugaredLogger) *Engine {
	return &Engine{
		store:    store,
		verifier: verifier,
		notifier: notifier,
		domain:   domain,
		exchange: exchange,
		log:      log,
		clock:    time.Now,
	}
}

// WithClock pins request time; tests use it.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// OnUpdate registers a callback invoked after every persisted transition.
func (e *Engine) OnUpdate(fn func(*order.Order)) { e.onUpdate = fn }

func (e *Engine) emit(o *order.Order) {
	if e.onUpdate != nil {
		e.onUpdate(o)
	}
}

// GetByHash loads an order; order.ErrNotFound if absent.
func (e *Engine) GetByHash(hash string) (*order.Order, error) {
	o, err := e.store.GetByHash(hash)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, order.ErrNotFound
	}
	return o, nil
}

// CreateOrder validates and persists a maker-signed order.
func (e *Engine) CreateOrder(ctx context.Context, payload *order.Order) (*order.Order, error) {
	now := e.clock().UTC().Unix()

	o := *payload // work on a copy; the caller's payload stays untouched
	o.Maker = strings.ToLower(o.Maker)
	o.Taker = strings.ToLower(o.Taker)

	if o.Maker == "" {
		return nil, order.Validationf("maker", "required")
	}
	if o.Signature == "" {
		return nil, order.Validationf("signature", "required")
	}
	if o.Salt < 1 {
		return nil, order.Validationf("salt", "must be >= 1")
	}
	if !order.AllowedTypes[o.Type] {
		return nil, order.ErrTypeNotAllowed
	}
	if !o.Make.AssetType.Class.Valid() || !o.Take.AssetType.Class.Valid() {
		return nil, order.ErrInvalidAssetClass
	}

	// Scrub cross-talk between single and bundle descriptors before anything
	// is hashed or verified.
	scrubAssetType(&o.Make.AssetType)
	scrubAssetType(&o.Take.AssetType)

	side, err := deriveSide(&o)
	if err != nil {
		return nil, err
	}
	o.Side = side

	if side == order.SideSell {
		exists, err := e.activeSellExists(&o, now)
		if err != nil {
			return nil, fmt.Errorf("duplicate listing check: %w", err)
		}
		if exists {
			return nil, order.ErrOrderAlreadyExists
		}
	}

	count, err := e.store.CountByMaker(o.Maker)
	if err != nil {
		return nil, fmt.Errorf("count maker orders: %w", err)
	}
	if o.Salt != int64(count)+1 {
		return nil, order.ErrInvalidSalt
	}

	hash, err := order.HashOrderKey(o.Maker, o.Make.AssetType, o.Take.AssetType, o.Salt)
	if err != nil {
		return nil, err
	}
	o.Hash = hash

	if err := e.verifySignature(&o); err != nil {
		return nil, err
	}
	if err := e.verifyMakerAllowance(ctx, &o); err != nil {
		return nil, err
	}

	e.snapshotMakeStock(ctx, &o)

	o.ID = uuid.NewString()
	o.Status = order.StatusCreated
	o.Fill = "0"
	o.CreatedAt = now
	o.UpdatedAt = now

	if err := e.store.Save(&o); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	e.notifier.Subscribe(o.Maker)
	e.emit(&o)
	e.log.Infow("order_created", "hash", o.Hash, "maker", o.Maker, "side", o.Side)
	return &o, nil
}

// scrubAssetType strips bundle-only fields from single descriptors and vice
// versa, so unsigned extras can't ride along into hashing.
func scrubAssetType(t *order.AssetType) {
	if t.Class == order.ClassERC721Bundle {
		t.Contract = ""
		t.TokenID = ""
	} else {
		t.Contracts = nil
		t.TokenIDs = nil
		t.BundleName = ""
		t.BundleDescription = ""
	}
}

// deriveSide infers the order side from the make asset class. The switch is
// exhaustive: unknown classes error out instead of guessing.
func deriveSide(o *order.Order) (order.Side, error) {
	makeNFT := o.Make.AssetType.Class.IsNFT()
	takeNFT := o.Take.AssetType.Class.IsNFT()
	if makeNFT == takeNFT {
		// either no NFT side or both; neither is a tradable order
		return "", order.ErrInvalidAssetClass
	}
	switch {
	case makeNFT:
		return order.SideSell, nil
	case o.Make.AssetType.Class == order.ClassERC20:
		return order.SideBuy, nil
	case o.Make.AssetType.Class == order.ClassETH:
		// a SELL can never give up ETH, and BUY offers must be ERC20
		return "", order.ErrSellSideETH
	default:
		return "", order.ErrInvalidAssetClass
	}
}

// activeSellExists reports whether another active SELL listing covers any of
// the order's tokens with an overlapping [start, end) window.
func (e *Engine) activeSellExists(o *order.Order, now int64) (bool, error) {
	t, ok := o.NFTAssetType()
	if !ok {
		return false, nil
	}
	for _, key := range tokenPairs(t) {
		existing, err := e.store.OrdersByToken(key.contract, key.tokenID)
		if err != nil {
			return false, err
		}
		for _, ex := range existing {
			if ex.Side != order.SideSell {
				continue
			}
			if ex.Status != order.StatusCreated && ex.Status != order.StatusPartialFilled {
				continue
			}
			if windowsOverlap(ex.Start, ex.End, o.Start, o.End) {
				return true, nil
			}
		}
	}
	return false, nil
}

type tokenPair struct{ contract, tokenID string }

func tokenPairs(t order.AssetType) []tokenPair {
	if t.Class == order.ClassERC721Bundle {
		var out []tokenPair
		for i, c := range t.Contracts {
			if i >= len(t.TokenIDs) {
				break
			}
			for _, id := range t.TokenIDs[i] {
				out = append(out, tokenPair{contract: c, tokenID: id})
			}
		}
		return out
	}
	return []tokenPair{{contract: t.Contract, tokenID: t.TokenID}}
}

// windowsOverlap treats 0 as unbounded on either side.
func windowsOverlap(aStart, aEnd, bStart, bEnd int64) bool {
	startsBeforeBEnds := bEnd == 0 || aStart == 0 || aStart < bEnd
	bStartsBeforeAEnds := aEnd == 0 || bStart == 0 || bStart < aEnd
	return startsBeforeBEnds && bStartsBeforeAEnds
}

func (e *Engine) verifySignature(o *order.Order) error {
	td, err := order.TypedData(o, e.domain)
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(o.Signature)
	if err != nil {
		return order.Validationf("signature", "not valid hex: %v", err)
	}
	recovered, err := e.verifier.RecoverTypedDataSigner(td, sig)
	if err != nil {
		return order.ErrSignatureMismatch
	}
	if !strings.EqualFold(recovered.Hex(), o.Maker) {
		return order.ErrSignatureMismatch
	}
	return nil
}

func (e *Engine) verifyMakerAllowance(ctx context.Context, o *order.Order) error {
	class := o.Make.AssetType.Class
	amount := o.Make.ValueBig()
	if amount == nil {
		return order.Validationf("make.value", "not a decimal integer: %q", o.Make.Value)
	}
	var contracts []string
	var tokenIDs [][]string
	if class == order.ClassERC721Bundle {
		contracts = o.Make.AssetType.Contracts
		tokenIDs = o.Make.AssetType.TokenIDs
	} else {
		contracts = []string{o.Make.AssetType.Contract}
		tokenIDs = [][]string{{o.Make.AssetType.TokenID}}
	}
	if !e.verifier.VerifyAllowance(ctx, class, o.Maker, contracts, tokenIDs, amount) {
		return order.ErrAllowanceFailed
	}
	return nil
}

// snapshotMakeStock records the maker's holdings at creation. Advisory only;
// chain events stay authoritative, so read failures are logged and ignored.
func (e *Engine) snapshotMakeStock(ctx context.Context, o *order.Order) {
	o.MakeStock = o.Make.Value
	o.MakeBalance = o.Make.Value
	if o.Make.AssetType.Class != order.ClassERC1155 {
		return
	}
	id, ok := new(big.Int).SetString(o.Make.AssetType.TokenID, 10)
	if !ok {
		return
	}
	bal, err := e.verifier.Erc1155Balance(ctx, o.Maker, o.Make.AssetType.Contract, id)
	if err != nil {
		e.log.Warnw("erc1155_balance_read_failed", "hash", o.Hash, "err", err)
		return
	}
	o.MakeBalance = bal.String()
	o.ERC1155TokenBalance = bal.String()
	if bal.Cmp(o.Make.ValueBig()) < 0 {
		o.MakeStock = bal.String()
	}
}

// PrepareMatch assembles the unsigned settlement transaction for a taker
// accepting the order identified by hash.
func (e *Engine) PrepareMatch(ctx context.Context, hash, taker string, amount string) (*eth.TxPayload, error) {
	o, err := e.GetByHash(hash)
	if err != nil {
		return nil, err
	}
	left, err := order.Encode(o)
	if err != nil {
		return nil, err
	}
	// The right order mirrors the left with the taker as maker and the
	// assets swapped; the taker authorizes it by signing the transaction.
	mirror := *o
	mirror.Maker = strings.ToLower(taker)
	mirror.Taker = o.Maker
	mirror.Make, mirror.Take = o.Take, o.Make
	if amount != "" {
		mirror.Take.Value = amount
	}
	right, err := order.Encode(&mirror)
	if err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(o.Signature)
	if err != nil {
		return nil, order.Validationf("signature", "not valid hex: %v", err)
	}
	value := eth.CalculateTxValue(
		mirror.Make.AssetType.Class, mirror.Make.Value,
		mirror.Take.AssetType.Class, mirror.Take.Value,
	)
	return eth.PrepareMatchTx(left, sig, right, common.HexToAddress(taker), value, e.exchange)
}

// unsubscribeCheck drops the watchdog subscription once the maker has no
// live orders left. Fire-and-forget; store errors only get logged.
func (e *Engine) unsubscribeCheck(maker string) {
	active, err := e.store.HasActiveByMaker(maker, order.StatusCreated, order.StatusPartialFilled)
	if err != nil {
		e.log.Warnw("unsubscribe_check_failed", "maker", maker, "err", err)
		return
	}
	if !active {
		e.notifier.Unsubscribe(maker)
	}
}
