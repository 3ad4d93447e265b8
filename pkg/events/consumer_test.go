package events

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"github.com/universexyz/marketplace-orderbook/pkg/engine"
	"github.com/universexyz/marketplace-orderbook/pkg/eth"
	"github.com/universexyz/marketplace-orderbook/pkg/order"
	"github.com/universexyz/marketplace-orderbook/pkg/storage"
	"github.com/universexyz/marketplace-orderbook/pkg/watchdog"
)

type stubVerifier struct{}

func (stubVerifier) VerifyAllowance(context.Context, order.AssetClass, string, []string, [][]string, *big.Int) bool {
	return true
}
func (stubVerifier) RecoverTypedDataSigner(apitypes.TypedData, []byte) (common.Address, error) {
	return common.Address{}, nil
}
func (stubVerifier) Erc1155Balance(context.Context, string, string, *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func newTestConsumer(t *testing.T) (*Consumer, *storage.OrderStore) {
	t.Helper()
	store, err := storage.NewOrderStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eng := engine.New(store, stubVerifier{}, watchdog.Noop{},
		eth.Domain("Exchange", "2", 1, common.Address{}), common.Address{}, zap.NewNop().Sugar())
	return &Consumer{engine: eng, log: zap.NewNop().Sugar()}, store
}

func TestHandleMatchEnvelope(t *testing.T) {
	c, store := newTestConsumer(t)
	o := &order.Order{
		ID: "id1", Hash: "0xaa01", Maker: "0xmaker", Side: order.SideSell,
		Status: order.StatusCreated, Fill: "0",
		Make: order.Asset{
			AssetType: order.AssetType{Class: order.ClassERC721, Contract: "0xc0ffee", TokenID: "1"},
			Value:     "1",
		},
		Take: order.Asset{AssetType: order.AssetType{Class: order.ClassETH}, Value: "1"},
	}
	if err := store.Save(o); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c.handle([]byte(`{"type":"match","matches":[{"txHash":"0xt1","leftOrderHash":"0xaa01","leftMaker":"0xmaker","rightMaker":"0xtaker","newRightFill":"1"}]}`))

	got, _ := store.GetByHash("0xaa01")
	if got.Status != order.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}
}

func TestHandleCancelEnvelope(t *testing.T) {
	c, store := newTestConsumer(t)
	o := &order.Order{
		ID: "id1", Hash: "0xaa01", Maker: "0xmaker", Side: order.SideSell,
		Status: order.StatusCreated,
		Make: order.Asset{
			AssetType: order.AssetType{Class: order.ClassERC721, Contract: "0xc0ffee", TokenID: "1"},
			Value:     "1",
		},
		Take: order.Asset{AssetType: order.AssetType{Class: order.ClassETH}, Value: "1"},
	}
	if err := store.Save(o); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c.handle([]byte(`{"type":"cancel","cancels":[{"txHash":"0xc1","leftOrderHash":"0xaa01"}]}`))

	got, _ := store.GetByHash("0xaa01")
	if got.Status != order.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
}

func TestHandleBadMessages(t *testing.T) {
	c, _ := newTestConsumer(t)
	// none of these may panic
	c.handle([]byte(`not json`))
	c.handle([]byte(`{"type":"unknown"}`))
	c.handle([]byte(`{"type":"transfer"}`)) // transfer with no payload
}
