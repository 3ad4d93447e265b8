package engine

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/universexyz/marketplace-orderbook/pkg/order"
	"github.com/universexyz/marketplace-orderbook/pkg/storage"
)

// matchable statuses; FILLED and CANCELLED never transition on a match.
var matchableStatuses = []order.Status{
	order.StatusCreated,
	order.StatusPartialFilled,
	order.StatusStale,
}

// MatchOrders applies a batch of settlement match events. Events are
// processed independently; one failure never aborts its siblings. The
// returned map carries one outcome per txHash: "success", "not found" or
// "error: <message>". Re-delivered events are no-ops thanks to the
// matchedTxHash ledger.
func (e *Engine) MatchOrders(events []order.MatchEvent) map[string]string {
	now := e.clock().UTC().Unix()
	outcomes := make(map[string]string, len(events))
	for _, ev := range events {
		outcomes[ev.TxHash] = e.applyMatch(ev, now)
	}
	return outcomes
}

func (e *Engine) applyMatch(ev order.MatchEvent, now int64) string {
	o, err := e.store.GetByHash(ev.LeftOrderHash)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	if o == nil {
		e.log.Warnw("match_order_not_found", "hash", ev.LeftOrderHash, "tx", ev.TxHash)
		return order.OutcomeNotFound
	}

	outcome := order.OutcomeSuccess
	switch {
	case o.Status == order.StatusFilled, o.HasMatchedTx(ev.TxHash):
		// duplicate delivery; the first application already advanced state

	default:
		amount := fillAmount(o, ev)
		updated, result, err := e.store.UpdateGuarded(o.Hash, matchableStatuses, func(cur *order.Order) error {
			if cur.HasMatchedTx(ev.TxHash) {
				return nil
			}
			applyFill(cur, amount)
			cur.AppendMatchedTx(ev.TxHash, ledgerAmount(cur, amount))
			cur.Taker = inferTaker(cur, ev)
			cur.UpdatedAt = now
			return nil
		})
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		if result == storage.UpdateApplied {
			o = updated
			e.emit(o)
			e.log.Infow("order_matched", "hash", o.Hash, "tx", ev.TxHash, "status", o.Status, "fill", o.Fill)
		}
	}

	e.unsubscribeCheck(o.Maker)

	// Cascade runs independently of the order's own outcome; its failures
	// are recorded here but never abort the batch.
	if err := e.cascadeSiblings(o, fillAmount(o, ev), ev.TxHash, now); err != nil {
		e.log.Errorw("sibling_cascade_failed", "hash", o.Hash, "tx", ev.TxHash, "err", err)
		return fmt.Sprintf("error: %v", err)
	}
	return outcome
}

// fillAmount picks the event-side fill that runs against this order: the
// right fill for SELL orders, the left fill for BUY orders. Non-ERC1155
// assets always consume in one unit.
func fillAmount(o *order.Order, ev order.MatchEvent) *big.Int {
	if !o.IsERC1155() {
		return big.NewInt(1)
	}
	raw := ev.NewRightFill
	if o.Side == order.SideBuy {
		raw = ev.NewLeftFill
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return big.NewInt(1)
	}
	return v
}

// applyFill advances the fill counter. Partial fills exist only for ERC1155
// editions: the order stays open while cumulative fill is short of the total
// value, otherwise it fills completely and the counter resets.
func applyFill(o *order.Order, amount *big.Int) {
	total := o.FillableValue()
	newFill := new(big.Int).Add(o.FillBig(), amount)
	if o.IsERC1155() && total != nil && newFill.Cmp(total) < 0 {
		o.Status = order.StatusPartialFilled
		o.Fill = newFill.String()
		return
	}
	o.Status = order.StatusFilled
	o.Fill = "0"
}

func ledgerAmount(o *order.Order, amount *big.Int) string {
	if !o.IsERC1155() {
		return "1"
	}
	return amount.String()
}

// inferTaker picks whichever event counterpart is not this order's maker.
func inferTaker(o *order.Order, ev order.MatchEvent) string {
	if strings.EqualFold(ev.LeftMaker, o.Maker) {
		return strings.ToLower(ev.RightMaker)
	}
	return strings.ToLower(ev.LeftMaker)
}

// cascadeSiblings invalidates the maker's other SELL listings for the same
// asset: ERC1155 siblings with stock remaining after this fill advance to
// PARTIALFILLED, everything else goes STALE. One guarded batched write per
// cascade: each sibling's status is re-checked at the store layer, so a
// cancel landing between the sibling read and the write survives. Not
// transactional with the triggering update, and safe to re-run.
func (e *Engine) cascadeSiblings(o *order.Order, amount *big.Int, txHash string, now int64) error {
	t, ok := o.NFTAssetType()
	if !ok {
		return nil
	}
	seen := map[string]bool{strings.ToLower(o.Hash): true}
	var mutated []*order.Order
	for _, pair := range tokenPairs(t) {
		siblings, err := e.store.OrdersByToken(pair.contract, pair.tokenID)
		if err != nil {
			return fmt.Errorf("load siblings: %w", err)
		}
		for _, sib := range siblings {
			key := strings.ToLower(sib.Hash)
			if seen[key] {
				continue
			}
			seen[key] = true
			if sib.Side != order.SideSell || !strings.EqualFold(sib.Maker, o.Maker) {
				continue
			}
			if sib.Status != order.StatusCreated && sib.Status != order.StatusPartialFilled {
				continue
			}
			if sib.HasMatchedTx(txHash) {
				continue
			}
			if sib.IsERC1155() {
				total := sib.FillableValue()
				newFill := new(big.Int).Add(sib.FillBig(), amount)
				if total != nil && newFill.Cmp(total) < 0 {
					sib.Status = order.StatusPartialFilled
					sib.Fill = newFill.String()
					sib.AppendMatchedTx(txHash, amount.String())
					sib.UpdatedAt = now
					mutated = append(mutated, sib)
					continue
				}
			}
			sib.Status = order.StatusStale
			sib.UpdatedAt = now
			mutated = append(mutated, sib)
		}
	}
	if len(mutated) == 0 {
		return nil
	}
	written, err := e.store.SaveBatchGuarded(mutated, []order.Status{order.StatusCreated, order.StatusPartialFilled})
	if err != nil {
		return fmt.Errorf("persist cascade: %w", err)
	}
	for _, sib := range written {
		e.emit(sib)
	}
	if len(written) > 0 {
		e.log.Infow("siblings_cascaded", "hash", o.Hash, "count", len(written))
	}
	return nil
}
