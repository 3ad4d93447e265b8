package engine

import (
	"fmt"
	"strings"

	"github.com/universexyz/marketplace-orderbook/pkg/order"
	"github.com/universexyz/marketplace-orderbook/pkg/storage"
)

// cancellable statuses: a FILLED or PARTIALFILLED order has already traded
// and can never regress to CANCELLED. CANCELLED stays in the set so a
// duplicate cancel event is a clean no-op.
var cancellableStatuses = []order.Status{
	order.StatusCreated,
	order.StatusStale,
	order.StatusCancelled,
}

// CancelOrders applies a batch of on-chain cancel events, one outcome per
// txHash.
func (e *Engine) CancelOrders(events []order.CancelEvent) map[string]string {
	now := e.clock().UTC().Unix()
	outcomes := make(map[string]string, len(events))
	for _, ev := range events {
		outcomes[ev.TxHash] = e.applyCancel(ev, now)
	}
	return outcomes
}

func (e *Engine) applyCancel(ev order.CancelEvent, now int64) string {
	updated, result, err := e.store.UpdateGuarded(ev.LeftOrderHash, cancellableStatuses, func(cur *order.Order) error {
		cur.Status = order.StatusCancelled
		cur.CancelledTxHash = ev.TxHash
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	if result == storage.UpdateNotFound {
		e.log.Warnw("cancel_order_not_found", "hash", ev.LeftOrderHash, "tx", ev.TxHash)
		return order.OutcomeNotFound
	}
	if result == storage.UpdateApplied {
		e.emit(updated)
		e.log.Infow("order_cancelled", "hash", updated.Hash, "tx", ev.TxHash)
	}
	// the unsubscribe check runs whether or not the guard let the write through
	e.unsubscribeCheck(updated.Maker)
	return order.OutcomeSuccess
}

// stalable statuses; FILLED stays untouched by transfers.
var stalableStatuses = []order.Status{
	order.StatusCreated,
	order.StatusPartialFilled,
	order.StatusStale,
}

func statusIn(st order.Status, set []order.Status) bool {
	for _, s := range set {
		if st == s {
			return true
		}
	}
	return false
}

// StaleOrder invalidates the seller's active listing when the listed token
// leaves their wallet without a match or cancel. Silent no-op when no such
// listing exists.
func (e *Engine) StaleOrder(ev order.TransferEvent) error {
	now := e.clock().UTC().Unix()
	candidates, err := e.store.OrdersByToken(ev.ContractAddress, ev.TokenID)
	if err != nil {
		return fmt.Errorf("load orders for token: %w", err)
	}
	for _, o := range candidates {
		if o.Side != order.SideSell || !strings.EqualFold(o.Maker, ev.From) {
			continue
		}
		// terminal records for the same token (a cancelled re-list, an old
		// fill) are not the active listing; keep looking
		if !statusIn(o.Status, stalableStatuses) || !o.ActiveAt(now) {
			continue
		}
		updated, result, err := e.store.UpdateGuarded(o.Hash, stalableStatuses, func(cur *order.Order) error {
			cur.Status = order.StatusStale
			cur.UpdatedAt = now
			return nil
		})
		if err != nil {
			return err
		}
		if result == storage.UpdateApplied {
			e.emit(updated)
			e.log.Infow("order_staled", "hash", updated.Hash, "from", ev.From, "token", ev.TokenID)
		}
		e.unsubscribeCheck(o.Maker)
		// the active listing for a (contract, token, maker) tuple is unique
		return nil
	}
	return nil
}
