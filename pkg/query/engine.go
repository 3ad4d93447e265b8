package query

import (
	"context"
	"sync"
	"time"

	"github.com/universexyz/marketplace-orderbook/pkg/order"
	"github.com/universexyz/marketplace-orderbook/pkg/price"
)

// Store is the read surface the query engine needs.
type Store interface {
	ScanAll(pred func(*order.Order) bool) ([]*order.Order, error)
}

// Engine answers filtered, paginated, USD-normalized listing queries.
type Engine struct {
	store Store
	clock func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, clock: time.Now}
}

// WithClock overrides request time; tests pin it.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Query runs the filter against the store and returns one page plus the
// total match count. The page and the count come from two concurrent reads
// over the identical compiled predicate. The price snapshot is immutable
// for the whole call.
func (e *Engine) Query(ctx context.Context, f Filter, snap price.Snapshot) ([]*order.Order, int, error) {
	f = f.Normalized()
	now := e.clock().UTC().Unix() // one timestamp for every window comparison

	var offerKeys map[string]bool
	if f.HasOffers {
		keys, err := e.openBuyKeys(now)
		if err != nil {
			return nil, 0, err
		}
		offerKeys = keys
	}

	pred, err := compile(f, now, snap, offerKeys)
	if err != nil {
		return nil, 0, err
	}

	// no open BUY orders at all: nothing can intersect, skip the scans
	if f.HasOffers && len(offerKeys) == 0 {
		return []*order.Order{}, 0, nil
	}

	var (
		wg       sync.WaitGroup
		items    []*order.Order
		total    int
		itemsErr error
		countErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		matched, err := e.store.ScanAll(pred)
		if err != nil {
			itemsErr = err
			return
		}
		sortOrders(matched, f.Sort, snap)
		items = paginate(matched, f.Page, f.Limit)
	}()
	go func() {
		defer wg.Done()
		matched, err := e.store.ScanAll(pred)
		if err != nil {
			countErr = err
			return
		}
		total = len(matched)
	}()
	wg.Wait()

	if itemsErr != nil {
		return nil, 0, itemsErr
	}
	if countErr != nil {
		return nil, 0, countErr
	}
	return items, total, nil
}

// openBuyKeys collects the asset membership keys of every open BUY order.
// The hasOffers filter intersects SELL listings against this set.
func (e *Engine) openBuyKeys(now int64) (map[string]bool, error) {
	buys, err := e.store.ScanAll(func(o *order.Order) bool {
		if o.Side != order.SideBuy || !o.ActiveAt(now) {
			return false
		}
		return o.Status == order.StatusCreated || o.Status == order.StatusPartialFilled
	})
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool)
	for _, o := range buys {
		for _, k := range assetKeys(o) {
			keys[k] = true
		}
	}
	return keys, nil
}

func paginate(orders []*order.Order, page, limit int) []*order.Order {
	start := (page - 1) * limit
	if start >= len(orders) {
		return []*order.Order{}
	}
	end := start + limit
	if end > len(orders) {
		end = len(orders)
	}
	return orders[start:end]
}
