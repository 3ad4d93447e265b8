package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/universexyz/marketplace-orderbook/pkg/order"
)

// UpdateResult reports what a guarded update did.
type UpdateResult int

const (
	UpdateApplied UpdateResult = iota
	UpdateSkipped              // current status not in the allowed set
	UpdateNotFound
)

// OrderStore persists order records in Pebble. Orders are never deleted;
// lifecycle transitions go through UpdateGuarded, whose expected-status
// check is serialized here so a stale in-memory read can never overwrite a
// newer state. The engine itself holds no locks.
type OrderStore struct {
	db *pebble.DB
	mu sync.Mutex // serializes guarded read-modify-write cycles
}

func NewOrderStore(path string) (*OrderStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open order store: %w", err)
	}
	return &OrderStore{db: db}, nil
}

func (s *OrderStore) Close() error { return s.db.Close() }

func (s *OrderStore) writeOrder(b *pebble.Batch, o *order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.Hash, err)
	}
	if err := b.Set(orderKey(o.Hash), data, nil); err != nil {
		return err
	}
	if err := b.Set(makerIdxKey(o.Maker, o.Hash), nil, nil); err != nil {
		return err
	}
	if t, ok := o.NFTAssetType(); ok {
		if t.Class == order.ClassERC721Bundle {
			for i, c := range t.Contracts {
				if i >= len(t.TokenIDs) {
					break
				}
				for _, id := range t.TokenIDs[i] {
					if err := b.Set(tokenIdxKey(c, id, o.Hash), nil, nil); err != nil {
						return err
					}
				}
			}
		} else {
			if err := b.Set(tokenIdxKey(t.Contract, t.TokenID, o.Hash), nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// Save persists one order with its index entries.
func (s *OrderStore) Save(o *order.Order) error {
	return s.SaveBatch([]*order.Order{o})
}

// SaveBatch persists several orders in one atomic Pebble batch. Sibling
// cascades use this so a cascade is a single write.
func (s *OrderStore) SaveBatch(orders []*order.Order) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, o := range orders {
		if err := s.writeOrder(b, o); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// SaveBatchGuarded persists only the orders whose stored status is still in
// allowed, re-checked under the store mutex, and returns the subset written.
// Sibling cascades go through this so a transition that landed between the
// cascade's read and its write is never clobbered.
func (s *OrderStore) SaveBatchGuarded(orders []*order.Order, allowed []order.Status) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	var written []*order.Order
	for _, o := range orders {
		cur, err := s.GetByHash(o.Hash)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			continue
		}
		ok := false
		for _, st := range allowed {
			if cur.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			continue
		}
		if err := s.writeOrder(b, o); err != nil {
			return nil, err
		}
		written = append(written, o)
	}
	if len(written) == 0 {
		return nil, nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	return written, nil
}

// GetByHash loads an order; nil if absent.
func (s *OrderStore) GetByHash(hash string) (*order.Order, error) {
	data, closer, err := s.db.Get(orderKey(hash))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", hash, err)
	}
	defer closer.Close()

	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order %s: %w", hash, err)
	}
	return &o, nil
}

// CountByMaker counts every order the maker has ever created; creation
// binds the next salt to this count + 1.
func (s *OrderStore) CountByMaker(maker string) (int, error) {
	prefix := makerIdxPrefix(maker)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, nil
}

// OrdersByToken loads every order whose NFT side references (contract,
// tokenID), bundles included.
func (s *OrderStore) OrdersByToken(contract, tokenID string) ([]*order.Order, error) {
	prefix := tokenIdxPrefix(contract, tokenID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*order.Order
	for iter.First(); iter.Valid(); iter.Next() {
		hash := string(iter.Key()[len(prefix):])
		o, err := s.GetByHash(hash)
		if err != nil {
			return nil, err
		}
		if o != nil {
			out = append(out, o)
		}
	}
	return out, nil
}

// ScanAll streams every order through pred and returns the matches.
// The query engine compiles its filter descriptor into pred.
func (s *OrderStore) ScanAll(pred func(*order.Order) bool) ([]*order.Order, error) {
	prefix := orderPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*order.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o order.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue // skip invalid entries
		}
		if pred == nil || pred(&o) {
			cp := o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// HasActiveByMaker reports whether the maker still has an order in any of
// the given statuses; the watchdog unsubscribe check runs on this.
func (s *OrderStore) HasActiveByMaker(maker string, statuses ...order.Status) (bool, error) {
	prefix := makerIdxPrefix(maker)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return false, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		hash := string(iter.Key()[len(prefix):])
		o, err := s.GetByHash(hash)
		if err != nil || o == nil {
			continue
		}
		for _, st := range statuses {
			if o.Status == st {
				return true, nil
			}
		}
	}
	return false, nil
}

// UpdateGuarded runs a conditional read-modify-write: mutate is applied and
// persisted only when the current status is in allowed. This is the sole
// path for lifecycle transitions.
func (s *OrderStore) UpdateGuarded(hash string, allowed []order.Status, mutate func(*order.Order) error) (*order.Order, UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.GetByHash(hash)
	if err != nil {
		return nil, UpdateNotFound, err
	}
	if o == nil {
		return nil, UpdateNotFound, nil
	}
	ok := false
	for _, st := range allowed {
		if o.Status == st {
			ok = true
			break
		}
	}
	if !ok {
		return o, UpdateSkipped, nil
	}
	if err := mutate(o); err != nil {
		return o, UpdateSkipped, err
	}
	if err := s.Save(o); err != nil {
		return o, UpdateSkipped, err
	}
	return o, UpdateApplied, nil
}

// NormalizeHash lowercases a 0x hash for comparisons against stored keys.
func NormalizeHash(hash string) string { return strings.ToLower(hash) }
