package orderbook

import (
	"sort"
	"sync"
)

// Handle is a stable arena address for an order inside one book. The
// ordered entry list and the exchange-id index both store handles rather
// than order pointers, so a sweep can unlink an order from both structures
// without leaving a dangling reference for concurrent readers.
type Handle uint64

type entry struct {
	priority OrderPriority
	handle   Handle
}

// Book is one side of the market: an arena of orders, a priority-ordered
// entry list and an exchange-id index. A live order is present in both the
// list and the index or in neither; insert and sweep update the two under
// both write locks.
type Book struct {
	side Side

	// Lock order: indexMu before listMu. Insert and sweep hold both
	// exclusively; lookups and traversal take the relevant one shared.
	// Arena writes happen only under both, so holding either one shared
	// is enough to read it.
	indexMu sync.RWMutex
	listMu  sync.RWMutex

	byID    map[uint64]Handle
	arena   map[Handle]*Order
	entries []entry

	nextHandle Handle
	arrival    uint64
}

func NewBook(side Side) *Book {
	return &Book{
		side:  side,
		byID:  make(map[uint64]Handle),
		arena: make(map[Handle]*Order),
	}
}

func (b *Book) Side() Side {
	return b.side
}

// Add inserts the order into the id index and the ordered list atomically.
// An exchange id already present anywhere in the book rejects the insert.
func (b *Book) Add(o *Order) (Handle, error) {
	if o.Side() != b.side {
		return 0, errWrongSide
	}

	b.indexMu.Lock()
	defer b.indexMu.Unlock()
	b.listMu.Lock()
	defer b.listMu.Unlock()

	if _, ok := b.byID[o.ExchangeID()]; ok {
		return 0, errDuplicateOrder
	}

	b.arrival++
	priority := newPriority(o, b.arrival)
	h := b.nextHandle
	b.nextHandle++

	i := sort.Search(len(b.entries), func(i int) bool {
		return priority.Before(b.entries[i].priority)
	})
	b.entries = append(b.entries, entry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = entry{priority: priority, handle: h}

	b.arena[h] = o
	b.byID[o.ExchangeID()] = h

	return h, nil
}

// Cancel tombstones a live order. The order stays linked until the next
// sweep; settlement's post-lock tombstone check keeps it out of any trade
// in the meantime. An unknown id or an already exhausted order rejects.
func (b *Book) Cancel(exchangeID uint64) error {
	b.indexMu.RLock()
	h, ok := b.byID[exchangeID]
	var o *Order
	if ok {
		o = b.arena[h]
	}
	b.indexMu.RUnlock()

	if o == nil {
		return errOrderNotFound
	}

	o.MarkForDeletion()
	if o.Quantity() == 0 {
		return errOrderFinished
	}
	return nil
}

// Sweep unlinks every tombstoned or exhausted order from the list, the
// index and the arena in one exclusive section. Returns how many orders
// were purged.
func (b *Book) Sweep() int {
	b.indexMu.Lock()
	defer b.indexMu.Unlock()
	b.listMu.Lock()
	defer b.listMu.Unlock()

	removed := 0
	kept := b.entries[:0]
	for _, e := range b.entries {
		o := b.arena[e.handle]
		if o.Tombstoned() || o.Quantity() == 0 {
			delete(b.byID, o.ExchangeID())
			delete(b.arena, e.handle)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	return removed
}

// Ascend calls fn for each order in priority order, best candidate first,
// under the shared list lock, until fn returns false.
func (b *Book) Ascend(fn func(*Order) bool) {
	b.listMu.RLock()
	defer b.listMu.RUnlock()

	for _, e := range b.entries {
		if !fn(b.arena[e.handle]) {
			return
		}
	}
}

// LimitEndpoints returns the best and worst live limit orders on this side.
// ok is false when no live limit order exists; with exactly one, best and
// worst are the same order.
func (b *Book) LimitEndpoints() (best, worst *Order, ok bool) {
	b.listMu.RLock()
	defer b.listMu.RUnlock()

	for _, e := range b.entries {
		o := b.arena[e.handle]
		if o.IsMarket() || o.Tombstoned() || o.Quantity() == 0 {
			continue
		}
		if best == nil {
			best = o
		}
		worst = o
	}
	return best, worst, best != nil
}

// Len reports how many orders are linked, including tombstoned and
// exhausted ones not yet swept.
func (b *Book) Len() int {
	b.listMu.RLock()
	defer b.listMu.RUnlock()
	return len(b.entries)
}

// SnapshotRow is one reporting line: what an external reporter needs to
// render the book, with market orders priced at the current market price.
type SnapshotRow struct {
	ClientID   uint64
	ExchangeID uint64
	Price      uint64
	Quantity   uint64
	Market     bool
	Side       Side
}

// Snapshot copies the book in priority order for reporting.
func (b *Book) Snapshot(marketPrice uint64) []SnapshotRow {
	b.listMu.RLock()
	defer b.listMu.RUnlock()

	rows := make([]SnapshotRow, 0, len(b.entries))
	for _, e := range b.entries {
		o := b.arena[e.handle]
		rows = append(rows, SnapshotRow{
			ClientID:   o.ClientID(),
			ExchangeID: o.ExchangeID(),
			Price:      o.EffectivePrice(marketPrice),
			Quantity:   o.Quantity(),
			Market:     o.IsMarket(),
			Side:       o.Side(),
		})
	}
	return rows
}
