package orderbook

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == BUY {
		return SELL
	}
	return BUY
}

// Trader is the balance-holding party an order trades on behalf of. Orders
// reference traders, they never own them; callers keep an account alive for
// as long as any of its orders is live.
type Trader interface {
	ID() uint64
	Balance() uint64
	Credit(amount uint64)
	Debit(amount uint64) bool
}

// Order is a single resting order. Identity, side and limit price are fixed
// at creation; only the quantity (monotonically down to 0) and the
// write-once tombstone ever change. Market orders carry a sentinel limit
// price (0 for sells, MaxUint64 for buys) so price comparisons stay uniform.
type Order struct {
	trader     Trader
	exchangeID uint64
	limitPrice uint64
	side       Side
	market     bool

	qty       atomic.Uint64
	tombstone atomic.Bool

	// mu serializes fill attempts and the tombstone write. Any pair of
	// order mutexes is taken in ascending exchange id order.
	mu sync.Mutex
}

func NewOrder(trader Trader, exchangeID, limitPrice, quantity uint64, side Side, market bool) *Order {
	o := &Order{
		trader:     trader,
		exchangeID: exchangeID,
		limitPrice: limitPrice,
		side:       side,
		market:     market,
	}
	if market {
		o.limitPrice = 0
		if side == BUY {
			o.limitPrice = math.MaxUint64
		}
	}
	o.qty.Store(quantity)
	return o
}

func (o *Order) Trader() Trader {
	return o.trader
}

func (o *Order) ClientID() uint64 {
	if o.trader == nil {
		return 0
	}
	return o.trader.ID()
}

func (o *Order) ExchangeID() uint64 {
	return o.exchangeID
}

func (o *Order) Side() Side {
	return o.side
}

func (o *Order) IsMarket() bool {
	return o.market
}

// LimitPrice returns the order's limit, or the sentinel price for market
// orders.
func (o *Order) LimitPrice() uint64 {
	return o.limitPrice
}

// EffectivePrice is the price the order is willing to trade at right now:
// its own limit, or marketPrice for market orders.
func (o *Order) EffectivePrice(marketPrice uint64) uint64 {
	if o.market {
		return marketPrice
	}
	return o.limitPrice
}

func (o *Order) Quantity() uint64 {
	return o.qty.Load()
}

// DecreaseQuantity reduces the remaining quantity by n. An underflow means
// the book or the settlement lock discipline is corrupted, so it panics
// instead of clamping.
func (o *Order) DecreaseQuantity(n uint64) {
	for {
		current := o.qty.Load()
		if current < n {
			panic(fmt.Sprintf("orderbook: quantity underflow on order %d (%d < %d)", o.exchangeID, current, n))
		}
		if o.qty.CompareAndSwap(current, current-n) {
			return
		}
	}
}

// MarkForDeletion tombstones the order. It stays in the book, inert, until
// the next sweep unlinks it.
func (o *Order) MarkForDeletion() {
	o.mu.Lock()
	o.tombstone.Store(true)
	o.mu.Unlock()
}

func (o *Order) Tombstoned() bool {
	return o.tombstone.Load()
}

func (o *Order) Lock() {
	o.mu.Lock()
}

func (o *Order) Unlock() {
	o.mu.Unlock()
}
