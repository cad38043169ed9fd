package orderbook

// OrderPriority is an immutable sort key snapshotted when an order enters a
// book. The arrival counter is a per-book sequence, not wall-clock time, so
// same-instant inserts still have a total order.
type OrderPriority struct {
	price   uint64
	market  bool
	side    Side
	arrival uint64
}

func newPriority(o *Order, arrival uint64) OrderPriority {
	return OrderPriority{
		price:   o.LimitPrice(),
		market:  o.IsMarket(),
		side:    o.Side(),
		arrival: arrival,
	}
}

// Before reports whether p outranks q on the same side:
// 1) market orders outrank all limit orders
// 2) better price first (higher for buys, lower for sells)
// 3) earliest arrival wins ties
func (p OrderPriority) Before(q OrderPriority) bool {
	if p.market != q.market {
		return p.market
	}
	if p.price != q.price {
		if p.side == BUY {
			return p.price > q.price
		}
		return p.price < q.price
	}
	return p.arrival < q.arrival
}
