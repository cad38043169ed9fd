package exchange

import (
	"github.com/joripage/exchange-engine/pkg/orderbook"
)

// attemptTrade tries to settle between two orders of opposite sides and
// returns at most one Transaction per call. A zero Transaction means no
// trade: same side, self-trade, exhausted or cancelled orders and
// non-crossing prices all fall through silently.
//
// The two order mutexes are taken in ascending exchange id order so
// concurrent attempts on the same pair in opposite argument order cannot
// deadlock. Tombstones are re-checked after locking because a cancellation
// may land between the crossing check and the lock.
func attemptTrade(a, b *orderbook.Order, marketPrice uint64) Transaction {
	if a.Side() == b.Side() {
		return Transaction{}
	}

	sell, buy := a, b
	if a.Side() == orderbook.BUY {
		sell, buy = b, a
	}

	seller, buyer := sell.Trader(), buy.Trader()
	if seller == nil || buyer == nil {
		return Transaction{}
	}
	if seller.ID() == buyer.ID() {
		return Transaction{}
	}
	if sell.Quantity() == 0 || buy.Quantity() == 0 {
		return Transaction{}
	}

	buyPrice := buy.EffectivePrice(marketPrice)
	sellPrice := sell.EffectivePrice(marketPrice)
	if buyPrice < sellPrice {
		return Transaction{}
	}

	first, second := sell, buy
	if buy.ExchangeID() < sell.ExchangeID() {
		first, second = buy, sell
	}
	first.Lock()
	defer first.Unlock()
	second.Lock()
	defer second.Unlock()

	if sell.Tombstoned() || buy.Tombstoned() {
		return Transaction{}
	}

	price := (buyPrice + sellPrice) / 2
	if price == 0 {
		return Transaction{}
	}

	for {
		fillable := min(sell.Quantity(), buy.Quantity())
		quantity := min(buyer.Balance()/price, fillable)
		if quantity == 0 {
			return Transaction{}
		}

		if !buyer.Debit(quantity * price) {
			// Another settlement drained the buyer between the read and
			// the debit; recompute what is still affordable.
			continue
		}

		seller.Credit(quantity * price)
		buy.DecreaseQuantity(quantity)
		sell.DecreaseQuantity(quantity)

		return Transaction{
			SellOrderID: sell.ExchangeID(),
			BuyOrderID:  buy.ExchangeID(),
			Quantity:    quantity,
			Price:       price,
		}
	}
}
