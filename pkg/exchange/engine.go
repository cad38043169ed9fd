package exchange

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/joripage/exchange-engine/pkg/orderbook"
)

type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

const defaultRematchInterval = 5 * time.Second

type Config struct {
	// RematchInterval is the wake interval of the background rematch pass.
	RematchInterval time.Duration
	Logger          *zap.Logger
}

// Engine owns both books, the shared market price and the trade history,
// and runs one background goroutine that periodically sweeps the books and
// rematches them. Placement and cancellation are safe to call from any
// number of goroutines.
type Engine struct {
	log *zap.Logger

	buy  *orderbook.Book
	sell *orderbook.Book

	history     history
	marketPrice atomic.Uint64

	state    atomic.Int32
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	interval time.Duration
}

func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	interval := cfg.RematchInterval
	if interval <= 0 {
		interval = defaultRematchInterval
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		log:      log,
		buy:      orderbook.NewBook(orderbook.BUY),
		sell:     orderbook.NewBook(orderbook.SELL),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		interval: interval,
	}
	e.state.Store(int32(StateRunning))
	go e.runScheduler()

	return e
}

// PlaceOrder inserts a new order and synchronously matches it against the
// opposite book, best candidates first. The whole opposite side is scanned
// because market orders interleave with limit orders by priority, so a
// price-based early stop would skip live candidates; settlement's own
// crossing check no-ops the pairs that cannot trade.
func (e *Engine) PlaceOrder(trader orderbook.Trader, exchangeID, limitPrice, quantity uint64, side orderbook.Side, market bool) error {
	if e.State() != StateRunning {
		return errEngineStopped
	}

	order := orderbook.NewOrder(trader, exchangeID, limitPrice, quantity, side, market)

	own, counter := e.sell, e.buy
	if side == orderbook.BUY {
		own, counter = e.buy, e.sell
	}

	if _, err := own.Add(order); err != nil {
		e.log.Debug("order rejected",
			zap.Uint64("exchange_id", exchangeID),
			zap.String("side", string(side)),
			zap.Error(err))
		return err
	}

	e.updateMarketPrice()
	marketPrice := e.marketPrice.Load()

	counter.Ascend(func(resting *orderbook.Order) bool {
		if order.Quantity() == 0 {
			return false
		}
		if resting.Quantity() == 0 {
			return true
		}
		if tx := attemptTrade(order, resting, marketPrice); !tx.IsZero() {
			e.recordTrade(tx)
		}
		return true
	})

	return nil
}

// CancelOrder tombstones the order with the given id on the given side.
// The order is excluded from all future matches immediately, before the
// next sweep physically removes it.
func (e *Engine) CancelOrder(exchangeID uint64, side orderbook.Side) error {
	book := e.sell
	if side == orderbook.BUY {
		book = e.buy
	}
	return book.Cancel(exchangeID)
}

func (e *Engine) LastTransaction() (Transaction, bool) {
	return e.history.last()
}

// RecentTransactions returns up to n most recent transactions, oldest to
// newest within the window.
func (e *Engine) RecentTransactions(n int) []Transaction {
	return e.history.recent(n)
}

func (e *Engine) MarketPrice() uint64 {
	return e.marketPrice.Load()
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// Snapshot copies both books for an external reporter, buy side first,
// each in priority order.
func (e *Engine) Snapshot() []orderbook.SnapshotRow {
	marketPrice := e.marketPrice.Load()
	rows := e.buy.Snapshot(marketPrice)
	return append(rows, e.sell.Snapshot(marketPrice)...)
}

// Stop signals the scheduler and waits for any in-flight rematch pass to
// finish; a pass is never interrupted mid-trade. The two-phase signal is
// one-shot, repeated calls are no-ops.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.state.Store(int32(StateStopping))
		close(e.stopCh)
		<-e.doneCh
		e.state.Store(int32(StateStopped))
		e.log.Info("engine stopped")
	})
}

func (e *Engine) runScheduler() {
	defer close(e.doneCh)

	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = 0

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.safeRematchPass(); err != nil {
				// A failed pass must not take the scheduler down; hold
				// off before the next attempt and keep going.
				delay := boff.NextBackOff()
				e.log.Error("rematch pass failed",
					zap.Error(err),
					zap.Duration("next_attempt_in", delay))
				select {
				case <-e.stopCh:
					return
				case <-time.After(delay):
				}
				continue
			}
			boff.Reset()
		}
	}
}

func (e *Engine) safeRematchPass() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rematch pass panicked: %v", r)
		}
	}()
	e.rematchPass()
	return nil
}

// rematchPass sweeps both books, then retries settlement between every
// live buy and every live sell in priority order. Trader balances can
// change without any notification to the engine, so this periodic full
// scan is the only way orders that became affordable get another chance
// to trade.
func (e *Engine) rematchPass() {
	swept := e.buy.Sweep() + e.sell.Sweep()
	if swept > 0 {
		e.log.Debug("purged finished orders", zap.Int("count", swept))
	}

	marketPrice := e.marketPrice.Load()
	e.buy.Ascend(func(buy *orderbook.Order) bool {
		e.sell.Ascend(func(sell *orderbook.Order) bool {
			if buy.Quantity() == 0 {
				return false
			}
			if sell.Quantity() == 0 {
				return true
			}
			if tx := attemptTrade(buy, sell, marketPrice); !tx.IsZero() {
				e.recordTrade(tx)
			}
			return true
		})
		return true
	})
}

func (e *Engine) recordTrade(t Transaction) {
	e.history.append(t)
	e.log.Debug("trade settled",
		zap.Uint64("sell_order_id", t.SellOrderID),
		zap.Uint64("buy_order_id", t.BuyOrderID),
		zap.Uint64("quantity", t.Quantity),
		zap.Uint64("price", t.Price))
}
