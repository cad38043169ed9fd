package exchange

import (
	"sync"
	"testing"
	"time"

	"github.com/joripage/exchange-engine/pkg/ledger"
	"github.com/joripage/exchange-engine/pkg/orderbook"
)

// newTestEngine returns an engine whose scheduler will not fire during the
// test; passes are driven manually through rematchPass.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(&Config{RematchInterval: time.Hour})
	t.Cleanup(e.Stop)
	return e
}

func TestPlaceOrderDuplicateExchangeID(t *testing.T) {
	e := newTestEngine(t)
	tr := fundedAccount(1, 1000)

	if err := e.PlaceOrder(tr, 1, 100, 1, orderbook.SELL, false); err != nil {
		t.Fatalf("first placement failed: %v", err)
	}
	if err := e.PlaceOrder(tr, 1, 90, 1, orderbook.SELL, false); err == nil {
		t.Fatalf("expected duplicate placement to be rejected")
	}
}

func TestScenarioOneForOne(t *testing.T) {
	e := newTestEngine(t)
	seller := ledger.NewAccount(1)
	buyer := fundedAccount(2, 100)

	if err := e.PlaceOrder(seller, 1, 100, 1, orderbook.SELL, false); err != nil {
		t.Fatalf("sell placement failed: %v", err)
	}
	if err := e.PlaceOrder(buyer, 2, 100, 1, orderbook.BUY, false); err != nil {
		t.Fatalf("buy placement failed: %v", err)
	}

	tx, ok := e.LastTransaction()
	if !ok {
		t.Fatalf("expected one transaction")
	}
	want := Transaction{SellOrderID: 1, BuyOrderID: 2, Quantity: 1, Price: 100}
	if tx != want {
		t.Fatalf("expected %+v, got %+v", want, tx)
	}
	if e.history.size() != 1 {
		t.Fatalf("expected exactly one transaction, got %d", e.history.size())
	}
	if seller.Balance() != 100 || buyer.Balance() != 0 {
		t.Fatalf("expected balances 100/0, got %d/%d", seller.Balance(), buyer.Balance())
	}
	for _, row := range e.Snapshot() {
		if row.Quantity != 0 {
			t.Fatalf("expected both orders exhausted, got %+v", row)
		}
	}
}

func TestScenarioLadderCrossingOnly(t *testing.T) {
	e := newTestEngine(t)
	seller := ledger.NewAccount(1)
	buyer := fundedAccount(2, 1_000_000)

	sellPrices := map[uint64]uint64{}
	buyPrices := map[uint64]uint64{}

	id := uint64(0)
	sellQtys := []uint64{1, 2, 3, 5, 6}
	for i, p := range []uint64{100, 110, 120, 140, 150} {
		id++
		sellPrices[id] = p
		if err := e.PlaceOrder(seller, id, p, sellQtys[i], orderbook.SELL, false); err != nil {
			t.Fatalf("sell placement failed: %v", err)
		}
	}
	for i, p := range []uint64{90, 100, 110, 120, 130} {
		id++
		buyPrices[id] = p
		if err := e.PlaceOrder(buyer, id, p, uint64(i+1), orderbook.BUY, false); err != nil {
			t.Fatalf("buy placement failed: %v", err)
		}
	}

	txs := e.RecentTransactions(100)
	if len(txs) == 0 {
		t.Fatalf("expected some trades")
	}
	for _, tx := range txs {
		sp, bp := sellPrices[tx.SellOrderID], buyPrices[tx.BuyOrderID]
		if bp < sp {
			t.Fatalf("non-crossing pair traded: %+v (buy %d < sell %d)", tx, bp, sp)
		}
		if tx.Price != (bp+sp)/2 {
			t.Fatalf("expected floor-midpoint price %d, got %+v", (bp+sp)/2, tx)
		}
	}
}

func TestConservationPerOrder(t *testing.T) {
	e := newTestEngine(t)
	seller := ledger.NewAccount(1)
	buyer := fundedAccount(2, 1_000_000)

	e.PlaceOrder(seller, 1, 100, 7, orderbook.SELL, false)
	e.PlaceOrder(buyer, 2, 100, 3, orderbook.BUY, false)
	e.PlaceOrder(buyer, 3, 100, 3, orderbook.BUY, false)
	e.PlaceOrder(buyer, 4, 100, 3, orderbook.BUY, false)

	filled := uint64(0)
	for _, tx := range e.RecentTransactions(100) {
		if tx.SellOrderID != 1 {
			t.Fatalf("unexpected seller in %+v", tx)
		}
		filled += tx.Quantity
	}
	if filled > 7 {
		t.Fatalf("order overfilled: %d > 7", filled)
	}
	if filled != 7 {
		t.Fatalf("expected the sell order fully filled, got %d", filled)
	}
}

func TestPartialFillRemainderStaysOpen(t *testing.T) {
	e := newTestEngine(t)
	seller := ledger.NewAccount(1)
	buyer := fundedAccount(2, 250)

	e.PlaceOrder(seller, 1, 100, 5, orderbook.SELL, false)
	e.PlaceOrder(buyer, 2, 100, 5, orderbook.BUY, false)

	tx, ok := e.LastTransaction()
	if !ok || tx.Quantity != 2 {
		t.Fatalf("expected partial fill of floor(250/100)=2, got %+v", tx)
	}

	var buyQty, sellQty uint64
	for _, row := range e.Snapshot() {
		switch row.ExchangeID {
		case 1:
			sellQty = row.Quantity
		case 2:
			buyQty = row.Quantity
		}
	}
	if buyQty != 3 || sellQty != 3 {
		t.Fatalf("expected remainders 3/3 to stay open, got buy=%d sell=%d", buyQty, sellQty)
	}
}

func TestCancelExcludesFromMatching(t *testing.T) {
	e := newTestEngine(t)
	seller := ledger.NewAccount(1)
	buyer := fundedAccount(2, 1000)

	e.PlaceOrder(buyer, 1, 100, 1, orderbook.BUY, false)
	if err := e.CancelOrder(1, orderbook.BUY); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// the tombstoned order is still linked until the next sweep but must
	// not trade
	e.PlaceOrder(seller, 2, 100, 1, orderbook.SELL, false)
	if _, ok := e.LastTransaction(); ok {
		t.Fatalf("cancelled order must not trade")
	}

	if err := e.CancelOrder(99, orderbook.SELL); err == nil {
		t.Fatalf("expected cancel of unknown order to be rejected")
	}
}

func TestRematchIdempotentOnNonCrossingBook(t *testing.T) {
	e := newTestEngine(t)
	seller := ledger.NewAccount(1)
	buyer := fundedAccount(2, 10_000)

	e.PlaceOrder(seller, 1, 110, 5, orderbook.SELL, false)
	e.PlaceOrder(buyer, 2, 90, 5, orderbook.BUY, false)

	sellerBefore, buyerBefore := seller.Balance(), buyer.Balance()
	before := e.Snapshot()

	e.rematchPass()
	e.rematchPass()

	if e.history.size() != 0 {
		t.Fatalf("rematch of a non-crossing book must produce no trades")
	}
	if seller.Balance() != sellerBefore || buyer.Balance() != buyerBefore {
		t.Fatalf("rematch must not move balances")
	}
	after := e.Snapshot()
	if len(after) != len(before) {
		t.Fatalf("rematch must not change the books")
	}
	for i := range after {
		if after[i] != before[i] {
			t.Fatalf("rematch mutated row %d: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestRematchPicksUpFundedBuyer(t *testing.T) {
	e := newTestEngine(t)
	seller := ledger.NewAccount(1)
	buyer := ledger.NewAccount(2) // no funds yet

	e.PlaceOrder(seller, 1, 100, 1, orderbook.SELL, false)
	e.PlaceOrder(buyer, 2, 100, 1, orderbook.BUY, false)
	if _, ok := e.LastTransaction(); ok {
		t.Fatalf("unfunded buyer must not trade")
	}

	// No balance-change notification exists; the periodic pass is the
	// recovery path.
	buyer.Credit(100)
	e.rematchPass()

	tx, ok := e.LastTransaction()
	if !ok || tx.Quantity != 1 || tx.Price != 100 {
		t.Fatalf("expected the rematch pass to settle the funded buyer, got %+v", tx)
	}
}

func TestRematchSweepsBeforeMatching(t *testing.T) {
	e := newTestEngine(t)
	seller := ledger.NewAccount(1)

	e.PlaceOrder(seller, 1, 100, 1, orderbook.SELL, false)
	e.CancelOrder(1, orderbook.SELL)
	e.rematchPass()

	if rows := e.Snapshot(); len(rows) != 0 {
		t.Fatalf("expected the tombstoned order to be purged, got %+v", rows)
	}
}

func TestRecentTransactionsWindow(t *testing.T) {
	e := newTestEngine(t)
	seller := ledger.NewAccount(1)
	buyer := fundedAccount(2, 1_000_000)

	id := uint64(0)
	for i := 0; i < 3; i++ {
		id++
		e.PlaceOrder(seller, id, 100, 1, orderbook.SELL, false)
		id++
		e.PlaceOrder(buyer, id, 100, 1, orderbook.BUY, false)
	}

	txs := e.RecentTransactions(2)
	if len(txs) != 2 {
		t.Fatalf("expected window of 2, got %d", len(txs))
	}
	if txs[0].BuyOrderID != 4 || txs[1].BuyOrderID != 6 {
		t.Fatalf("expected oldest-to-newest window, got %+v", txs)
	}

	if got := e.RecentTransactions(100); len(got) != 3 {
		t.Fatalf("expected bounded read-back of 3, got %d", len(got))
	}
	if got := e.RecentTransactions(0); got != nil {
		t.Fatalf("expected empty window, got %+v", got)
	}
}

func TestLastTransactionEmpty(t *testing.T) {
	e := newTestEngine(t)
	if _, ok := e.LastTransaction(); ok {
		t.Fatalf("fresh engine must have no transactions")
	}
}

func TestStopLifecycle(t *testing.T) {
	e := NewEngine(&Config{RematchInterval: 10 * time.Millisecond})
	if e.State() != StateRunning {
		t.Fatalf("expected running state")
	}

	time.Sleep(30 * time.Millisecond) // let a few passes run
	e.Stop()
	e.Stop() // repeated stop is a no-op

	if e.State() != StateStopped {
		t.Fatalf("expected stopped state, got %d", e.State())
	}
	if err := e.PlaceOrder(ledger.NewAccount(1), 1, 100, 1, orderbook.SELL, false); err == nil {
		t.Fatalf("placement on a stopped engine must be rejected")
	}
}

func TestConcurrentPlacementConservesMoney(t *testing.T) {
	e := newTestEngine(t)

	tr0 := fundedAccount(0, 10_000)
	tr1 := fundedAccount(1, 10_000)
	total := tr0.Balance() + tr1.Balance()

	var wg sync.WaitGroup
	place := func(tr *ledger.Account, base uint64) {
		defer wg.Done()
		for i := uint64(0); i < 500; i++ {
			side := orderbook.SELL
			if i%2 == 0 {
				side = orderbook.BUY
			}
			e.PlaceOrder(tr, base+i, 90+i%20, 1+i%5, side, false)
		}
	}
	wg.Add(2)
	go place(tr0, 0)
	go place(tr1, 1_000_000)
	wg.Wait()
	e.rematchPass()

	if got := tr0.Balance() + tr1.Balance(); got != total {
		t.Fatalf("money not conserved: %d != %d", got, total)
	}
}

func BenchmarkPlaceOrder(b *testing.B) {
	e := NewEngine(&Config{RematchInterval: time.Hour})
	defer e.Stop()

	seller := ledger.NewAccount(1)
	for i := 0; i < 10_000; i++ {
		e.PlaceOrder(seller, uint64(i), 100+uint64(i%5), 10, orderbook.SELL, false)
	}

	buyer := fundedAccount(2, 1<<40)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.PlaceOrder(buyer, uint64(1_000_000+i), 101, 10, orderbook.BUY, false)
	}
}
