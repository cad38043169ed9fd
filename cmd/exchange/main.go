package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/joripage/exchange-engine/config"
	"github.com/joripage/exchange-engine/pkg/exchange"
	"github.com/joripage/exchange-engine/pkg/ledger"
	"github.com/joripage/exchange-engine/pkg/logging"
	"github.com/joripage/exchange-engine/pkg/orderbook"
)

var exchangeID atomic.Uint64

func nextID() uint64 {
	return exchangeID.Add(1) - 1
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	stress := flag.Bool("stress", false, "run the concurrent random-order stress session instead of the playground")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	engine := exchange.NewEngine(&exchange.Config{
		RematchInterval: cfg.Engine.RematchInterval(),
		Logger:          logger,
	})
	logger.Info("engine started", zap.String("service", cfg.ServiceName))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if *stress {
			stressRun(engine, logger)
			return
		}
		playground(engine, logger)
	}()

	select {
	case <-done:
	case <-sigs:
		fmt.Println("Shutting down...")
	}

	engine.Stop()
	fmt.Println("Exited cleanly.")
}

// playground replays a small two-trader session: a crossing pair that only
// settles after the buyer is funded, limit ladders on both sides, a cancel
// and a pair of market orders.
func playground(engine *exchange.Engine, logger *zap.Logger) {
	tr0 := ledger.NewAccount(0)
	tr1 := ledger.NewAccount(1)

	engine.PlaceOrder(tr0, nextID(), 100, 1, orderbook.SELL, false)
	engine.PlaceOrder(tr1, nextID(), 100, 1, orderbook.BUY, false)
	printBooks(engine)

	// fund the buyer after the fact; the periodic rematch picks it up
	tr1.Credit(100)
	time.Sleep(6 * time.Second)
	printBooks(engine)

	sellQtys := []uint64{1, 2, 3, 5, 6}
	for i, p := range []uint64{100, 110, 120, 140, 150} {
		engine.PlaceOrder(tr0, nextID(), p, sellQtys[i], orderbook.SELL, false)
	}
	for i, p := range []uint64{90, 100, 110, 120, 130} {
		engine.PlaceOrder(tr1, nextID(), p, uint64(i+1), orderbook.BUY, false)
	}
	printBooks(engine)

	tr0.Credit(1000)
	tr1.Credit(1000)
	engine.PlaceOrder(tr1, nextID(), 140, 6, orderbook.BUY, false)
	printBooks(engine)
	printBalances(tr0, tr1)

	engine.CancelOrder(4, orderbook.SELL)
	engine.PlaceOrder(tr1, nextID(), 0, 50, orderbook.BUY, true)
	printBooks(engine)

	tr1.Credit(10000)
	engine.PlaceOrder(tr0, nextID(), 0, 25, orderbook.SELL, true)
	time.Sleep(6 * time.Second)
	printBooks(engine)
	printBalances(tr0, tr1)

	printTransactions(engine)
	logger.Info("playground finished",
		zap.Uint64("market_price", engine.MarketPrice()))
}

// stressRun hammers the engine from two goroutines, each placing limit
// orders with random prices, quantities and sides for its own funded
// trader, then reports balances, books and history.
func stressRun(engine *exchange.Engine, logger *zap.Logger) {
	tr0 := ledger.NewAccount(0)
	tr1 := ledger.NewAccount(1)
	tr0.Credit(10000)
	tr1.Credit(10000)

	var wg sync.WaitGroup
	for _, tr := range []*ledger.Account{tr0, tr1} {
		wg.Add(1)
		go func(tr *ledger.Account) {
			defer wg.Done()
			placeRandomOrders(engine, tr, 1000)
		}(tr)
	}
	wg.Wait()

	time.Sleep(time.Second)
	printBalances(tr0, tr1)
	printBooks(engine)
	printTransactions(engine)
	logger.Info("stress run finished",
		zap.Uint64("market_price", engine.MarketPrice()))
}

func placeRandomOrders(engine *exchange.Engine, tr *ledger.Account, n int) {
	for i := 0; i < n; i++ {
		price := rand.Uint64() % 200
		quantity := rand.Uint64() % 10
		side := orderbook.BUY
		if rand.Intn(2) == 1 {
			side = orderbook.SELL
		}
		engine.PlaceOrder(tr, nextID(), price, quantity, side, false)
	}
}

func printBooks(engine *exchange.Engine) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "client id\texchange id\tprice\tquantity\tmarket\tside")
	for _, row := range engine.Snapshot() {
		market := "no"
		if row.Market {
			market = "yes"
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%s\n",
			row.ClientID, row.ExchangeID, row.Price, row.Quantity, market, row.Side)
	}
	w.Flush()
	fmt.Println()
}

func printTransactions(engine *exchange.Engine) {
	fmt.Println("Transaction History")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "sell order id\tbuy order id\tsold\tprice")
	for _, tx := range engine.RecentTransactions(999) {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", tx.SellOrderID, tx.BuyOrderID, tx.Quantity, tx.Price)
	}
	w.Flush()
}

func printBalances(accounts ...*ledger.Account) {
	for _, a := range accounts {
		fmt.Printf("tr%d %d\n", a.ID(), a.Balance())
	}
}
