// Command matching-engine runs the core order-matching process: it
// loads engine configuration, wires the ledger and event publisher,
// starts one writer goroutine per configured trading pair, and serves
// the HTTP gateway on top of it. Grounded on the teacher's
// cmd/finex-engine/main.go and cmd/finex-api/main.go, merged into a
// single process since this system has no separate matching-daemon /
// api-server split.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/novaxchange/clobcore/config"
	"github.com/novaxchange/clobcore/internal/domain"
	"github.com/novaxchange/clobcore/internal/engine"
	"github.com/novaxchange/clobcore/internal/events"
	"github.com/novaxchange/clobcore/internal/gateway"
	"github.com/novaxchange/clobcore/internal/ledger"
)

func main() {
	_ = godotenv.Load()

	if err := config.InitializeConfig(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	configPath := os.Getenv("ENGINE_CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/engine.yml"
	}
	engineCfg, err := config.LoadEngineConfig(configPath)
	if err != nil {
		config.Logger.Fatalf("load engine config: %v", err)
	}

	store, err := newLedgerStore()
	if err != nil {
		config.Logger.Fatalf("open ledger store: %v", err)
	}

	publisher := newPublisher()

	eng := engine.New(engineCfg, store, publisher)

	for _, pair := range loadPairs() {
		eng.AddPair(pair)
		config.Logger.Infof("pair %s online", pair.Symbol)
	}

	server := gateway.NewServer(eng, config.Logger)

	addr := os.Getenv("GATEWAY_ADDR")
	if addr == "" {
		addr = ":3000"
	}

	config.Logger.Infof("matching engine listening on %s", addr)
	if err := server.Listen(addr); err != nil {
		config.Logger.Fatalf("gateway: %v", err)
	}
}

func newLedgerStore() (ledger.Store, error) {
	switch os.Getenv("LEDGER_DRIVER") {
	case "postgres":
		return ledger.NewPostgresStore(config.DataBase)
	default:
		path := os.Getenv("PEBBLE_PATH")
		if path == "" {
			path = "./data/ledger"
		}
		return ledger.NewPebbleStore(path)
	}
}

func newPublisher() events.Publisher {
	if os.Getenv("EVENTS_DRIVER") == "memory" {
		return events.NewMemoryPublisher(10000)
	}
	return events.NewNATSPublisher()
}

// loadPairs seeds the trading pairs this process serves. A production
// deployment would read these from the same Postgres store the
// teacher's models.Market table lives in; this reads a minimal env-var
// list to keep the process runnable without that dependency present.
func loadPairs() []*domain.TradingPair {
	symbols := os.Getenv("TRADING_PAIRS")
	if symbols == "" {
		symbols = "BTC-USD"
	}

	var pairs []*domain.TradingPair
	for _, symbol := range strings.Split(symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		pairs = append(pairs, &domain.TradingPair{
			Symbol:            symbol,
			MinOrderSize:      decimal.NewFromFloat(0.0001),
			MaxOrderSize:      decimal.NewFromInt(1000),
			PricePrecision:    2,
			QuantityPrecision: 8,
			Active:            true,
		})
	}
	return pairs
}
