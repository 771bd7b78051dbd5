// Command perf_seed inserts synthetic payout orders for load and query
// testing. Orders are spread over a configurable day range with a mix of
// lifecycle states so dashboards and reconciliation runs have realistic data.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
	"github.com/Thedongraphix/Minisend-sub001/internal/orders/infrastructure/postgres"
)

type config struct {
	dsn          string
	count        int
	days         int
	walletPrefix string
	currency     string
}

var statusMix = []orders.Status{
	orders.StatusDelivered,
	orders.StatusDelivered,
	orders.StatusDelivered,
	orders.StatusProcessing,
	orders.StatusPending,
	orders.StatusRefunded,
	orders.StatusExpired,
}

var institutions = []string{"MPESA", "AIRTEL", "MTN", "TIGO"}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.count <= 0 {
		log.Fatal("count must be > 0")
	}
	if cfg.days <= 0 {
		log.Fatal("days must be > 0")
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := postgres.NewOrderRepository(db)

	log.Printf("seeding payout_orders: count=%d days=%d currency=%s", cfg.count, cfg.days, cfg.currency)
	now := time.Now().UTC()
	for i := 0; i < cfg.count; i++ {
		order := buildOrder(cfg, now, i)
		if err := repo.Create(ctx, order); err != nil {
			log.Fatalf("insert order %d: %v", i, err)
		}
		if order.Status.IsTerminal() {
			if err := markTerminal(ctx, db, order); err != nil {
				log.Fatalf("finalize order %d: %v", i, err)
			}
		}
	}

	log.Printf("perf seed completed")
}

func buildOrder(cfg config, now time.Time, i int) *orders.Order {
	amount := decimal.NewFromFloat(5 + rand.Float64()*495).Round(2)
	rate := decimal.NewFromFloat(120 + rand.Float64()*40).Round(4)
	status := statusMix[rand.Intn(len(statusMix))]

	createdAt := now.Add(-time.Duration(rand.Intn(cfg.days*24)) * time.Hour)
	externalID := uuid.NewString()

	order := &orders.Order{
		ID:              uuid.NewString(),
		ExternalOrderID: externalID,
		WalletAddress:   fmt.Sprintf("%s%04d", cfg.walletPrefix, i%500),
		ReturnAddress:   fmt.Sprintf("%sreturn", cfg.walletPrefix),
		Recipient: orders.Recipient{
			Institution:   institutions[rand.Intn(len(institutions))],
			AccountNumber: fmt.Sprintf("2547%08d", rand.Intn(100_000_000)),
			AccountName:   fmt.Sprintf("Seed Recipient %d", i),
		},
		AmountRequested: amount,
		LocalCurrency:   cfg.currency,
		AmountLocal:     amount.Mul(rate).Round(2),
		Rate:            rate,
		SenderFee:       amount.Mul(decimal.RequireFromString("0.005")).Round(2),
		TransactionFee:  decimal.RequireFromString("0.05"),
		Status:          orders.StatusPending,
		ProviderStatus:  "initiated",
		Payable:         true,
		DepositAddress:  "0xseed" + externalID[:8],
		ValidUntil:      createdAt.Add(30 * time.Minute),
		CreatedAt:       createdAt,
	}
	order.Status = status
	if status != orders.StatusPending {
		order.TransactionHash = "0xseedtx" + externalID[:8]
		order.ProviderStatus = string(status)
	}
	return order
}

// markTerminal stamps completed_at on delivered rows so range queries over
// finished orders behave like production data.
func markTerminal(ctx context.Context, db *sql.DB, order *orders.Order) error {
	if order.Status != orders.StatusDelivered {
		return nil
	}
	completedAt := order.CreatedAt.Add(time.Duration(1+rand.Intn(10)) * time.Minute)
	_, err := db.ExecContext(ctx, `
UPDATE payout_orders
SET completed_at = $1, provider_status = 'settled'
WHERE external_order_id = $2`, completedAt, order.ExternalOrderID)
	return err
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.IntVar(&cfg.count, "count", envOrInt("SEED_COUNT", 1000), "number of orders to insert")
	flag.IntVar(&cfg.days, "days", envOrInt("SEED_DAYS", 7), "spread orders over this many trailing days")
	flag.StringVar(&cfg.walletPrefix, "wallet-prefix", envOrDefault("WALLET_PREFIX", "0xperf"), "wallet address prefix")
	flag.StringVar(&cfg.currency, "currency", envOrDefault("SEED_CURRENCY", "KES"), "local currency code")
	flag.Parse()
	return cfg
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
