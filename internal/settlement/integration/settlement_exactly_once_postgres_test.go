package integration_test

import (
	"context"
	"database/sql"
	"log"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	ordersapp "github.com/Thedongraphix/Minisend-sub001/internal/orders/application"
	settlementapp "github.com/Thedongraphix/Minisend-sub001/internal/settlement/application"
	settlementrepo "github.com/Thedongraphix/Minisend-sub001/internal/settlement/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// TestSettlementExactlyOnce_Postgres verifies that the order_id uniqueness
// constraint collapses replayed and cross-channel duplicate deliveries to a
// single settlement row, and that a later duplicate fills in an amount the
// first delivery did not carry.
func TestSettlementExactlyOnce_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "settlement_records") {
		t.Skip("missing settlement_records; run migrations")
	}

	ctx := context.Background()
	orderID := "order-it-settle-once"
	externalID := "po-it-settle-once"

	_, _ = db.ExecContext(ctx, "DELETE FROM settlement_records WHERE order_id = $1", orderID)

	repo := settlementrepo.NewRecordRepository(db)
	recorder, err := settlementapp.NewRecorder(repo, log.New(os.Stderr, "it: ", log.LstdFlags))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	occurredAt := time.Now().UTC().Truncate(time.Second)
	first := ordersapp.OrderDelivered{
		OrderID:         orderID,
		ExternalOrderID: externalID,
		LocalCurrency:   "KES",
		TransactionHash: "0xhash-settle",
		OccurredAt:      occurredAt,
	}
	if err := recorder.HandleDelivered(ctx, first); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// Same order again, this time with the settlement figure the webhook
	// carried and the first poll did not.
	second := first
	second.SettlementAmount = decimal.RequireFromString("14500")
	for i := 0; i < 3; i++ {
		if err := recorder.HandleDelivered(ctx, second); err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM settlement_records WHERE order_id = $1", orderID).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("settlement rows = %d, want exactly 1", count)
	}

	record, err := repo.GetByOrderID(ctx, orderID)
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	if !record.SettlementAmount.Equal(decimal.RequireFromString("14500")) {
		t.Fatalf("settlement amount = %s, want 14500 filled from replay", record.SettlementAmount)
	}
	if record.SettledAt.UTC().Before(occurredAt.Add(-time.Second)) {
		t.Fatalf("settled_at = %s, want around %s", record.SettledAt, occurredAt)
	}
}

func tableExists(db *sql.DB, name string) bool {
	var exists bool
	err := db.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", name).Scan(&exists)
	return err == nil && exists
}
