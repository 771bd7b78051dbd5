// Command reconcile re-drives orders that are stuck in a non-terminal state.
// It polls the provider once per order, applies the result through the same
// status reducer and compare-and-set path the service uses, and writes a CSV
// report of what it found and what it changed.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	orders "github.com/Thedongraphix/Minisend-sub001/internal/orders/domain"
	"github.com/Thedongraphix/Minisend-sub001/internal/orders/infrastructure/postgres"
	"github.com/Thedongraphix/Minisend-sub001/internal/provider"
)

const timeLayout = time.RFC3339

type config struct {
	dbURL           string
	providerBaseURL string
	providerAPIKey  string
	olderThan       time.Duration
	limit           int
	outDir          string
	dryRun          bool
}

type reportRow struct {
	ExternalOrderID string
	StoredStatus    orders.Status
	ProviderStatus  string
	NextStatus      orders.Status
	Applied         bool
	Note            string
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	client, err := provider.NewClient(cfg.providerBaseURL, cfg.providerAPIKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "provider client:", err)
		os.Exit(2)
	}

	ctx := context.Background()
	repo := postgres.NewOrderRepository(db)
	attempts := postgres.NewAttemptLog(db)

	stale, err := repo.ListNonTerminal(ctx, time.Now().UTC().Add(-cfg.olderThan), cfg.limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list non-terminal:", err)
		os.Exit(2)
	}

	var rows []reportRow
	var applied int
	for _, order := range stale {
		row := reconcileOne(ctx, client, repo, attempts, order, cfg.dryRun)
		if row.Applied {
			applied++
		}
		rows = append(rows, row)
	}

	if err := writeReport(cfg.outDir, rows); err != nil {
		fmt.Fprintln(os.Stderr, "write report:", err)
		os.Exit(2)
	}

	fmt.Printf("Reconciled %d of %d stale orders (dry-run=%v); report in %s\n",
		applied, len(stale), cfg.dryRun, cfg.outDir)
}

func reconcileOne(ctx context.Context, client *provider.Client, repo *postgres.OrderRepository, attempts *postgres.AttemptLog, order orders.Order, dryRun bool) reportRow {
	row := reportRow{
		ExternalOrderID: order.ExternalOrderID,
		StoredStatus:    order.Status,
	}

	status, err := client.GetOrder(ctx, order.ExternalOrderID)
	if err != nil {
		row.Note = "provider poll failed: " + err.Error()
		return row
	}
	row.ProviderStatus = status.Status

	ev := orders.StatusEvent{
		Source:           orders.SourcePoll,
		ExternalOrderID:  order.ExternalOrderID,
		RawStatus:        status.Status,
		ObservedAt:       time.Now().UTC(),
		TransactionHash:  status.TxHash,
		ProviderID:       status.ProviderID,
		SettlementAmount: status.SettlementAmount,
	}

	red := orders.Reduce(order.Status, ev)
	row.NextStatus = red.Next
	if !red.Transitioned {
		row.Note = "no transition"
		return row
	}
	if dryRun {
		row.Note = "would transition"
		return row
	}

	won, err := repo.UpdateStatusIfAdvanced(ctx, order.ExternalOrderID, order.Status, red.Next, orders.StatusUpdate{
		ProviderStatus:  status.Status,
		TransactionHash: status.TxHash,
		ObservedAt:      ev.ObservedAt,
	})
	if err != nil {
		row.Note = "update failed: " + err.Error()
		return row
	}
	if !won {
		row.Note = "lost race to live channel"
		return row
	}
	if err := attempts.Append(ctx, ev, true, order.Status, red.Next); err != nil {
		row.Note = "attempt log failed: " + err.Error()
	}
	row.Applied = true
	return row
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dbURL, "db", getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")), "Postgres DSN")
	flag.StringVar(&cfg.providerBaseURL, "provider", getenvDefault("PROVIDER_BASE_URL", ""), "provider base URL")
	flag.StringVar(&cfg.providerAPIKey, "provider-key", getenvDefault("PROVIDER_API_KEY", ""), "provider API key")
	flag.DurationVar(&cfg.olderThan, "older-than", 10*time.Minute, "only touch orders created at least this long ago")
	flag.IntVar(&cfg.limit, "limit", 200, "maximum orders to reconcile")
	flag.StringVar(&cfg.outDir, "out", "./out", "output directory")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "report only, apply nothing")
	flag.Parse()

	if cfg.dbURL == "" {
		return cfg, errors.New("missing --db or DATABASE_URL/PG_DSN")
	}
	if cfg.providerBaseURL == "" {
		return cfg, errors.New("missing --provider or PROVIDER_BASE_URL")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func writeReport(outDir string, rows []reportRow) error {
	path := filepath.Join(outDir, "reconcile_report.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"external_order_id",
		"stored_status",
		"provider_status",
		"next_status",
		"applied",
		"note",
		"checked_at",
	}); err != nil {
		return err
	}

	checkedAt := time.Now().UTC().Format(timeLayout)
	for _, row := range rows {
		if err := writer.Write([]string{
			row.ExternalOrderID,
			string(row.StoredStatus),
			row.ProviderStatus,
			string(row.NextStatus),
			formatBool(row.Applied),
			row.Note,
			checkedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

func formatBool(value bool) string {
	if value {
		return "true"
	}
	return "false"
}
