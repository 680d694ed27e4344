package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	autotransfer "rentflow-cloud/internal/autotransfer/domain"
	"rentflow-cloud/internal/autotransfer/infrastructure/postgres"
	"rentflow-cloud/internal/reconcile"
)

type config struct {
	input      string
	dbURL      string
	contractID string
	timezone   string
	outDir     string
	asJSON     bool
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	loc, err := time.LoadLocation(cfg.timezone)
	if err != nil {
		fmt.Fprintln(os.Stderr, "timezone:", err)
		os.Exit(2)
	}
	reconciler := reconcile.NewReconciler(loc, nil)

	var result reconcile.Result
	if cfg.contractID != "" {
		result, err = reconcileContract(context.Background(), cfg, reconciler)
	} else {
		result, err = reconcileFile(cfg.input, reconciler)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "reconcile:", err)
		os.Exit(2)
	}

	if cfg.outDir != "" {
		if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, "create out dir:", err)
			os.Exit(2)
		}
		if err := writeRecords(cfg.outDir, result.Normalized); err != nil {
			fmt.Fprintln(os.Stderr, "write records:", err)
			os.Exit(2)
		}
		if err := writeDays(cfg.outDir, result.GroupedByDay); err != nil {
			fmt.Fprintln(os.Stderr, "write days:", err)
			os.Exit(2)
		}
	}

	if cfg.asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(2)
		}
		return
	}
	printSummary(os.Stdout, result)
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.input, "in", "-", "JSON array of history records (- for stdin)")
	flag.StringVar(&cfg.dbURL, "db", getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")), "Postgres DSN (with -contract)")
	flag.StringVar(&cfg.contractID, "contract", "", "reconcile a stored contract's executions instead of -in")
	flag.StringVar(&cfg.timezone, "tz", getenvDefault("TIMEZONE", "Asia/Seoul"), "timezone for naive timestamps and day buckets")
	flag.StringVar(&cfg.outDir, "out", "", "write records.csv and days.csv to this directory")
	flag.BoolVar(&cfg.asJSON, "json", false, "print the full result as JSON")
	flag.Parse()

	if cfg.contractID != "" && cfg.dbURL == "" {
		return cfg, errors.New("-db (or DATABASE_URL) is required with -contract")
	}
	return cfg, nil
}

func reconcileFile(path string, reconciler *reconcile.Reconciler) (reconcile.Result, error) {
	var reader io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return reconcile.Result{}, err
		}
		defer file.Close()
		reader = file
	}
	var entries []reconcile.Entry
	if err := json.NewDecoder(reader).Decode(&entries); err != nil {
		return reconcile.Result{}, fmt.Errorf("decode entries: %w", err)
	}
	return reconciler.Reconcile(entries), nil
}

func reconcileContract(ctx context.Context, cfg config, reconciler *reconcile.Reconciler) (reconcile.Result, error) {
	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		return reconcile.Result{}, err
	}
	defer db.Close()
	repo := postgres.NewExecutionRepository(db, reconciler.Location())
	records, err := repo.ListByContract(ctx, cfg.contractID)
	if err != nil {
		return reconcile.Result{}, err
	}
	return reconciler.Summarize(records), nil
}

func printSummary(w io.Writer, result reconcile.Result) {
	stats := result.Stats
	fmt.Fprintf(w, "total=%d success=%d failed=%d pending=%d success_rate=%.2f\n",
		stats.Total, stats.Success, stats.Failed, stats.Pending, stats.SuccessRate)
	for _, bucket := range result.GroupedByDay {
		fmt.Fprintf(w, "%s\t%d\n", bucket.Day, len(bucket.Records))
	}
	for _, ambiguity := range result.Ambiguities {
		fmt.Fprintf(w, "ambiguous: index=%d record=%s label=%q\n", ambiguity.Index, ambiguity.RecordID, ambiguity.Label)
	}
}

func writeRecords(dir string, records []autotransfer.ExecutionRecord) error {
	file, err := os.Create(filepath.Join(dir, "records.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"id", "contract_id", "scheduled_date", "execution_date", "outcome", "amount", "transaction_id", "failure_reason", "retry_count"}); err != nil {
		return err
	}
	for _, record := range records {
		scheduled := ""
		if !record.ScheduledDate.IsZero() {
			scheduled = autotransfer.DateKey(record.ScheduledDate)
		}
		executed := ""
		if record.ExecutionDate != nil {
			executed = record.ExecutionDate.Format(time.RFC3339)
		}
		if err := writer.Write([]string{
			record.ID,
			record.ContractID,
			scheduled,
			executed,
			string(record.Outcome),
			record.Amount.String(),
			record.TransactionID,
			record.FailureReason,
			strconv.Itoa(record.RetryCount),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeDays(dir string, buckets []reconcile.DayBucket) error {
	file, err := os.Create(filepath.Join(dir, "days.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"day", "records", "success", "failed", "pending"}); err != nil {
		return err
	}
	for _, bucket := range buckets {
		stats := reconcile.ComputeStats(bucket.Records)
		if err := writer.Write([]string{
			bucket.Day,
			strconv.Itoa(stats.Total),
			strconv.Itoa(stats.Success),
			strconv.Itoa(stats.Failed),
			strconv.Itoa(stats.Pending),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
