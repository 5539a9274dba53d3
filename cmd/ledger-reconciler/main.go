package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-sales/internal/config"
	"ms-sales/internal/credit"
	credit_db "ms-sales/internal/credit/db"
	"ms-sales/internal/kafka"
	"ms-sales/internal/logger"
	"ms-sales/internal/models"
	"ms-sales/internal/payment/storage"
	ticket_db "ms-sales/internal/tickets/db"
)

// Follows the credit transaction topic and re-derives each touched account's
// balance from its ledger, flagging any drift from the cached balance.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	appLog, err := logger.New(logger.Options{Dir: cfg.Log.Dir, Prefix: "ledger-reconciler"})
	if err != nil {
		log.Fatalf("❌ Failed to create logger: %v", err)
	}
	defer appLog.Close()

	sqldb, err := sql.Open("postgres", cfg.Database.PostgresDSN())
	if err != nil {
		appLog.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	defer sqldb.Close()
	if err := sqldb.Ping(); err != nil {
		appLog.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	ledger := &credit.Service{
		Store:           &credit_db.DB{Bun: bunDB},
		Catalog:         &ticket_db.DB{Bun: bunDB},
		Payments:        storage.NewPostgreSQLStore(bunDB, appLog),
		Logger:          appLog,
		AllowCreditDebt: cfg.Sale.AllowCreditDebt,
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.CreditTransaction, cfg.Kafka.GroupID, appLog)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLog.Info("APP", fmt.Sprintf("Reconciling accounts from topic %s", cfg.Kafka.Topics.CreditTransaction))
	err = consumer.ConsumeCreditTransactions(ctx, func(ctx context.Context, event models.CreditTransactionEvent) error {
		accountID := event.Transaction.CreditAccountID
		result, err := ledger.Reconcile(ctx, accountID)
		if err != nil {
			return err
		}
		if !result.Consistent {
			appLog.Error("LEDGER", fmt.Sprintf("Account %d drifted: cached %.2f, ledger %.2f", accountID, result.CachedBalance, result.LedgerBalance))
			return nil
		}
		appLog.LogLedger("RECONCILED", accountID, fmt.Sprintf("balance %.2f", result.LedgerBalance))
		return nil
	})
	if err != nil {
		appLog.Fatal("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
	}
	appLog.Info("APP", "Ledger reconciler stopped")
}
