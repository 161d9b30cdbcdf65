// migrate-runs copies the run history from a SQLite store to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/migrate-runs \
//	    -sqlite data/levelforge.db \
//	    -pg-host localhost \
//	    -pg-port 5432 \
//	    -pg-user levelforge \
//	    -pg-password levelforge \
//	    -pg-database levelforge
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/lawnchairsociety/levelforge/internal/runstore"
)

func main() {
	sqlitePath := flag.String("sqlite", "data/levelforge.db", "Path to SQLite database")
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "levelforge", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "levelforge", "PostgreSQL password")
	pgDatabase := flag.String("pg-database", "levelforge", "PostgreSQL database name")
	pgSSLMode := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode")
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()

	log.Println("Run History Migration Tool")
	log.Println("==========================")

	if _, err := os.Stat(*sqlitePath); err != nil {
		log.Fatalf("SQLite database not found: %v", err)
	}

	log.Printf("Opening SQLite database: %s", *sqlitePath)
	src, err := runstore.Open(runstore.SQLite(*sqlitePath))
	if err != nil {
		log.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer src.Close()

	pg := runstore.LocalPostgres()
	pg.Host = *pgHost
	pg.Port = *pgPort
	pg.User = *pgUser
	pg.Password = *pgPassword
	pg.Database = *pgDatabase
	pg.SSLMode = *pgSSLMode

	// Opening runs the schema migrations on the target.
	log.Printf("Opening PostgreSQL database: %s@%s:%d/%s", pg.User, pg.Host, pg.Port, pg.Database)
	dst, err := runstore.Open(runstore.Postgres(pg))
	if err != nil {
		log.Fatalf("Failed to open PostgreSQL database: %v", err)
	}
	defer dst.Close()

	if *dryRun {
		log.Println("DRY RUN MODE - No changes will be made")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats, err := runstore.CopyRuns(ctx, src, dst, *dryRun)
	if err != nil {
		log.Fatalf("Migration failed after %d runs: %v", stats.Runs, err)
	}

	log.Println("==========================")
	log.Printf("Migration complete! Runs: %d, assignments: %d, already present: %d",
		stats.Runs, stats.Assignments, stats.Skipped)
	if *dryRun {
		log.Println("(DRY RUN - No actual changes were made)")
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Copies recorded generation runs from SQLite to PostgreSQL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -sqlite data/levelforge.db -pg-host localhost -pg-user levelforge -pg-password levelforge -pg-database levelforge\n", os.Args[0])
	}
}
