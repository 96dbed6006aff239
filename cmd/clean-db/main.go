package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	ctx := context.Background()

	connStr := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		connStr = os.Args[1]
	}
	if connStr == "" {
		log.Fatal("Usage: clean-db <connection-string> (or set DATABASE_URL)")
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	fmt.Println("Cleaning database...")

	if _, err := db.ExecContext(ctx, "TRUNCATE TABLE sessions"); err != nil {
		log.Fatalf("Failed to truncate sessions: %v", err)
	}
	fmt.Println("✓ Cleared sessions")

	fmt.Println("\n✓✓✓ Database cleaned successfully!")
}
