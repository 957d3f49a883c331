package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	schemaPath := flag.String("schema", "./migrations/001_init.sql", "Path to the schema file to apply")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatalf("Failed to read schema file %s: %v", *schemaPath, err)
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(context.Background(), string(schema)); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	fmt.Printf("Schema applied from %s\n", *schemaPath)
}
