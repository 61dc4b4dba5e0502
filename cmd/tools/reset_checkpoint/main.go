// Command reset_checkpoint rewinds or clears the indexer's block
// checkpoint so the pipeline re-ingests from an earlier height.
//
// Usage:
//
//	DATABASE_URL=postgres://... reset_checkpoint <height>
//	DATABASE_URL=postgres://... reset_checkpoint clear
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: reset_checkpoint <height|clear>")
		os.Exit(2)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close(ctx)

	if os.Args[1] == "clear" {
		tag, err := conn.Exec(ctx, `DELETE FROM index_state WHERE id = 'block'`)
		if err != nil {
			log.Fatalf("clear checkpoint: %v", err)
		}
		log.Printf("checkpoint cleared (%d row)", tag.RowsAffected())
		return
	}

	height, err := strconv.ParseInt(os.Args[1], 10, 64)
	if err != nil || height < 0 {
		log.Fatalf("invalid height %q", os.Args[1])
	}

	// Plain upsert on purpose: unlike the indexer's monotonic checkpoint
	// write, this tool must be able to move the height backwards.
	_, err = conn.Exec(ctx, `
		INSERT INTO index_state (id, last_height, updated_at)
		VALUES ('block', $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET last_height = EXCLUDED.last_height, updated_at = NOW()`, height)
	if err != nil {
		log.Fatalf("set checkpoint: %v", err)
	}
	log.Printf("checkpoint set to %d", height)
}
