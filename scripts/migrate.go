package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Bootstrap schema for a fresh database. Kept in sync with the gorm models;
// safe to re-run thanks to IF NOT EXISTS.
const bootstrapSQL = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    wallet_address TEXT NOT NULL UNIQUE,
    nickname TEXT NOT NULL UNIQUE,
    total_invested DECIMAL(30,8) NOT NULL DEFAULT 0,
    total_claimed DECIMAL(30,8) NOT NULL DEFAULT 0,
    withdrawable_balance DECIMAL(30,8) NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS markets (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(500) NOT NULL,
    category VARCHAR(50) NOT NULL,
    metadata_cid VARCHAR(255),
    created_by BIGINT NOT NULL REFERENCES users(id),
    resolution_time TIMESTAMPTZ NOT NULL,
    yes_liquidity DECIMAL(30,8) NOT NULL,
    no_liquidity DECIMAL(30,8) NOT NULL,
    resolved BOOLEAN NOT NULL DEFAULT false,
    outcome BOOLEAN,
    active BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    resolved_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_markets_category ON markets(category);
CREATE INDEX IF NOT EXISTS idx_markets_resolved ON markets(resolved);
CREATE INDEX IF NOT EXISTS idx_markets_active ON markets(active);

CREATE TABLE IF NOT EXISTS investments (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    market_id BIGINT NOT NULL REFERENCES markets(id),
    user_id BIGINT NOT NULL REFERENCES users(id),
    amount DECIMAL(30,8) NOT NULL,
    side BOOLEAN NOT NULL,
    entry_price DECIMAL(30,8) NOT NULL,
    expected_votes DECIMAL(30,8) NOT NULL,
    claimed BOOLEAN NOT NULL DEFAULT false,
    is_collateral_based BOOLEAN NOT NULL DEFAULT false,
    parent_market_id BIGINT REFERENCES markets(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    claimed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_investments_market ON investments(market_id);
CREATE INDEX IF NOT EXISTS idx_investments_user ON investments(user_id);
CREATE INDEX IF NOT EXISTS idx_investments_collateral ON investments(is_collateral_based);
CREATE INDEX IF NOT EXISTS idx_investments_parent ON investments(parent_market_id);

CREATE TABLE IF NOT EXISTS collateral_positions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id BIGINT NOT NULL REFERENCES users(id),
    parent_market_id BIGINT NOT NULL REFERENCES markets(id),
    stake DECIMAL(30,8) NOT NULL DEFAULT 0,
    total_used DECIMAL(30,8) NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'OPEN',
    liquidated_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT idx_user_parent UNIQUE (user_id, parent_market_id)
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON collateral_positions(status);

CREATE TABLE IF NOT EXISTS loans (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id BIGINT NOT NULL REFERENCES users(id),
    parent_market_id BIGINT NOT NULL REFERENCES markets(id),
    child_market_id BIGINT NOT NULL REFERENCES markets(id),
    investment_id UUID NOT NULL REFERENCES investments(id),
    principal DECIMAL(30,8) NOT NULL,
    obligation DECIMAL(30,8) NOT NULL,
    repaid_amount DECIMAL(30,8) NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
    issued_at TIMESTAMPTZ NOT NULL,
    settled_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_loans_user ON loans(user_id);
CREATE INDEX IF NOT EXISTS idx_loans_parent ON loans(parent_market_id);
CREATE INDEX IF NOT EXISTS idx_loans_child ON loans(child_market_id);
CREATE INDEX IF NOT EXISTS idx_loans_investment ON loans(investment_id);
CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
CREATE INDEX IF NOT EXISTS idx_loans_issued ON loans(issued_at);

CREATE TABLE IF NOT EXISTS ledger_events (
    id BIGSERIAL PRIMARY KEY,
    type VARCHAR(50) NOT NULL,
    market_id BIGINT,
    user_id BIGINT,
    amount DECIMAL(30,8),
    payload TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_events_type ON ledger_events(type);
CREATE INDEX IF NOT EXISTS idx_events_market ON ledger_events(market_id);
CREATE INDEX IF NOT EXISTS idx_events_user ON ledger_events(user_id);
CREATE INDEX IF NOT EXISTS idx_events_created ON ledger_events(created_at);
`

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Build connection string
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPassword, dbName)

	// Connect to database
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	log.Println("Connected to database successfully")

	// Execute bootstrap
	log.Println("Creating schema...")
	if _, err := db.Exec(bootstrapSQL); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	log.Println("✅ Schema bootstrap completed successfully!")
}
