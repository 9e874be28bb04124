package main

import (
	"log"
	"os"

	"prediction-chain/internal/config"
	"prediction-chain/internal/database"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// With a file argument, apply that SQL migration; otherwise sync the schema
	if len(os.Args) > 1 {
		path := os.Args[1]
		sqlBytes, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read migration file: %v", err)
		}

		log.Printf("Applying migration: %s", path)
		if err := db.Exec(string(sqlBytes)).Error; err != nil {
			log.Fatalf("Failed to apply migration: %v", err)
		}
	} else {
		log.Println("Syncing schema...")
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Failed to sync schema: %v", err)
		}
	}

	log.Println("✅ Migration applied successfully!")
}
