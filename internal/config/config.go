package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Protocol ProtocolConfig
	Solana   SolanaConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret string
}

// ProtocolConfig holds the economic parameters of the collateral ledger
type ProtocolConfig struct {
	CollateralRatio  decimal.Decimal // r: fraction of a stake that may be borrowed against
	LoanFeeRate      decimal.Decimal // flat per-hop origination fee, e.g. 0.05
	MinimumLiquidity decimal.Decimal // floor for a market's initial YES+NO deposit
	OracleWallet     string          // wallet allowed to resolve any market
}

// SolanaConfig holds collateral-token settings
type SolanaConfig struct {
	Network                string
	TokenMintAddress       string
	EscrowWalletPrivateKey string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	collateralRatio, err := decimal.NewFromString(getEnv("COLLATERAL_RATIO", "0.6"))
	if err != nil {
		return nil, fmt.Errorf("invalid COLLATERAL_RATIO: %w", err)
	}
	loanFeeRate, err := decimal.NewFromString(getEnv("LOAN_FEE_RATE", "0.05"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOAN_FEE_RATE: %w", err)
	}
	minLiquidity, err := decimal.NewFromString(getEnv("MINIMUM_LIQUIDITY", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MINIMUM_LIQUIDITY: %w", err)
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "prediction_chain"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		App: AppConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Protocol: ProtocolConfig{
			CollateralRatio:  collateralRatio,
			LoanFeeRate:      loanFeeRate,
			MinimumLiquidity: minLiquidity,
			OracleWallet:     getEnv("ORACLE_WALLET", ""),
		},
		Solana: SolanaConfig{
			Network:                getEnv("SOLANA_NETWORK", "devnet"),
			TokenMintAddress:       getEnv("TOKEN_MINT_ADDRESS", ""),
			EscrowWalletPrivateKey: getEnv("ESCROW_WALLET_PRIVATE_KEY", ""),
		},
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if config.Protocol.CollateralRatio.LessThanOrEqual(decimal.Zero) ||
		config.Protocol.CollateralRatio.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("COLLATERAL_RATIO must be in (0, 1)")
	}

	return config, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
