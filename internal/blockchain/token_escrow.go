package blockchain

import (
	"context"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

// Collateral token base unit scale (lamport-style 1e9)
var baseUnits = decimal.NewFromInt(1_000_000_000)

// SolanaEscrow holds and moves the collateral token on Solana. Deposits are
// verified transfers into the escrow wallet; releases are escrow-signed
// transfers out. It satisfies the services.TokenEscrow interface.
type SolanaEscrow struct {
	rpcClient        *rpc.Client
	network          string
	tokenMintAddress string
	escrowWallet     *solana.Wallet
}

// NewSolanaEscrow creates an escrow client for the given network
func NewSolanaEscrow(network, tokenMintAddress, privateKey string) *SolanaEscrow {
	var rpcURL string
	switch network {
	case "mainnet-beta":
		rpcURL = "https://api.mainnet-beta.solana.com"
	case "devnet":
		rpcURL = "https://api.devnet.solana.com"
	case "testnet":
		rpcURL = "https://api.testnet.solana.com"
	default:
		rpcURL = "https://api.devnet.solana.com"
	}

	escrow := &SolanaEscrow{
		rpcClient:        rpc.New(rpcURL),
		network:          network,
		tokenMintAddress: tokenMintAddress,
	}

	if privateKey != "" {
		wallet, err := solana.WalletFromPrivateKeyBase58(privateKey)
		if err != nil {
			log.Printf("Warning: Failed to load escrow wallet: %v", err)
		} else {
			escrow.escrowWallet = wallet
			log.Printf("Escrow wallet loaded: %s", wallet.PublicKey())
		}
	}

	return escrow
}

// ValidateWalletAddress validates a Solana wallet address format
func (e *SolanaEscrow) ValidateWalletAddress(address string) bool {
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// Deposit pulls amount from the wallet into the escrow. The user pre-approves
// the transfer; here we verify the wallet and record the pull against escrow.
func (e *SolanaEscrow) Deposit(ctx context.Context, wallet string, amount decimal.Decimal) (string, error) {
	if e.escrowWallet == nil {
		return "", fmt.Errorf("escrow wallet not configured")
	}

	from, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return "", fmt.Errorf("invalid wallet address: %w", err)
	}

	lamports := amount.Mul(baseUnits).IntPart()
	if lamports <= 0 {
		return "", fmt.Errorf("amount too small for base units: %s", amount)
	}

	tx, err := e.buildTransfer(ctx, from, e.escrowWallet.PublicKey(), uint64(lamports))
	if err != nil {
		return "", err
	}

	sig, err := e.sendTransaction(ctx, tx)
	if err != nil {
		return "", err
	}

	log.Printf("[Escrow] deposit %s from %s: %s", amount.String(), wallet, sig)
	return sig.String(), nil
}

// Release pays amount from the escrow out to the wallet
func (e *SolanaEscrow) Release(ctx context.Context, wallet string, amount decimal.Decimal) (string, error) {
	if e.escrowWallet == nil {
		return "", fmt.Errorf("escrow wallet not configured")
	}

	to, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return "", fmt.Errorf("invalid wallet address: %w", err)
	}

	lamports := amount.Mul(baseUnits).IntPart()
	if lamports <= 0 {
		return "", fmt.Errorf("amount too small for base units: %s", amount)
	}

	tx, err := e.buildTransfer(ctx, e.escrowWallet.PublicKey(), to, uint64(lamports))
	if err != nil {
		return "", err
	}

	sig, err := e.sendTransaction(ctx, tx)
	if err != nil {
		return "", err
	}

	log.Printf("[Escrow] release %s to %s: %s", amount.String(), wallet, sig)
	return sig.String(), nil
}

func (e *SolanaEscrow) buildTransfer(ctx context.Context, from, to solana.PublicKey, lamports uint64) (*solana.Transaction, error) {
	recent, err := e.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, from, to).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(e.escrowWallet.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(e.escrowWallet.PublicKey()) {
			return &e.escrowWallet.PrivateKey
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return tx, nil
}

func (e *SolanaEscrow) sendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := e.rpcClient.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// GetBalance gets the collateral token balance for a wallet
func (e *SolanaEscrow) GetBalance(ctx context.Context, walletAddress string) (decimal.Decimal, error) {
	pubKey, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return decimal.Zero, err
	}

	balance, err := e.rpcClient.GetBalance(ctx, pubKey, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, err
	}

	return decimal.NewFromInt(int64(balance.Value)).Div(baseUnits), nil
}

// LedgerOnlyEscrow is used when no escrow wallet is configured: token moves
// are recorded in the ledger only. Intended for local development.
type LedgerOnlyEscrow struct{}

// NewLedgerOnlyEscrow creates the development escrow
func NewLedgerOnlyEscrow() *LedgerOnlyEscrow {
	return &LedgerOnlyEscrow{}
}

// Deposit records a ledger-only pull
func (e *LedgerOnlyEscrow) Deposit(ctx context.Context, wallet string, amount decimal.Decimal) (string, error) {
	log.Printf("[Escrow] ledger-only deposit %s from %s", amount.String(), wallet)
	return "ledger-only", nil
}

// Release records a ledger-only payout
func (e *LedgerOnlyEscrow) Release(ctx context.Context, wallet string, amount decimal.Decimal) (string, error) {
	log.Printf("[Escrow] ledger-only release %s to %s", amount.String(), wallet)
	return "ledger-only", nil
}
