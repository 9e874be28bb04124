package services

import (
	"context"
	"errors"
	"fmt"

	"prediction-chain/internal/models"
	"prediction-chain/internal/repository"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserService handles wallet-based identity and the per-user chain aggregate
type UserService struct {
	db   *gorm.DB
	repo *repository.ChainRepository
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB, repo *repository.ChainRepository) *UserService {
	return &UserService{db: db, repo: repo}
}

// LoginWithWallet finds or creates the user for a wallet address. The address
// must be a valid base58 public key; on-chain signature verification is the
// identity gate in front of this call.
func (s *UserService) LoginWithWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	if _, err := base58.Decode(walletAddress); err != nil || walletAddress == "" {
		return nil, fmt.Errorf("invalid wallet address: %w", err)
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("wallet_address = ?", walletAddress).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			WalletAddress:       walletAddress,
			Nickname:            defaultNickname(walletAddress),
			TotalInvested:       decimal.Zero,
			TotalClaimed:        decimal.Zero,
			WithdrawableBalance: decimal.Zero,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		return &user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	return &user, nil
}

func defaultNickname(walletAddress string) string {
	if len(walletAddress) <= 8 {
		return "trader_" + walletAddress
	}
	return "trader_" + walletAddress[:4] + walletAddress[len(walletAddress)-4:]
}

// GetByID retrieves a user by id
func (s *UserService) GetByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// GetUserChain builds the aggregate chain view for one user
func (s *UserService) GetUserChain(ctx context.Context, userID uint) (*models.UserChainData, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	marketIDs, err := s.repo.InvestedMarketIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.UserChainData{
		UserID:              user.ID,
		WalletAddress:       user.WalletAddress,
		PredictionIDs:       marketIDs,
		TotalInvested:       user.TotalInvested,
		TotalClaimed:        user.TotalClaimed,
		WithdrawableBalance: user.WithdrawableBalance,
	}, nil
}
