package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Gsaudx/Advision-sub001/database"
	"github.com/Gsaudx/Advision-sub001/models"
)

// ActorRole identifies who is acting on a wallet
type ActorRole string

const (
	RoleAdvisor ActorRole = "ADVISOR"
	RoleClient  ActorRole = "CLIENT"
)

// WalletAccessGuard decides whether an actor may act on a wallet. It is
// a pure authorization check: no state is mutated.
type WalletAccessGuard struct {
	store *database.Storage
}

// NewWalletAccessGuard creates a new access guard
func NewWalletAccessGuard(store *database.Storage) *WalletAccessGuard {
	return &WalletAccessGuard{store: store}
}

// Authorize returns nil when the actor may act on the wallet: advisors
// may act on wallets of their own clients, clients on wallets linked to
// their own user.
func (g *WalletAccessGuard) Authorize(ctx context.Context, actorID uint, role ActorRole, walletID uint) error {
	var wallet models.Wallet
	err := g.store.DB().WithContext(ctx).First(&wallet, walletID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("wallet %d: %w", walletID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load wallet %d: %w", walletID, err)
	}

	var client models.Client
	err = g.store.DB().WithContext(ctx).First(&client, wallet.ClientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("client %d: %w", wallet.ClientID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load client %d: %w", wallet.ClientID, err)
	}

	switch role {
	case RoleAdvisor:
		if client.AdvisorID == actorID {
			return nil
		}
	case RoleClient:
		if client.UserID == actorID {
			return nil
		}
	default:
		return fmt.Errorf("unknown actor role %q: %w", role, ErrValidation)
	}

	return fmt.Errorf("actor %d may not act on wallet %d: %w", actorID, walletID, ErrForbidden)
}
