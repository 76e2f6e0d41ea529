package staking

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/store"
	"github.com/bitfsorg/libstake-go/token"
)

// InitializeStakeVault creates the registry and an empty stake vault for
// stakeMint. Only the genesis administrator may call it, once.
func (p *Program) InitializeStakeVault(caller, stakeMint identity.Address, rateBps uint64, epochDuration int64) error {
	if caller != p.genesisAdmin {
		return fmt.Errorf("%w: %s is not the genesis administrator", ErrUnauthorized, caller)
	}
	if epochDuration <= 0 {
		return fmt.Errorf("%w: epoch duration must be positive, got %d", ErrInvalidAmount, epochDuration)
	}

	return p.store.Update(func(tx store.Tx) error {
		_, err := loadConfig(tx)
		switch {
		case err == nil:
			return ErrAlreadyInitialized
		case !errors.Is(err, ErrNotInitialized):
			return err
		}

		if _, err := token.EnsureAccount(tx, p.stakeVault, stakeMint, p.authority); err != nil {
			return fmt.Errorf("create stake vault: %w", err)
		}

		return putConfig(tx, &Config{
			Admin:         caller,
			StakeMint:     stakeMint,
			RateBps:       rateBps,
			EpochDuration: epochDuration,
			StakeVault:    p.stakeVault,
			CreatedAt:     p.clock.Now(),
		})
	})
}

// InitializeRewardVault creates the reward vault for rewardMint and opens the
// aggregate stakes index.
func (p *Program) InitializeRewardVault(caller, rewardMint identity.Address) error {
	return p.store.Update(func(tx store.Tx) error {
		cfg, err := loadAdminConfig(tx, caller)
		if err != nil {
			return err
		}
		if cfg.RewardInitialized {
			return ErrAlreadyInitialized
		}

		if _, err := token.EnsureAccount(tx, p.rewardVault, rewardMint, p.authority); err != nil {
			return fmt.Errorf("create reward vault: %w", err)
		}

		cfg.RewardMint = rewardMint
		cfg.RewardVault = p.rewardVault
		cfg.RewardInitialized = true
		return putConfig(tx, cfg)
	})
}

// UpdateEpochDuration changes the duration given to epochs created after
// this call. Existing epochs keep theirs.
func (p *Program) UpdateEpochDuration(caller identity.Address, duration int64) error {
	if duration <= 0 {
		return fmt.Errorf("%w: epoch duration must be positive, got %d", ErrInvalidAmount, duration)
	}
	return p.store.Update(func(tx store.Tx) error {
		cfg, err := loadAdminConfig(tx, caller)
		if err != nil {
			return err
		}
		cfg.EpochDuration = duration
		return putConfig(tx, cfg)
	})
}

// TransferAdmin hands the administrator role to newAdmin.
func (p *Program) TransferAdmin(caller, newAdmin identity.Address) error {
	if newAdmin.IsZero() {
		return ErrInvalidAdmin
	}
	return p.store.Update(func(tx store.Tx) error {
		cfg, err := loadAdminConfig(tx, caller)
		if err != nil {
			return err
		}
		cfg.Admin = newAdmin
		return putConfig(tx, cfg)
	})
}
