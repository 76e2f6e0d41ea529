package staking

import (
	"errors"
	"fmt"
	"time"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/store"
	"github.com/bitfsorg/libstake-go/token"
)

// Stake locks amount stake tokens from the caller's account into the stake
// vault under the given lock tier, for the epoch at index.
//
// A participant holds one live stake. The first call creates it and adds the
// caller to the stakes index; later calls add to the principal, must use the
// same tier while principal remains, and restart the lock from index.
func (p *Program) Stake(caller identity.Address, index, amount uint64, tier LockTier) error {
	if amount == 0 {
		return fmt.Errorf("%w: stake amount must be positive", ErrInvalidAmount)
	}
	spec, err := tier.Spec()
	if err != nil {
		return err
	}

	return p.store.Update(func(tx store.Tx) error {
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		if !cfg.RewardInitialized {
			return fmt.Errorf("%w: stakes index", ErrNotInitialized)
		}

		ep, err := loadEpoch(tx, index)
		if err != nil {
			return err
		}
		if !ep.Active {
			return fmt.Errorf("%w: %d", ErrEpochInactive, index)
		}
		if index != cfg.LatestEpoch {
			return fmt.Errorf("%w: %d, latest is %d", ErrEpochSuperseded, index, cfg.LatestEpoch)
		}

		us, err := loadStake(tx, caller)
		isNew := errors.Is(err, ErrStakeNotFound)
		switch {
		case isNew:
			us = &UserStake{Owner: caller}
		case err != nil:
			return err
		case us.Owner != caller:
			return fmt.Errorf("%w: stake record owned by %s", ErrUnauthorized, us.Owner)
		case us.Principal > 0 && us.Tier != tier:
			return fmt.Errorf("%w: live stake is %s, requested %s", ErrLockConflict, us.Tier, tier)
		}

		principal, err := addUint64(us.Principal, amount)
		if err != nil {
			return err
		}
		// The summed weight is what settlement multiplies; reject early if it cannot be represented.
		if _, err := mulUint64(principal, spec.Multiplier); err != nil {
			return err
		}
		total, err := addUint64(cfg.TotalStaked, amount)
		if err != nil {
			return err
		}

		from := token.AssociatedAddress(caller, cfg.StakeMint)
		if err := transfer(tx, from, cfg.StakeVault, amount, caller); err != nil {
			return fmt.Errorf("stake: %w", err)
		}

		us.Principal = principal
		us.Tier = tier
		us.Multiplier = spec.Multiplier
		us.EntryEpoch = index
		us.LastStakedAt = p.clock.Now()
		if err := putStake(tx, caller, us); err != nil {
			return err
		}
		if isNew {
			if err := appendIndex(tx, caller); err != nil {
				return err
			}
		}

		cfg.TotalStaked = total
		return putConfig(tx, cfg)
	})
}

// Withdraw returns amount of the caller's principal once the lock has
// elapsed. The lock runs from the entry epoch's activation for the tier's
// duration; withdrawing at exactly that instant is allowed.
func (p *Program) Withdraw(caller identity.Address, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: withdraw amount must be positive", ErrInvalidAmount)
	}

	return p.store.Update(func(tx store.Tx) error {
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		us, err := loadStake(tx, caller)
		if err != nil {
			return err
		}
		if us.Owner != caller {
			return fmt.Errorf("%w: stake record owned by %s", ErrUnauthorized, us.Owner)
		}

		unlockAt, err := unlockTime(tx, us)
		if err != nil {
			return err
		}
		if now := p.clock.Now(); now.Before(unlockAt) {
			return fmt.Errorf("%w: unlocks at %s (%s remaining)", ErrLockActive,
				unlockAt.UTC().Format(time.RFC3339), unlockAt.Sub(now).Round(time.Second))
		}
		if amount > us.Principal {
			return fmt.Errorf("%w: have %d, requested %d", ErrInsufficientPrincipal, us.Principal, amount)
		}

		dst, err := token.EnsureAssociatedAccount(tx, caller, cfg.StakeMint)
		if err != nil {
			return err
		}
		if err := transfer(tx, cfg.StakeVault, dst.Address, amount, p.authority); err != nil {
			return fmt.Errorf("withdraw: %w", err)
		}

		us.Principal -= amount
		cfg.TotalStaked -= amount
		if err := putStake(tx, caller, us); err != nil {
			return err
		}
		return putConfig(tx, cfg)
	})
}

// Claim pays the caller's entire accrued reward out of the reward vault and
// returns the amount paid. A reward vault shortfall is reported as
// ErrInsufficientFunds and leaves the accrued balance untouched.
func (p *Program) Claim(caller identity.Address) (uint64, error) {
	var paid uint64
	err := p.store.Update(func(tx store.Tx) error {
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		if !cfg.RewardInitialized {
			return fmt.Errorf("%w: reward vault", ErrNotInitialized)
		}
		us, err := loadStake(tx, caller)
		if err != nil {
			return err
		}
		if us.Owner != caller {
			return fmt.Errorf("%w: stake record owned by %s", ErrUnauthorized, us.Owner)
		}
		if us.AccruedReward == 0 {
			return ErrNothingToClaim
		}

		dst, err := token.EnsureAssociatedAccount(tx, caller, cfg.RewardMint)
		if err != nil {
			return err
		}
		amount := us.AccruedReward
		if err := transfer(tx, cfg.RewardVault, dst.Address, amount, p.authority); err != nil {
			return fmt.Errorf("claim: %w", err)
		}

		us.AccruedReward = 0
		us.TotalClaimed, err = addUint64(us.TotalClaimed, amount)
		if err != nil {
			return err
		}
		paid = amount
		return putStake(tx, caller, us)
	})
	if err != nil {
		return 0, err
	}
	return paid, nil
}

// unlockTime returns when the stake's lock elapses.
func unlockTime(tx store.Tx, us *UserStake) (time.Time, error) {
	spec, err := us.Tier.Spec()
	if err != nil {
		return time.Time{}, err
	}
	ep, err := loadEpoch(tx, us.EntryEpoch)
	if err != nil {
		return time.Time{}, err
	}
	return ep.ActivatedAt.Add(spec.Duration), nil
}
