package staking

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/store"
	"github.com/bitfsorg/libstake-go/token"
)

// Toggle creates and funds the epoch at index, or flips its active flag if
// it already exists.
//
// On creation index must exceed every earlier epoch index. A non-zero
// rewardAmount is moved from the administrator's reward-token account into
// the reward vault; zero creates an unfunded shell. Flipping never moves
// funds or changes the allotment. The returned epoch is the stored record.
func (p *Program) Toggle(caller identity.Address, index, rewardAmount uint64) (*Epoch, error) {
	var out *Epoch
	err := p.store.Update(func(tx store.Tx) error {
		cfg, err := loadAdminConfig(tx, caller)
		if err != nil {
			return err
		}
		if !cfg.RewardInitialized {
			return fmt.Errorf("%w: reward vault", ErrNotInitialized)
		}

		ep, err := loadEpoch(tx, index)
		switch {
		case err == nil:
			ep.Active = !ep.Active
			out = ep
			return putEpoch(tx, ep)
		case !errors.Is(err, ErrEpochNotFound):
			return err
		}

		if cfg.HasEpoch && index <= cfg.LatestEpoch {
			return fmt.Errorf("%w: %d is not above latest epoch %d", ErrInvalidEpochIndex, index, cfg.LatestEpoch)
		}

		ep = &Epoch{
			Index:           index,
			RewardAllotment: rewardAmount,
			Active:          true,
			ActivatedAt:     p.clock.Now(),
			Duration:        cfg.EpochDuration,
		}

		if rewardAmount > 0 {
			from := token.AssociatedAddress(caller, cfg.RewardMint)
			if err := transfer(tx, from, cfg.RewardVault, rewardAmount, caller); err != nil {
				return fmt.Errorf("fund epoch %d: %w", index, err)
			}
		}

		cfg.HasEpoch = true
		cfg.LatestEpoch = index
		if err := putConfig(tx, cfg); err != nil {
			return err
		}
		out = ep
		return putEpoch(tx, ep)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
