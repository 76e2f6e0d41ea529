package staking

import (
	"fmt"
	"time"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/store"
	"github.com/bitfsorg/libstake-go/token"
)

// Config returns the registry record.
func (p *Program) Config() (*Config, error) {
	var cfg *Config
	err := p.store.View(func(tx store.Tx) error {
		var err error
		cfg, err = loadConfig(tx)
		return err
	})
	return cfg, err
}

// Epoch returns the epoch at index.
func (p *Program) Epoch(index uint64) (*Epoch, error) {
	var ep *Epoch
	err := p.store.View(func(tx store.Tx) error {
		var err error
		ep, err = loadEpoch(tx, index)
		return err
	})
	return ep, err
}

// Epochs returns every epoch in index order.
func (p *Program) Epochs() ([]*Epoch, error) {
	var out []*Epoch
	err := p.store.View(func(tx store.Tx) error {
		return tx.ForEach(store.BucketEpochs, func(_ []byte, decode func(any) error) error {
			var ep Epoch
			if err := decode(&ep); err != nil {
				return err
			}
			out = append(out, &ep)
			return nil
		})
	})
	return out, err
}

// UserStake returns participant's stake record.
func (p *Program) UserStake(participant identity.Address) (*UserStake, error) {
	var us *UserStake
	err := p.store.View(func(tx store.Tx) error {
		var err error
		us, err = loadStake(tx, participant)
		return err
	})
	return us, err
}

// Stakers lists the aggregate stakes index in insertion order.
func (p *Program) Stakers() ([]identity.Address, error) {
	var out []identity.Address
	err := p.store.View(func(tx store.Tx) error {
		var err error
		out, err = listIndex(tx)
		return err
	})
	return out, err
}

// UnlockTime returns when participant's stake may be withdrawn.
func (p *Program) UnlockTime(participant identity.Address) (time.Time, error) {
	var t time.Time
	err := p.store.View(func(tx store.Tx) error {
		us, err := loadStake(tx, participant)
		if err != nil {
			return err
		}
		t, err = unlockTime(tx, us)
		return err
	})
	return t, err
}

// VaultBalances returns the stake and reward vault balances. A vault that
// has not been created reads as zero.
func (p *Program) VaultBalances() (VaultBalances, error) {
	var vb VaultBalances
	err := p.store.View(func(tx store.Tx) error {
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		return readVaults(tx, cfg, &vb)
	})
	return vb, err
}

func readVaults(tx store.Tx, cfg *Config, vb *VaultBalances) error {
	var err error
	if vb.Stake, err = token.Balance(tx, cfg.StakeVault); err != nil {
		return fmt.Errorf("stake vault: %w", err)
	}
	if cfg.RewardInitialized {
		if vb.Reward, err = token.Balance(tx, cfg.RewardVault); err != nil {
			return fmt.Errorf("reward vault: %w", err)
		}
	}
	return nil
}

// PreviewSettlement computes what settling every participant for the epoch
// would credit, without writing. Before the epoch's first settlement the
// live weights are used; afterwards the stored snapshot.
func (p *Program) PreviewSettlement(index uint64) ([]Distribution, uint64, error) {
	var (
		dists []Distribution
		dust  uint64
	)
	err := p.store.View(func(tx store.Tx) error {
		ep, err := loadEpoch(tx, index)
		if err != nil {
			return err
		}
		var weights []StakeWeight
		if ep.SnapshotTaken {
			weights, err = snapshotWeights(tx, index)
		} else {
			weights, err = liveWeights(tx)
		}
		if err != nil {
			return err
		}
		dists, dust, err = Distribute(ep.RewardAllotment, weights)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return dists, dust, nil
}

// AuditReport summarizes ledger totals checked by Audit.
type AuditReport struct {
	Participants   int
	TotalPrincipal uint64
	TotalAccrued   uint64
	Vaults         VaultBalances
}

// Audit verifies that the stake vault holds exactly the sum of principals,
// that the registry's running total agrees, that the reward vault covers
// every accrued reward, and that no epoch has distributed more than its
// allotment. Returns ErrInvariantViolation describing the first mismatch.
func (p *Program) Audit() (*AuditReport, error) {
	rep := &AuditReport{}
	err := p.store.View(func(tx store.Tx) error {
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		if err := readVaults(tx, cfg, &rep.Vaults); err != nil {
			return err
		}

		participants, err := listIndex(tx)
		if err != nil {
			return err
		}
		rep.Participants = len(participants)
		for _, addr := range participants {
			us, err := loadStake(tx, addr)
			if err != nil {
				return err
			}
			if rep.TotalPrincipal, err = addUint64(rep.TotalPrincipal, us.Principal); err != nil {
				return err
			}
			if rep.TotalAccrued, err = addUint64(rep.TotalAccrued, us.AccruedReward); err != nil {
				return err
			}
		}

		if rep.TotalPrincipal != rep.Vaults.Stake {
			return fmt.Errorf("%w: principals %d, stake vault %d", ErrInvariantViolation, rep.TotalPrincipal, rep.Vaults.Stake)
		}
		if rep.TotalPrincipal != cfg.TotalStaked {
			return fmt.Errorf("%w: principals %d, registry total %d", ErrInvariantViolation, rep.TotalPrincipal, cfg.TotalStaked)
		}
		if rep.TotalAccrued > rep.Vaults.Reward {
			return fmt.Errorf("%w: accrued %d exceeds reward vault %d", ErrInvariantViolation, rep.TotalAccrued, rep.Vaults.Reward)
		}

		return tx.ForEach(store.BucketEpochs, func(_ []byte, decode func(any) error) error {
			var ep Epoch
			if err := decode(&ep); err != nil {
				return err
			}
			if ep.Distributed > ep.RewardAllotment {
				return fmt.Errorf("%w: epoch %d distributed %d of %d", ErrInvariantViolation, ep.Index, ep.Distributed, ep.RewardAllotment)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}
