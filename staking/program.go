// Package staking implements an epoch-based staking and reward-distribution
// ledger.
//
// Participants lock stake tokens under one of a fixed set of lock tiers. The
// administrator funds reward epochs and settles each participant once per
// epoch; a participant's credit is the epoch allotment scaled by their share
// of the total lock-weighted stake captured at the epoch's first settlement.
// Tokens are custodied in two vaults owned by a program-derived authority.
//
// Every operation runs in a single store transaction and either applies
// fully or not at all.
package staking

import (
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/store"
	"github.com/bitfsorg/libstake-go/token"
)

var configKey = []byte(identity.SeedConfig)

// ProgramConfig configures a Program.
type ProgramConfig struct {
	// ProgramID seeds every program-derived address.
	ProgramID identity.Address
	// GenesisAdmin is the only caller allowed to initialize the registry.
	GenesisAdmin identity.Address
	Store        store.Store
	Clock        clockwork.Clock
}

// Validate checks required fields and fills defaults.
func (cfg *ProgramConfig) Validate() error {
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if cfg.GenesisAdmin.IsZero() {
		return errors.New("genesis admin is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Program is the staking ledger bound to one store.
type Program struct {
	id           identity.Address
	genesisAdmin identity.Address
	store        store.Store
	clock        clockwork.Clock

	authority   identity.Address
	stakeVault  identity.Address
	rewardVault identity.Address
}

// New creates a Program. Vault and authority addresses are derived from the
// program ID.
func New(cfg ProgramConfig) (*Program, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Program{
		id:           cfg.ProgramID,
		genesisAdmin: cfg.GenesisAdmin,
		store:        cfg.Store,
		clock:        cfg.Clock,
		authority:    identity.MustProgramAddress(cfg.ProgramID, []byte(identity.SeedConfig)),
		stakeVault:   identity.MustProgramAddress(cfg.ProgramID, []byte(identity.SeedVault)),
		rewardVault:  identity.MustProgramAddress(cfg.ProgramID, []byte(identity.SeedReward)),
	}, nil
}

// ID returns the program ID.
func (p *Program) ID() identity.Address { return p.id }

// Authority returns the program-derived address that owns both vaults.
func (p *Program) Authority() identity.Address { return p.authority }

// StakeVault returns the stake vault address.
func (p *Program) StakeVault() identity.Address { return p.stakeVault }

// RewardVault returns the reward vault address.
func (p *Program) RewardVault() identity.Address { return p.rewardVault }

// Store returns the underlying store.
func (p *Program) Store() store.Store { return p.store }

// Clock returns the program clock.
func (p *Program) Clock() clockwork.Clock { return p.clock }

// ---------------------------------------------------------------------------
// Record accessors. All take the caller's transaction.
// ---------------------------------------------------------------------------

func loadConfig(tx store.Tx) (*Config, error) {
	var cfg Config
	if err := tx.Get(store.BucketConfig, configKey, &cfg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func putConfig(tx store.Tx, cfg *Config) error {
	return tx.Put(store.BucketConfig, configKey, cfg)
}

// loadAdminConfig loads the registry and checks caller is its administrator.
func loadAdminConfig(tx store.Tx, caller identity.Address) (*Config, error) {
	cfg, err := loadConfig(tx)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Admin {
		return nil, fmt.Errorf("%w: %s is not the administrator", ErrUnauthorized, caller)
	}
	return cfg, nil
}

func loadEpoch(tx store.Tx, index uint64) (*Epoch, error) {
	var ep Epoch
	if err := tx.Get(store.BucketEpochs, store.Uint64Key(index), &ep); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrEpochNotFound, index)
		}
		return nil, fmt.Errorf("load epoch %d: %w", index, err)
	}
	return &ep, nil
}

func putEpoch(tx store.Tx, ep *Epoch) error {
	return tx.Put(store.BucketEpochs, store.Uint64Key(ep.Index), ep)
}

func loadStake(tx store.Tx, participant identity.Address) (*UserStake, error) {
	var us UserStake
	if err := tx.Get(store.BucketStakes, participant[:], &us); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStakeNotFound, participant)
		}
		return nil, fmt.Errorf("load stake %s: %w", participant, err)
	}
	return &us, nil
}

func putStake(tx store.Tx, participant identity.Address, us *UserStake) error {
	return tx.Put(store.BucketStakes, participant[:], us)
}

// appendIndex adds participant to the end of the stakes index.
func appendIndex(tx store.Tx, participant identity.Address) error {
	n, err := tx.Count(store.BucketIndex)
	if err != nil {
		return err
	}
	return tx.Put(store.BucketIndex, store.Uint64Key(uint64(n)), &indexEntry{Participant: participant})
}

// listIndex returns participants in insertion order.
func listIndex(tx store.Tx) ([]identity.Address, error) {
	var out []identity.Address
	err := tx.ForEach(store.BucketIndex, func(_ []byte, decode func(any) error) error {
		var e indexEntry
		if err := decode(&e); err != nil {
			return err
		}
		out = append(out, e.Participant)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list stakes index: %w", err)
	}
	return out, nil
}

func weightKey(index uint64, participant identity.Address) []byte {
	return store.CompositeKey(store.Uint64Key(index), participant[:])
}

// transfer moves tokens and maps token-level shortfalls onto
// ErrInsufficientFunds. A missing source account holds nothing.
func transfer(tx store.Tx, from, to identity.Address, amount uint64, authority identity.Address) error {
	if _, err := token.GetAccount(tx, from); errors.Is(err, token.ErrAccountNotFound) {
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	if err := token.Transfer(tx, from, to, amount, authority); err != nil {
		if errors.Is(err, token.ErrInsufficientFunds) {
			return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return err
	}
	return nil
}
