// Package runtime hosts the staking program: it verifies signed
// transactions, executes each one atomically against the ledger, journals
// what ran and drives epoch settlement.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/metrics"
	"github.com/bitfsorg/libstake-go/staking"
	"github.com/bitfsorg/libstake-go/store"
)

// Config configures a Runtime.
type Config struct {
	Program *staking.Program
	Logger  *slog.Logger
}

// Validate checks required fields and fills defaults.
func (cfg *Config) Validate() error {
	if cfg.Program == nil {
		return errors.New("program is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Runtime executes transactions one at a time.
type Runtime struct {
	program *staking.Program
	log     *slog.Logger

	mu    sync.Mutex
	nonce atomic.Uint64
}

// New creates a Runtime.
func New(cfg Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runtime{program: cfg.Program, log: cfg.Logger}, nil
}

// Program returns the hosted program.
func (r *Runtime) Program() *staking.Program { return r.program }

// Receipt describes an executed transaction.
type Receipt struct {
	ID         uuid.UUID
	Kind       Kind
	Caller     identity.Address
	ExecutedAt time.Time

	Epoch      *staking.Epoch      // toggle
	Settlement *staking.Settlement // manage_staker_reward
	Claimed    uint64              // claim
}

// JournalEntry is the durable record of an executed transaction, keyed by
// its signed digest.
type JournalEntry struct {
	ID         uuid.UUID
	Kind       Kind
	Caller     identity.Address
	Nonce      uint64
	ExecutedAt time.Time
}

// NextNonce returns a nonce unique within this process.
func (r *Runtime) NextNonce() uint64 {
	return uint64(r.program.Clock().Now().UnixNano()) + r.nonce.Add(1)
}

// Submit verifies tx, executes it against the program and journals it.
// Transactions are applied one at a time; a rejected transaction changes
// nothing.
func (r *Runtime) Submit(ctx context.Context, tx *Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kind := tx.Instruction.Kind.String()
	caller, digest, err := tx.verify(r.program.ID())
	if err != nil {
		metrics.InstructionsTotal.WithLabelValues(kind, "rejected").Inc()
		r.log.Warn("runtime: transaction rejected", "kind", kind, "error", err)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen, err := r.executed(digest)
	if err != nil {
		return nil, err
	}
	if seen {
		metrics.InstructionsTotal.WithLabelValues(kind, "rejected").Inc()
		r.log.Warn("runtime: replayed transaction", "kind", kind, "caller", caller)
		return nil, ErrReplayed
	}

	r.log.Debug("runtime: executing", "kind", kind, "caller", caller, "nonce", tx.Instruction.Nonce)
	start := time.Now()
	rcpt, err := r.dispatch(caller, &tx.Instruction)
	metrics.InstructionDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		r.reportFailure(kind, caller, err)
		return nil, err
	}
	metrics.InstructionsTotal.WithLabelValues(kind, "ok").Inc()

	rcpt.ID = uuid.New()
	rcpt.Kind = tx.Instruction.Kind
	rcpt.Caller = caller
	rcpt.ExecutedAt = r.program.Clock().Now()

	entry := &JournalEntry{
		ID:         rcpt.ID,
		Kind:       rcpt.Kind,
		Caller:     caller,
		Nonce:      tx.Instruction.Nonce,
		ExecutedAt: rcpt.ExecutedAt,
	}
	if err := r.program.Store().Update(func(stx store.Tx) error {
		return stx.Put(store.BucketJournal, digest, entry)
	}); err != nil {
		r.log.Error("runtime: journal write failed", "id", rcpt.ID, "kind", kind, "error", err)
		return rcpt, fmt.Errorf("journal %s: %w", rcpt.ID, err)
	}

	r.observe(rcpt)
	r.log.Info("runtime: executed", "id", rcpt.ID, "kind", kind, "caller", caller)
	return rcpt, nil
}

func (r *Runtime) dispatch(caller identity.Address, ins *Instruction) (*Receipt, error) {
	p := r.program
	rcpt := &Receipt{}
	var err error
	switch ins.Kind {
	case KindInitializeStakeVault:
		err = p.InitializeStakeVault(caller, ins.Mint, ins.RateBps, ins.Duration)
	case KindInitializeRewardVault:
		err = p.InitializeRewardVault(caller, ins.Mint)
	case KindToggle:
		rcpt.Epoch, err = p.Toggle(caller, ins.EpochIndex, ins.Amount)
	case KindStake:
		err = p.Stake(caller, ins.EpochIndex, ins.Amount, ins.Tier)
	case KindManageStakerReward:
		rcpt.Settlement, err = p.ManageStakerReward(caller, ins.EpochIndex, ins.Target)
	case KindWithdraw:
		err = p.Withdraw(caller, ins.Amount)
	case KindClaim:
		rcpt.Claimed, err = p.Claim(caller)
	case KindUpdateEpochDuration:
		err = p.UpdateEpochDuration(caller, ins.Duration)
	case KindTransferAdmin:
		err = p.TransferAdmin(caller, ins.Target)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownInstruction, ins.Kind)
	}
	if err != nil {
		return nil, err
	}
	return rcpt, nil
}

// reportFailure logs a failed instruction. A reward vault that cannot cover
// a claim, or any broken ledger invariant, is an integrity fault.
func (r *Runtime) reportFailure(kind string, caller identity.Address, err error) {
	fault := errors.Is(err, staking.ErrInvariantViolation) ||
		(kind == KindClaim.String() && errors.Is(err, staking.ErrInsufficientFunds))
	if fault {
		metrics.InstructionsTotal.WithLabelValues(kind, "fault").Inc()
		metrics.IntegrityFaultsTotal.Inc()
		r.log.Error("runtime: integrity fault", "kind", kind, "caller", caller, "error", err)
		return
	}
	metrics.InstructionsTotal.WithLabelValues(kind, "rejected").Inc()
	r.log.Warn("runtime: instruction rejected", "kind", kind, "caller", caller, "error", err)
}

func (r *Runtime) observe(rcpt *Receipt) {
	if rcpt.Settlement != nil {
		metrics.SettlementCreditedTotal.Add(float64(rcpt.Settlement.Credited))
	}
	if rcpt.Claimed > 0 {
		metrics.ClaimedTotal.Add(float64(rcpt.Claimed))
	}
	vb, err := r.program.VaultBalances()
	if err != nil {
		return
	}
	metrics.VaultBalance.WithLabelValues("stake").Set(float64(vb.Stake))
	metrics.VaultBalance.WithLabelValues("reward").Set(float64(vb.Reward))
}

func (r *Runtime) executed(digest []byte) (bool, error) {
	var seen bool
	err := r.program.Store().View(func(tx store.Tx) error {
		var err error
		seen, err = tx.Has(store.BucketJournal, digest)
		return err
	})
	return seen, err
}

// Journal returns every executed transaction, oldest first.
func (r *Runtime) Journal() ([]JournalEntry, error) {
	var out []JournalEntry
	err := r.program.Store().View(func(tx store.Tx) error {
		return tx.ForEach(store.BucketJournal, func(_ []byte, decode func(any) error) error {
			var e JournalEntry
			if err := decode(&e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.Before(out[j].ExecutedAt)
		}
		return out[i].Nonce < out[j].Nonce
	})
	return out, nil
}
