package runtime

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/staking"
	"github.com/bitfsorg/libstake-go/store"
	"github.com/bitfsorg/libstake-go/token"
)

func fixedAddr(seed byte) identity.Address {
	var a identity.Address
	for i := range a {
		a[i] = seed
	}
	return a
}

var (
	programID  = fixedAddr(0xF0)
	mintAuth   = fixedAddr(0x01)
	stakeMint  = fixedAddr(0x02)
	rewardMint = fixedAddr(0x03)
)

type harness struct {
	rt    *Runtime
	s     store.Store
	clock interface {
		clockwork.Clock
		Advance(time.Duration)
	}
	logs  *bytes.Buffer
	admin *identity.Keypair
	alice *identity.Keypair
	bob   *identity.Keypair
}

func newKeypair(t *testing.T) *identity.Keypair {
	t.Helper()
	kp, err := identity.NewKeypair()
	require.NoError(t, err)
	return kp
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		s:     store.NewMemStore(),
		clock: clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		logs:  &bytes.Buffer{},
		admin: newKeypair(t),
		alice: newKeypair(t),
		bob:   newKeypair(t),
	}
	p, err := staking.New(staking.ProgramConfig{
		ProgramID:    programID,
		GenesisAdmin: h.admin.Address(),
		Store:        h.s,
		Clock:        h.clock,
	})
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h.rt, err = New(Config{Program: p, Logger: log})
	require.NoError(t, err)

	require.NoError(t, h.s.Update(func(tx store.Tx) error {
		require.NoError(t, token.CreateMint(tx, stakeMint, mintAuth))
		require.NoError(t, token.CreateMint(tx, rewardMint, mintAuth))
		acct, err := token.EnsureAssociatedAccount(tx, h.admin.Address(), rewardMint)
		require.NoError(t, err)
		require.NoError(t, token.MintTo(tx, rewardMint, acct.Address, 1_000_000, mintAuth))
		for _, kp := range []*identity.Keypair{h.alice, h.bob} {
			acct, err := token.EnsureAssociatedAccount(tx, kp.Address(), stakeMint)
			require.NoError(t, err)
			require.NoError(t, token.MintTo(tx, stakeMint, acct.Address, 1_000, mintAuth))
		}
		return nil
	}))
	return h
}

func (h *harness) submit(t *testing.T, kp *identity.Keypair, ins Instruction) *Receipt {
	t.Helper()
	rcpt, err := h.try(t, kp, ins)
	require.NoError(t, err)
	return rcpt
}

func (h *harness) try(t *testing.T, kp *identity.Keypair, ins Instruction) (*Receipt, error) {
	t.Helper()
	ins.Nonce = h.rt.NextNonce()
	tx, err := Sign(programID, kp, ins)
	require.NoError(t, err)
	return h.rt.Submit(context.Background(), tx)
}

// initialized brings the ledger to an open epoch 0 funded with reward.
func (h *harness) initialized(t *testing.T, reward uint64) {
	t.Helper()
	h.submit(t, h.admin, Instruction{Kind: KindInitializeStakeVault, Mint: stakeMint, RateBps: 10, Duration: 86400})
	h.submit(t, h.admin, Instruction{Kind: KindInitializeRewardVault, Mint: rewardMint})
	h.submit(t, h.admin, Instruction{Kind: KindToggle, EpochIndex: 0, Amount: reward})
}

// --- Submit tests ---

func TestSubmit_FullLifecycle(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, 300)

	h.submit(t, h.alice, Instruction{Kind: KindStake, EpochIndex: 0, Amount: 200, Tier: staking.LockWeek})
	h.submit(t, h.bob, Instruction{Kind: KindStake, EpochIndex: 0, Amount: 100, Tier: staking.LockWeek})

	rep, err := h.rt.SettleEpoch(context.Background(), h.admin, 0)
	require.NoError(t, err)
	assert.Len(t, rep.Settled, 2)
	assert.Equal(t, uint64(300), rep.Credited)
	assert.True(t, rep.Done)

	rcpt := h.submit(t, h.alice, Instruction{Kind: KindClaim})
	assert.Equal(t, uint64(200), rcpt.Claimed)
	assert.Equal(t, h.alice.Address(), rcpt.Caller)
	assert.Equal(t, KindClaim, rcpt.Kind)

	_, err = h.try(t, h.alice, Instruction{Kind: KindWithdraw, Amount: 200})
	assert.ErrorIs(t, err, staking.ErrLockActive)

	h.clock.Advance(7 * 24 * time.Hour)
	h.submit(t, h.alice, Instruction{Kind: KindWithdraw, Amount: 200})

	report, err := h.rt.Program().Audit()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), report.TotalPrincipal)
	assert.Equal(t, uint64(100), report.TotalAccrued)

	journal, err := h.rt.Journal()
	require.NoError(t, err)
	// 3 setup + 2 stakes + 2 settlements + claim + withdraw.
	assert.Len(t, journal, 9)
	assert.Equal(t, KindInitializeStakeVault, journal[0].Kind)
	assert.Equal(t, KindWithdraw, journal[len(journal)-1].Kind)
}

func TestSubmit_ToggleAndTransferAdmin(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, 0)

	rcpt := h.submit(t, h.admin, Instruction{Kind: KindToggle, EpochIndex: 4, Amount: 50})
	require.NotNil(t, rcpt.Epoch)
	assert.Equal(t, uint64(4), rcpt.Epoch.Index)
	assert.True(t, rcpt.Epoch.Active)

	h.submit(t, h.admin, Instruction{Kind: KindUpdateEpochDuration, Duration: 3600})
	h.submit(t, h.admin, Instruction{Kind: KindTransferAdmin, Target: h.bob.Address()})

	_, err := h.try(t, h.admin, Instruction{Kind: KindToggle, EpochIndex: 4})
	assert.ErrorIs(t, err, staking.ErrUnauthorized)

	rcpt = h.submit(t, h.bob, Instruction{Kind: KindToggle, EpochIndex: 4})
	assert.False(t, rcpt.Epoch.Active)
}

func TestSubmit_BadSignature(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, 0)

	tx, err := Sign(programID, h.alice, Instruction{Kind: KindStake, Nonce: 1, Amount: 1})
	require.NoError(t, err)
	tx.Instruction.Amount = 500

	_, err = h.rt.Submit(context.Background(), tx)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = h.rt.Program().UserStake(h.alice.Address())
	assert.ErrorIs(t, err, staking.ErrStakeNotFound)
}

func TestSubmit_SignedForOtherProgram(t *testing.T) {
	h := newHarness(t)
	tx, err := Sign(fixedAddr(0xEE), h.admin, Instruction{Kind: KindInitializeRewardVault, Mint: rewardMint})
	require.NoError(t, err)
	_, err = h.rt.Submit(context.Background(), tx)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSubmit_Replay(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, 0)

	tx, err := Sign(programID, h.alice, Instruction{Kind: KindStake, Nonce: 42, Amount: 10})
	require.NoError(t, err)
	_, err = h.rt.Submit(context.Background(), tx)
	require.NoError(t, err)

	_, err = h.rt.Submit(context.Background(), tx)
	assert.ErrorIs(t, err, ErrReplayed)

	us, err := h.rt.Program().UserStake(h.alice.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), us.Principal)
}

func TestSubmit_RejectionNotJournaled(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, 0)

	_, err := h.try(t, h.alice, Instruction{Kind: KindToggle, EpochIndex: 1})
	assert.ErrorIs(t, err, staking.ErrUnauthorized)
	assert.Contains(t, h.logs.String(), "instruction rejected")

	journal, err := h.rt.Journal()
	require.NoError(t, err)
	assert.Len(t, journal, 3)
}

func TestSubmit_ClaimShortfallIsFault(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, 100)
	h.submit(t, h.alice, Instruction{Kind: KindStake, Amount: 10})
	_, err := h.rt.SettleEpoch(context.Background(), h.admin, 0)
	require.NoError(t, err)

	p := h.rt.Program()
	require.NoError(t, h.s.Update(func(tx store.Tx) error {
		return token.Transfer(tx, p.RewardVault(), token.AssociatedAddress(h.admin.Address(), rewardMint), 100, p.Authority())
	}))

	_, err = h.try(t, h.alice, Instruction{Kind: KindClaim})
	assert.ErrorIs(t, err, staking.ErrInsufficientFunds)
	assert.Contains(t, h.logs.String(), "level=ERROR")
	assert.Contains(t, h.logs.String(), "integrity fault")
}

func TestSubmit_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.rt.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilTransaction)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tx, err := Sign(programID, h.admin, Instruction{Kind: KindClaim})
	require.NoError(t, err)
	_, err = h.rt.Submit(ctx, tx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = Sign(programID, h.admin, Instruction{Kind: Kind(99)})
	assert.ErrorIs(t, err, ErrUnknownInstruction)

	_, err = New(Config{})
	assert.Error(t, err)
}

// --- SettleEpoch tests ---

func TestSettleEpoch_Rerun(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, 90)
	h.submit(t, h.alice, Instruction{Kind: KindStake, Amount: 20, Tier: staking.LockMonth})
	h.submit(t, h.bob, Instruction{Kind: KindStake, Amount: 50, Tier: staking.LockWeek})

	// Settle only alice first, as an interrupted pass would.
	rcpt := h.submit(t, h.admin, Instruction{Kind: KindManageStakerReward, EpochIndex: 0, Target: h.alice.Address()})
	assert.Equal(t, uint64(40), rcpt.Settlement.Credited)

	rep, err := h.rt.SettleEpoch(context.Background(), h.admin, 0)
	require.NoError(t, err)
	assert.Equal(t, []identity.Address{h.alice.Address()}, rep.Skipped)
	require.Len(t, rep.Settled, 1)
	assert.Equal(t, uint64(50), rep.Settled[0].Credited)
	assert.True(t, rep.Done)

	rep, err = h.rt.SettleEpoch(context.Background(), h.admin, 0)
	require.NoError(t, err)
	assert.Len(t, rep.Skipped, 2)
	assert.Empty(t, rep.Settled)
}

func TestSettleEpoch_Cancelled(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, 10)
	h.submit(t, h.alice, Instruction{Kind: KindStake, Amount: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := h.rt.SettleEpoch(ctx, h.admin, 0)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Empty(t, rep.Settled)
}

func TestSettleEpoch_ZeroStake(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, 10)
	h.submit(t, h.alice, Instruction{Kind: KindStake, Amount: 1})
	h.clock.Advance(7 * 24 * time.Hour)
	h.submit(t, h.alice, Instruction{Kind: KindWithdraw, Amount: 1})

	_, err := h.rt.SettleEpoch(context.Background(), h.admin, 0)
	assert.ErrorIs(t, err, staking.ErrZeroStake)
}

func TestSettleEpoch_NonAdmin(t *testing.T) {
	h := newHarness(t)
	h.initialized(t, 10)
	h.submit(t, h.alice, Instruction{Kind: KindStake, Amount: 1})

	_, err := h.rt.SettleEpoch(context.Background(), h.bob, 0)
	assert.ErrorIs(t, err, staking.ErrUnauthorized)
}
