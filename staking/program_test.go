package staking

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/store"
	"github.com/bitfsorg/libstake-go/token"
)

const (
	gigaUnits    = 1_000_000_000
	adminRewards = 1_000 * gigaUnits
	epochSeconds = 86400
)

func makeAddr(seed byte) identity.Address {
	var a identity.Address
	for i := range a {
		a[i] = seed
	}
	return a
}

var (
	programID  = makeAddr(0xF0)
	mintAuth   = makeAddr(0x01)
	stakeMint  = makeAddr(0x02)
	rewardMint = makeAddr(0x03)
	admin      = makeAddr(0xAD)
	alice      = makeAddr(0xA1)
	bob        = makeAddr(0xB0)
	carol      = makeAddr(0xC0)
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type testEnv struct {
	p     *Program
	s     store.Store
	clock fakeClock
}

// newRawEnv returns a program with mints created and the admin funded, but
// no registry.
func newRawEnv(t *testing.T) *testEnv {
	t.Helper()
	s := store.NewMemStore()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	p, err := New(ProgramConfig{ProgramID: programID, GenesisAdmin: admin, Store: s, Clock: clock})
	require.NoError(t, err)

	require.NoError(t, s.Update(func(tx store.Tx) error {
		require.NoError(t, token.CreateMint(tx, stakeMint, mintAuth))
		require.NoError(t, token.CreateMint(tx, rewardMint, mintAuth))
		acct, err := token.EnsureAssociatedAccount(tx, admin, rewardMint)
		require.NoError(t, err)
		return token.MintTo(tx, rewardMint, acct.Address, adminRewards, mintAuth)
	}))
	return &testEnv{p: p, s: s, clock: clock}
}

// newEnv returns a fully initialized program.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	e := newRawEnv(t)
	require.NoError(t, e.p.InitializeStakeVault(admin, stakeMint, 10, epochSeconds))
	require.NoError(t, e.p.InitializeRewardVault(admin, rewardMint))
	return e
}

// fund mints stake tokens to who's stake-token account.
func (e *testEnv) fund(t *testing.T, who identity.Address, amount uint64) {
	t.Helper()
	require.NoError(t, e.s.Update(func(tx store.Tx) error {
		acct, err := token.EnsureAssociatedAccount(tx, who, stakeMint)
		if err != nil {
			return err
		}
		return token.MintTo(tx, stakeMint, acct.Address, amount, mintAuth)
	}))
}

func (e *testEnv) balance(t *testing.T, addr identity.Address) uint64 {
	t.Helper()
	var amt uint64
	require.NoError(t, e.s.View(func(tx store.Tx) error {
		var err error
		amt, err = token.Balance(tx, addr)
		return err
	}))
	return amt
}

func (e *testEnv) stakeBalance(t *testing.T, who identity.Address) uint64 {
	return e.balance(t, token.AssociatedAddress(who, stakeMint))
}

func (e *testEnv) rewardBalance(t *testing.T, who identity.Address) uint64 {
	return e.balance(t, token.AssociatedAddress(who, rewardMint))
}

func (e *testEnv) vaults(t *testing.T) VaultBalances {
	t.Helper()
	vb, err := e.p.VaultBalances()
	require.NoError(t, err)
	return vb
}

func (e *testEnv) toggle(t *testing.T, index, reward uint64) *Epoch {
	t.Helper()
	ep, err := e.p.Toggle(admin, index, reward)
	require.NoError(t, err)
	return ep
}

func (e *testEnv) stake(t *testing.T, who identity.Address, index, amount uint64, tier LockTier) {
	t.Helper()
	e.fund(t, who, amount)
	require.NoError(t, e.p.Stake(who, index, amount, tier))
}

func (e *testEnv) settle(t *testing.T, index uint64, who identity.Address) *Settlement {
	t.Helper()
	res, err := e.p.ManageStakerReward(admin, index, who)
	require.NoError(t, err)
	return res
}

func (e *testEnv) stakeOf(t *testing.T, who identity.Address) *UserStake {
	t.Helper()
	us, err := e.p.UserStake(who)
	require.NoError(t, err)
	return us
}

// --- Construction ---

func TestNew_Validate(t *testing.T) {
	s := store.NewMemStore()
	tests := []struct {
		name string
		cfg  ProgramConfig
	}{
		{"no store", ProgramConfig{ProgramID: programID, GenesisAdmin: admin}},
		{"no program id", ProgramConfig{GenesisAdmin: admin, Store: s}},
		{"no admin", ProgramConfig{ProgramID: programID, Store: s}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}

	p, err := New(ProgramConfig{ProgramID: programID, GenesisAdmin: admin, Store: s})
	require.NoError(t, err)
	assert.NotNil(t, p.Clock(), "real clock is the default")
	assert.Equal(t, identity.MustProgramAddress(programID, []byte(identity.SeedConfig)), p.Authority())
	assert.NotEqual(t, p.StakeVault(), p.RewardVault())
}

// --- Configuration registry ---

func TestInitializeStakeVault(t *testing.T) {
	e := newRawEnv(t)

	err := e.p.InitializeStakeVault(alice, stakeMint, 10, epochSeconds)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = e.p.InitializeStakeVault(admin, stakeMint, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	require.NoError(t, e.p.InitializeStakeVault(admin, stakeMint, 10, epochSeconds))

	cfg, err := e.p.Config()
	require.NoError(t, err)
	assert.Equal(t, admin, cfg.Admin)
	assert.Equal(t, stakeMint, cfg.StakeMint)
	assert.Equal(t, uint64(10), cfg.RateBps)
	assert.Equal(t, int64(epochSeconds), cfg.EpochDuration)
	assert.Equal(t, e.p.StakeVault(), cfg.StakeVault)
	assert.False(t, cfg.RewardInitialized)
	assert.Equal(t, uint64(0), e.balance(t, e.p.StakeVault()))

	err = e.p.InitializeStakeVault(admin, stakeMint, 10, epochSeconds)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitializeRewardVault(t *testing.T) {
	e := newRawEnv(t)

	err := e.p.InitializeRewardVault(admin, rewardMint)
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, e.p.InitializeStakeVault(admin, stakeMint, 10, epochSeconds))

	err = e.p.InitializeRewardVault(bob, rewardMint)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, e.p.InitializeRewardVault(admin, rewardMint))
	cfg, err := e.p.Config()
	require.NoError(t, err)
	assert.True(t, cfg.RewardInitialized)
	assert.Equal(t, rewardMint, cfg.RewardMint)
	assert.Equal(t, e.p.RewardVault(), cfg.RewardVault)

	stakers, err := e.p.Stakers()
	require.NoError(t, err)
	assert.Empty(t, stakers)

	err = e.p.InitializeRewardVault(admin, rewardMint)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestUpdateEpochDuration_AppliesToNewEpochsOnly(t *testing.T) {
	e := newEnv(t)
	e.toggle(t, 1, 0)

	assert.ErrorIs(t, e.p.UpdateEpochDuration(alice, 60), ErrUnauthorized)
	assert.ErrorIs(t, e.p.UpdateEpochDuration(admin, -1), ErrInvalidAmount)
	require.NoError(t, e.p.UpdateEpochDuration(admin, 3600))

	old, err := e.p.Epoch(1)
	require.NoError(t, err)
	assert.Equal(t, int64(epochSeconds), old.Duration)

	fresh := e.toggle(t, 2, 0)
	assert.Equal(t, int64(3600), fresh.Duration)
	assert.Equal(t, fresh.ActivatedAt.Add(time.Hour), fresh.EndsAt())
}

func TestTransferAdmin(t *testing.T) {
	e := newEnv(t)

	assert.ErrorIs(t, e.p.TransferAdmin(alice, alice), ErrUnauthorized)
	assert.ErrorIs(t, e.p.TransferAdmin(admin, identity.ZeroAddress), ErrInvalidAdmin)
	require.NoError(t, e.p.TransferAdmin(admin, carol))

	_, err := e.p.Toggle(admin, 1, 0)
	assert.ErrorIs(t, err, ErrUnauthorized, "old admin loses access")

	_, err = e.p.Toggle(carol, 1, 0)
	assert.NoError(t, err)
}

// --- Epoch ledger ---

func TestToggle_CreateFunded(t *testing.T) {
	e := newEnv(t)
	ep := e.toggle(t, 0, 100*gigaUnits)

	assert.True(t, ep.Active)
	assert.Equal(t, uint64(100*gigaUnits), ep.RewardAllotment)
	assert.True(t, ep.ActivatedAt.Equal(e.clock.Now()))
	assert.Equal(t, uint64(100*gigaUnits), e.vaults(t).Reward)
	assert.Equal(t, uint64(adminRewards-100*gigaUnits), e.rewardBalance(t, admin))

	cfg, err := e.p.Config()
	require.NoError(t, err)
	assert.True(t, cfg.HasEpoch)
	assert.Equal(t, uint64(0), cfg.LatestEpoch)
}

func TestToggle_ZeroRewardShell(t *testing.T) {
	e := newEnv(t)
	ep := e.toggle(t, 0, 0)

	assert.True(t, ep.Active)
	assert.Equal(t, uint64(0), ep.RewardAllotment)
	assert.Equal(t, uint64(0), e.vaults(t).Reward)
	assert.Equal(t, uint64(adminRewards), e.rewardBalance(t, admin))
}

func TestToggle_FlipExisting(t *testing.T) {
	e := newEnv(t)
	e.toggle(t, 3, 50)

	ep := e.toggle(t, 3, 999)
	assert.False(t, ep.Active)
	assert.Equal(t, uint64(50), ep.RewardAllotment, "flip keeps the allotment")
	assert.Equal(t, uint64(50), e.vaults(t).Reward, "flip moves no funds")

	ep = e.toggle(t, 3, 0)
	assert.True(t, ep.Active)
	assert.Equal(t, uint64(50), e.vaults(t).Reward)
}

func TestToggle_Errors(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.p.Toggle(alice, 0, 0)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("reward vault missing", func(t *testing.T) {
		e := newRawEnv(t)
		require.NoError(t, e.p.InitializeStakeVault(admin, stakeMint, 10, epochSeconds))
		_, err := e.p.Toggle(admin, 0, 0)
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("index not increasing", func(t *testing.T) {
		e := newEnv(t)
		e.toggle(t, 5, 0)
		_, err := e.p.Toggle(admin, 4, 0)
		assert.ErrorIs(t, err, ErrInvalidEpochIndex)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.p.Toggle(admin, 1, adminRewards+1)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		_, err = e.p.Epoch(1)
		assert.ErrorIs(t, err, ErrEpochNotFound, "failed toggle must not create the epoch")
		assert.Equal(t, uint64(adminRewards), e.rewardBalance(t, admin))

		cfg, err := e.p.Config()
		require.NoError(t, err)
		assert.False(t, cfg.HasEpoch)
	})

	t.Run("admin has no reward account", func(t *testing.T) {
		e := newEnv(t)
		require.NoError(t, e.p.TransferAdmin(admin, carol))
		_, err := e.p.Toggle(carol, 1, 10)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})
}

func TestEpochs_Listed(t *testing.T) {
	e := newEnv(t)
	e.toggle(t, 0, 0)
	e.toggle(t, 2, 10)
	e.toggle(t, 7, 20)

	eps, err := e.p.Epochs()
	require.NoError(t, err)
	require.Len(t, eps, 3)
	assert.Equal(t, []uint64{0, 2, 7}, []uint64{eps[0].Index, eps[1].Index, eps[2].Index})
}
