package staking

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitfsorg/libstake-go/identity"
)

// LockTier is a participant's lock commitment, chosen at stake time.
type LockTier uint8

// Lock tiers, shortest first.
const (
	LockWeek LockTier = iota
	LockMonth
	LockQuarter
	LockYear
)

// TierSpec is the lock duration and reward weight of a tier.
type TierSpec struct {
	Duration   time.Duration
	Multiplier uint64
}

const day = 24 * time.Hour

// lockTiers is indexed by LockTier.
var lockTiers = [...]TierSpec{
	LockWeek:    {Duration: 7 * day, Multiplier: 1},
	LockMonth:   {Duration: 30 * day, Multiplier: 2},
	LockQuarter: {Duration: 90 * day, Multiplier: 3},
	LockYear:    {Duration: 365 * day, Multiplier: 4},
}

var tierNames = [...]string{"week", "month", "quarter", "year"}

// Valid reports whether t is a known tier.
func (t LockTier) Valid() bool { return int(t) < len(lockTiers) }

// Spec returns the duration and multiplier for t.
func (t LockTier) Spec() (TierSpec, error) {
	if !t.Valid() {
		return TierSpec{}, fmt.Errorf("%w: %d", ErrInvalidLockTier, t)
	}
	return lockTiers[t], nil
}

func (t LockTier) String() string {
	if !t.Valid() {
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
	return tierNames[t]
}

// ParseLockTier accepts a tier name ("week", "month", "quarter", "year")
// or its numeric value.
func ParseLockTier(s string) (LockTier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range tierNames {
		if s == name {
			return LockTier(i), nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || !LockTier(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLockTier, s)
	}
	return LockTier(n), nil
}

// LockTiers returns every tier in order.
func LockTiers() []LockTier {
	out := make([]LockTier, len(lockTiers))
	for i := range lockTiers {
		out[i] = LockTier(i)
	}
	return out
}

// Config is the protocol's singleton registry record.
type Config struct {
	Admin         identity.Address
	StakeMint     identity.Address
	RewardMint    identity.Address
	RateBps       uint64 // annual rate in basis points; 10 = 0.10%
	EpochDuration int64  // seconds, copied into each new epoch
	StakeVault    identity.Address
	RewardVault   identity.Address

	RewardInitialized bool
	HasEpoch          bool
	LatestEpoch       uint64 // highest index created so far; valid when HasEpoch
	TotalStaked       uint64 // sum of all principals
	CreatedAt         time.Time
}

// Epoch is one reward round.
type Epoch struct {
	Index           uint64
	RewardAllotment uint64
	Active          bool
	ActivatedAt     time.Time
	Duration        int64 // seconds, from Config at creation

	// Captured by the first settlement call and never recomputed.
	SnapshotTaken       bool
	TotalWeightSnapshot uint64
	SnapshotStakers     uint64 // participants with non-zero weight in the snapshot

	SettledCount uint64
	Distributed  uint64 // sum of credited rewards
	Settled      bool   // every snapshot participant has been settled
}

// EndsAt is the nominal end of the epoch's duration.
func (e *Epoch) EndsAt() time.Time {
	return e.ActivatedAt.Add(time.Duration(e.Duration) * time.Second)
}

// Dust is the part of the allotment left undistributed by floor division.
// Only meaningful once Settled.
func (e *Epoch) Dust() uint64 { return e.RewardAllotment - e.Distributed }

// UserStake is a participant's single live stake.
type UserStake struct {
	Owner         identity.Address
	Principal     uint64
	Tier          LockTier
	Multiplier    uint64
	EntryEpoch    uint64
	AccruedReward uint64
	TotalClaimed  uint64
	LastStakedAt  time.Time

	HasSettled       bool
	LastSettledEpoch uint64 // valid when HasSettled
}

// Weight returns principal × multiplier.
func (u *UserStake) Weight() (uint64, error) {
	return mulUint64(u.Principal, u.Multiplier)
}

// indexEntry is one record of the append-only stakes index.
type indexEntry struct {
	Participant identity.Address
}

// weightRecord is a participant's lock-weighted stake as captured in an
// epoch snapshot.
type weightRecord struct {
	Weight uint64
}

// VaultBalances reports the custodied token amounts.
type VaultBalances struct {
	Stake  uint64
	Reward uint64
}
