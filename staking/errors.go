package staking

import "errors"

var (
	// ErrUnauthorized indicates the caller may not perform the operation.
	ErrUnauthorized = errors.New("staking: unauthorized")

	// ErrAlreadyInitialized indicates the registry or a vault already exists.
	ErrAlreadyInitialized = errors.New("staking: already initialized")

	// ErrNotInitialized indicates the registry or reward vault does not exist yet.
	ErrNotInitialized = errors.New("staking: not initialized")

	// ErrInvalidAmount indicates a zero or out-of-range amount or duration.
	ErrInvalidAmount = errors.New("staking: invalid amount")

	// ErrInsufficientFunds indicates a token account cannot cover a debit.
	// Raised by Claim it means settlement promised more than the reward vault holds.
	ErrInsufficientFunds = errors.New("staking: insufficient funds")

	// ErrInsufficientPrincipal indicates a withdrawal larger than the staked principal.
	ErrInsufficientPrincipal = errors.New("staking: insufficient principal")

	// ErrLockActive indicates the stake's lock period has not elapsed.
	ErrLockActive = errors.New("staking: lock period still active")

	// ErrLockConflict indicates a top-up with a different lock tier than the live stake.
	ErrLockConflict = errors.New("staking: lock tier conflicts with existing stake")

	// ErrAlreadySettled indicates the participant was already settled for this epoch or a later one.
	ErrAlreadySettled = errors.New("staking: reward already settled")

	// ErrZeroStake indicates settlement found no lock-weighted stake to distribute over.
	ErrZeroStake = errors.New("staking: total weighted stake is zero")

	// ErrNothingToClaim indicates the participant has no accrued reward.
	ErrNothingToClaim = errors.New("staking: nothing to claim")

	// ErrInvalidEpochIndex indicates a new epoch index is not above the latest one.
	ErrInvalidEpochIndex = errors.New("staking: invalid epoch index")

	// ErrEpochNotFound indicates no epoch exists at the index.
	ErrEpochNotFound = errors.New("staking: epoch not found")

	// ErrEpochInactive indicates the epoch is toggled closed.
	ErrEpochInactive = errors.New("staking: epoch is not active")

	// ErrEpochSuperseded indicates a newer epoch has been created.
	ErrEpochSuperseded = errors.New("staking: epoch superseded by a newer epoch")

	// ErrInvalidLockTier indicates an unknown lock period.
	ErrInvalidLockTier = errors.New("staking: invalid lock tier")

	// ErrStakeNotFound indicates the participant has no stake record.
	ErrStakeNotFound = errors.New("staking: stake not found")

	// ErrInvalidAdmin indicates an empty administrator address.
	ErrInvalidAdmin = errors.New("staking: invalid administrator address")

	// ErrOverflow indicates an amount or weight exceeds 2^64-1.
	ErrOverflow = errors.New("staking: arithmetic overflow")

	// ErrInvariantViolation indicates ledger and vault balances disagree.
	ErrInvariantViolation = errors.New("staking: ledger invariant violated")
)
