package staking

import (
	"fmt"
	"math/big"
	"math/bits"

	"github.com/bitfsorg/libstake-go/identity"
)

// StakeWeight is a participant's lock-weighted stake.
type StakeWeight struct {
	Participant identity.Address
	Weight      uint64
}

// Distribution is one participant's computed reward.
type Distribution struct {
	Participant identity.Address
	Weight      uint64
	Amount      uint64
}

// ShareOf returns floor(allotment × weight ÷ total). weight must not exceed
// total, so the result never exceeds allotment.
func ShareOf(allotment, weight, total uint64) (uint64, error) {
	if total == 0 {
		return 0, ErrZeroStake
	}
	if weight > total {
		return 0, fmt.Errorf("%w: weight %d exceeds total %d", ErrInvariantViolation, weight, total)
	}
	num := new(big.Int).Mul(new(big.Int).SetUint64(allotment), new(big.Int).SetUint64(weight))
	return num.Quo(num, new(big.Int).SetUint64(total)).Uint64(), nil
}

// Distribute splits allotment over weights pro rata with floor division.
// Unlike a payout that hands the remainder to the last entry, the rounding
// dust is returned separately and stays in the reward vault.
func Distribute(allotment uint64, weights []StakeWeight) ([]Distribution, uint64, error) {
	total, err := sumWeights(weights)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, ErrZeroStake
	}

	out := make([]Distribution, len(weights))
	var distributed uint64
	for i, w := range weights {
		amount, err := ShareOf(allotment, w.Weight, total)
		if err != nil {
			return nil, 0, err
		}
		out[i] = Distribution{Participant: w.Participant, Weight: w.Weight, Amount: amount}
		distributed += amount
	}
	return out, allotment - distributed, nil
}

// ValidateDistribution checks that credited amounts never exceed the allotment
// and that dust is below one token unit per participant.
func ValidateDistribution(allotment uint64, dists []Distribution) error {
	var sum uint64
	for _, d := range dists {
		var carry uint64
		sum, carry = bits.Add64(sum, d.Amount, 0)
		if carry != 0 {
			return ErrOverflow
		}
	}
	if sum > allotment {
		return fmt.Errorf("%w: distributed %d exceeds allotment %d", ErrInvariantViolation, sum, allotment)
	}
	if dust := allotment - sum; len(dists) > 0 && dust >= uint64(len(dists)) {
		return fmt.Errorf("%w: dust %d not below participant count %d", ErrInvariantViolation, dust, len(dists))
	}
	return nil
}

func sumWeights(weights []StakeWeight) (uint64, error) {
	var total uint64
	for _, w := range weights {
		var carry uint64
		total, carry = bits.Add64(total, w.Weight, 0)
		if carry != 0 {
			return 0, ErrOverflow
		}
	}
	return total, nil
}

func mulUint64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d × %d", ErrOverflow, a, b)
	}
	return lo, nil
}

func addUint64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}
