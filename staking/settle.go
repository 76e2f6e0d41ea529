package staking

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/store"
)

// Settlement is the outcome of settling one participant for one epoch.
type Settlement struct {
	Epoch       uint64
	Participant identity.Address
	Weight      uint64 // participant's weight in the epoch snapshot
	TotalWeight uint64
	Credited    uint64
	Accrued     uint64 // accrued reward after crediting
	EpochDone   bool   // every snapshot participant is now settled
}

// ManageStakerReward credits participant with their share of the epoch's
// reward allotment. Administrator only; one call per participant per epoch.
//
// The first call for an epoch snapshots every indexed participant's
// principal × multiplier and the total. The snapshot is stored on the epoch
// and reused by every later call for that epoch, so stakes or withdrawals
// made between calls do not change anyone's share. A participant who was not
// in the snapshot settles with zero credit.
func (p *Program) ManageStakerReward(caller identity.Address, index uint64, participant identity.Address) (*Settlement, error) {
	var out *Settlement
	err := p.store.Update(func(tx store.Tx) error {
		if _, err := loadAdminConfig(tx, caller); err != nil {
			return err
		}
		ep, err := loadEpoch(tx, index)
		if err != nil {
			return err
		}
		if !ep.Active {
			return fmt.Errorf("%w: %d", ErrEpochInactive, index)
		}
		us, err := loadStake(tx, participant)
		if err != nil {
			return err
		}
		if us.HasSettled && us.LastSettledEpoch >= index {
			return fmt.Errorf("%w: %s settled through epoch %d", ErrAlreadySettled, participant, us.LastSettledEpoch)
		}

		if !ep.SnapshotTaken {
			if err := takeSnapshot(tx, ep); err != nil {
				return err
			}
		}

		weight, err := snapshotWeight(tx, index, participant)
		if err != nil {
			return err
		}
		credit, err := ShareOf(ep.RewardAllotment, weight, ep.TotalWeightSnapshot)
		if err != nil {
			return err
		}
		if us.AccruedReward, err = addUint64(us.AccruedReward, credit); err != nil {
			return err
		}
		us.HasSettled = true
		us.LastSettledEpoch = index

		ep.Distributed += credit
		if ep.Distributed > ep.RewardAllotment {
			return fmt.Errorf("%w: epoch %d distributed %d of %d", ErrInvariantViolation, index, ep.Distributed, ep.RewardAllotment)
		}
		if weight > 0 {
			ep.SettledCount++
		}
		ep.Settled = ep.SettledCount >= ep.SnapshotStakers

		if err := putStake(tx, participant, us); err != nil {
			return err
		}
		if err := putEpoch(tx, ep); err != nil {
			return err
		}

		out = &Settlement{
			Epoch:       index,
			Participant: participant,
			Weight:      weight,
			TotalWeight: ep.TotalWeightSnapshot,
			Credited:    credit,
			Accrued:     us.AccruedReward,
			EpochDone:   ep.Settled,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// takeSnapshot records every indexed participant's current weight under the
// epoch and sets the epoch's total. Fails with ErrZeroStake, writing nothing
// that survives the transaction, when the total is zero.
func takeSnapshot(tx store.Tx, ep *Epoch) error {
	weights, err := liveWeights(tx)
	if err != nil {
		return err
	}
	total, err := sumWeights(weights)
	if err != nil {
		return err
	}
	if total == 0 {
		return fmt.Errorf("%w: epoch %d", ErrZeroStake, ep.Index)
	}

	var stakers uint64
	for _, w := range weights {
		if w.Weight == 0 {
			continue
		}
		if err := tx.Put(store.BucketWeights, weightKey(ep.Index, w.Participant), &weightRecord{Weight: w.Weight}); err != nil {
			return err
		}
		stakers++
	}

	ep.SnapshotTaken = true
	ep.TotalWeightSnapshot = total
	ep.SnapshotStakers = stakers
	return nil
}

// liveWeights computes principal × multiplier for every indexed participant.
func liveWeights(tx store.Tx) ([]StakeWeight, error) {
	participants, err := listIndex(tx)
	if err != nil {
		return nil, err
	}
	out := make([]StakeWeight, 0, len(participants))
	for _, addr := range participants {
		us, err := loadStake(tx, addr)
		if err != nil {
			return nil, err
		}
		w, err := us.Weight()
		if err != nil {
			return nil, err
		}
		out = append(out, StakeWeight{Participant: addr, Weight: w})
	}
	return out, nil
}

// snapshotWeight returns participant's captured weight for the epoch, or
// zero if they were not part of the snapshot.
func snapshotWeight(tx store.Tx, index uint64, participant identity.Address) (uint64, error) {
	var rec weightRecord
	err := tx.Get(store.BucketWeights, weightKey(index, participant), &rec)
	switch {
	case err == nil:
		return rec.Weight, nil
	case errors.Is(err, store.ErrNotFound):
		return 0, nil
	default:
		return 0, err
	}
}

// snapshotWeights returns every captured weight for the epoch, in index order.
func snapshotWeights(tx store.Tx, index uint64) ([]StakeWeight, error) {
	participants, err := listIndex(tx)
	if err != nil {
		return nil, err
	}
	out := make([]StakeWeight, 0, len(participants))
	for _, addr := range participants {
		w, err := snapshotWeight(tx, index, addr)
		if err != nil {
			return nil, err
		}
		if w > 0 {
			out = append(out, StakeWeight{Participant: addr, Weight: w})
		}
	}
	return out, nil
}
