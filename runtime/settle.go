package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/staking"
)

// SettleReport summarizes a settlement pass over one epoch.
type SettleReport struct {
	Epoch    uint64
	Settled  []*staking.Settlement
	Skipped  []identity.Address // already settled for this epoch or later
	Credited uint64
	Done     bool // every participant in the snapshot has been settled
}

// SettleEpoch submits one admin-signed manage_staker_reward per indexed
// participant. Participants already settled are skipped, so an interrupted
// pass can be rerun. Cancellation is checked between participants; the
// partial report is returned with the error.
func (r *Runtime) SettleEpoch(ctx context.Context, admin *identity.Keypair, index uint64) (*SettleReport, error) {
	stakers, err := r.program.Stakers()
	if err != nil {
		return nil, err
	}
	rep := &SettleReport{Epoch: index}

	for _, participant := range stakers {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		tx, err := Sign(r.program.ID(), admin, Instruction{
			Kind:       KindManageStakerReward,
			Nonce:      r.NextNonce(),
			EpochIndex: index,
			Target:     participant,
		})
		if err != nil {
			return rep, err
		}
		rcpt, err := r.Submit(ctx, tx)
		switch {
		case errors.Is(err, staking.ErrAlreadySettled):
			rep.Skipped = append(rep.Skipped, participant)
			continue
		case err != nil:
			return rep, fmt.Errorf("settle %s for epoch %d: %w", participant, index, err)
		}
		rep.Settled = append(rep.Settled, rcpt.Settlement)
		rep.Credited += rcpt.Settlement.Credited
	}

	ep, err := r.program.Epoch(index)
	if err != nil {
		return rep, err
	}
	rep.Done = ep.Settled
	r.log.Info("runtime: epoch settled", "epoch", index, "settled", len(rep.Settled),
		"skipped", len(rep.Skipped), "credited", rep.Credited, "done", rep.Done)
	return rep, nil
}
