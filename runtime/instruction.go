package runtime

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/staking"
)

// Kind identifies an instruction.
type Kind uint8

// Instruction kinds.
const (
	KindInitializeStakeVault Kind = iota + 1
	KindInitializeRewardVault
	KindToggle
	KindStake
	KindManageStakerReward
	KindWithdraw
	KindClaim
	KindUpdateEpochDuration
	KindTransferAdmin
)

var kindNames = map[Kind]string{
	KindInitializeStakeVault:  "initialize_stake_vault",
	KindInitializeRewardVault: "initialize_reward_vault",
	KindToggle:                "toggle",
	KindStake:                 "stake",
	KindManageStakerReward:    "manage_staker_reward",
	KindWithdraw:              "withdraw",
	KindClaim:                 "claim",
	KindUpdateEpochDuration:   "update_epoch_duration",
	KindTransferAdmin:         "transfer_admin",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Instruction is one call into the staking program. Only the fields used by
// Kind are encoded:
//
//	initialize_stake_vault   Mint, RateBps, Duration
//	initialize_reward_vault  Mint
//	toggle                   EpochIndex, Amount (reward)
//	stake                    EpochIndex, Amount, Tier
//	manage_staker_reward     EpochIndex, Target (participant)
//	withdraw                 Amount
//	claim                    -
//	update_epoch_duration    Duration
//	transfer_admin           Target (new administrator)
type Instruction struct {
	Kind Kind
	// Nonce distinguishes otherwise identical instructions from the same caller.
	Nonce uint64

	Mint       identity.Address
	RateBps    uint64
	Duration   int64
	EpochIndex uint64
	Amount     uint64
	Tier       staking.LockTier
	Target     identity.Address
}

// MarshalBinary encodes the instruction: kind byte, nonce, then the kind's
// fields in the order listed on Instruction. Integers are big-endian.
func (ins *Instruction) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(ins.Kind))
	putUint64(&buf, ins.Nonce)

	switch ins.Kind {
	case KindInitializeStakeVault:
		buf.Write(ins.Mint[:])
		putUint64(&buf, ins.RateBps)
		putUint64(&buf, uint64(ins.Duration))
	case KindInitializeRewardVault:
		buf.Write(ins.Mint[:])
	case KindToggle:
		putUint64(&buf, ins.EpochIndex)
		putUint64(&buf, ins.Amount)
	case KindStake:
		putUint64(&buf, ins.EpochIndex)
		putUint64(&buf, ins.Amount)
		buf.WriteByte(byte(ins.Tier))
	case KindManageStakerReward:
		putUint64(&buf, ins.EpochIndex)
		buf.Write(ins.Target[:])
	case KindWithdraw:
		putUint64(&buf, ins.Amount)
	case KindClaim:
	case KindUpdateEpochDuration:
		putUint64(&buf, uint64(ins.Duration))
	case KindTransferAdmin:
		buf.Write(ins.Target[:])
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, ins.Kind)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes an instruction written by MarshalBinary.
// Trailing bytes are rejected.
func (ins *Instruction) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	kind, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: empty", ErrMalformed)
	}
	out := Instruction{Kind: Kind(kind)}
	d := decoder{r: r}
	out.Nonce = d.readUint64()

	switch out.Kind {
	case KindInitializeStakeVault:
		out.Mint = d.readAddress()
		out.RateBps = d.readUint64()
		out.Duration = int64(d.readUint64())
	case KindInitializeRewardVault:
		out.Mint = d.readAddress()
	case KindToggle:
		out.EpochIndex = d.readUint64()
		out.Amount = d.readUint64()
	case KindStake:
		out.EpochIndex = d.readUint64()
		out.Amount = d.readUint64()
		out.Tier = staking.LockTier(d.readByte())
	case KindManageStakerReward:
		out.EpochIndex = d.readUint64()
		out.Target = d.readAddress()
	case KindWithdraw:
		out.Amount = d.readUint64()
	case KindClaim:
	case KindUpdateEpochDuration:
		out.Duration = int64(d.readUint64())
	case KindTransferAdmin:
		out.Target = d.readAddress()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownInstruction, out.Kind)
	}
	if d.err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformed, out.Kind, d.err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %s: %d trailing bytes", ErrMalformed, out.Kind, r.Len())
	}
	*ins = out
	return nil
}

// Digest is the SHA-256 hash a caller signs: the program ID followed by the
// encoded instruction.
func Digest(programID identity.Address, ins *Instruction) ([]byte, error) {
	data, err := ins.MarshalBinary()
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write(programID[:])
	h.Write(data)
	return h.Sum(nil), nil
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// decoder reads fixed-width fields and keeps the first error.
type decoder struct {
	r   *bytes.Reader
	err error
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return make([]byte, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = err
	}
	return b
}

func (d *decoder) readUint64() uint64 { return binary.BigEndian.Uint64(d.read(8)) }

func (d *decoder) readByte() byte { return d.read(1)[0] }

func (d *decoder) readAddress() identity.Address {
	var a identity.Address
	copy(a[:], d.read(len(a)))
	return a
}
