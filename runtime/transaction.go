package runtime

import (
	"fmt"

	"github.com/bitfsorg/libstake-go/identity"
)

// Transaction is a signed instruction. PubKey is the caller's compressed
// secp256k1 key; the caller's address is derived from it.
type Transaction struct {
	Instruction Instruction
	PubKey      []byte
	Signature   []byte // DER over Digest(programID, &Instruction)
}

// Sign builds a transaction for ins signed by kp.
func Sign(programID identity.Address, kp *identity.Keypair, ins Instruction) (*Transaction, error) {
	digest, err := Digest(programID, &ins)
	if err != nil {
		return nil, err
	}
	sig, err := kp.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", ins.Kind, err)
	}
	return &Transaction{Instruction: ins, PubKey: kp.PublicKey(), Signature: sig}, nil
}

// verify checks the signature and returns the caller address and digest.
func (tx *Transaction) verify(programID identity.Address) (identity.Address, []byte, error) {
	digest, err := Digest(programID, &tx.Instruction)
	if err != nil {
		return identity.Address{}, nil, err
	}
	caller, err := identity.Verify(tx.PubKey, digest, tx.Signature)
	if err != nil {
		return identity.Address{}, nil, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return caller, digest, nil
}
