package runtime

import "errors"

var (
	// ErrBadSignature indicates the transaction signature does not verify
	// against its public key.
	ErrBadSignature = errors.New("runtime: bad signature")

	// ErrUnknownInstruction indicates an unrecognized instruction kind.
	ErrUnknownInstruction = errors.New("runtime: unknown instruction")

	// ErrMalformed indicates an instruction that cannot be decoded.
	ErrMalformed = errors.New("runtime: malformed instruction")

	// ErrReplayed indicates an identical signed instruction was already executed.
	ErrReplayed = errors.New("runtime: instruction already executed")

	// ErrNilTransaction indicates a nil transaction or missing fields.
	ErrNilTransaction = errors.New("runtime: nil transaction")
)
