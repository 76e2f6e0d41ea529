package identity

import "errors"

var (
	// ErrInvalidAddress indicates an address is not 32 bytes or not valid base58.
	ErrInvalidAddress = errors.New("identity: invalid address")

	// ErrInvalidPublicKey indicates public key bytes fail to parse.
	ErrInvalidPublicKey = errors.New("identity: invalid public key")

	// ErrInvalidPrivateKey indicates private key bytes are malformed.
	ErrInvalidPrivateKey = errors.New("identity: invalid private key")

	// ErrInvalidSignature indicates a signature fails to parse or verify.
	ErrInvalidSignature = errors.New("identity: invalid signature")

	// ErrInvalidDigest indicates a digest is not 32 bytes.
	ErrInvalidDigest = errors.New("identity: digest must be 32 bytes")

	// ErrDerivationFailed indicates program address derivation failed.
	ErrDerivationFailed = errors.New("identity: program address derivation failed")
)
