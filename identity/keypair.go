package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// DigestSize is the size of a message digest accepted by Sign and Verify.
const DigestSize = 32

// Keypair is a secp256k1 signing key together with its address.
type Keypair struct {
	priv *ec.PrivateKey
	addr Address
}

// NewKeypair generates a fresh random key pair.
func NewKeypair() (*Keypair, error) {
	priv, err := ec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	return keypairFrom(priv), nil
}

// KeypairFromBytes restores a key pair from a 32-byte private scalar.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidPrivateKey, len(b))
	}
	priv, _ := ec.PrivateKeyFromBytes(b)
	return keypairFrom(priv), nil
}

// KeypairFromHex restores a key pair from a hex-encoded private scalar.
// Surrounding whitespace is ignored so key files may end in a newline.
func KeypairFromHex(s string) (*Keypair, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	return KeypairFromBytes(b)
}

func keypairFrom(priv *ec.PrivateKey) *Keypair {
	return &Keypair{priv: priv, addr: AddressOf(priv.PubKey())}
}

// Address returns the address controlled by this key.
func (k *Keypair) Address() Address { return k.addr }

// PublicKey returns the compressed public key bytes.
func (k *Keypair) PublicKey() []byte { return k.priv.PubKey().Compressed() }

// Hex returns the hex-encoded private scalar.
func (k *Keypair) Hex() string { return hex.EncodeToString(k.priv.Serialize()) }

// Sign signs a 32-byte digest and returns the DER-encoded signature.
func (k *Keypair) Sign(digest []byte) ([]byte, error) {
	if len(digest) != DigestSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDigest, len(digest))
	}
	sig, err := k.priv.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return sig.Serialize(), nil
}

// Verify checks a DER signature over digest against a compressed public key
// and returns the signer's address.
func Verify(pubKey, digest, sig []byte) (Address, error) {
	if len(digest) != DigestSize {
		return ZeroAddress, fmt.Errorf("%w: got %d", ErrInvalidDigest, len(digest))
	}
	pub, err := ec.PublicKeyFromBytes(pubKey)
	if err != nil {
		return ZeroAddress, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	parsed, err := ec.ParseDERSignature(sig)
	if err != nil {
		return ZeroAddress, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !parsed.Verify(digest, pub) {
		return ZeroAddress, ErrInvalidSignature
	}
	return AddressOf(pub), nil
}
