package identity

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ProgramAddressInfo is the HKDF info string for program-derived addresses.
const ProgramAddressInfo = "libstake-program-address"

// Seeds for the accounts the staking program owns.
const (
	SeedConfig = "config"
	SeedVault  = "vault"
	SeedReward = "reward"
	SeedStake  = "stake"
	SeedUser   = "user"
	SeedEpoch  = "epoch"
)

// ProgramAddress deterministically derives an address owned by programID.
//
//	addr = HKDF-SHA256(IKM = seed_0 || len || seed_1 || len ..., Salt = programID, Info = ProgramAddressInfo)
//
// Each seed is followed by its one-byte length so that ("ab","c") and
// ("a","bc") derive different addresses. No private key exists for the
// result; only the program can authorize moves out of such accounts.
func ProgramAddress(programID Address, seeds ...[]byte) (Address, error) {
	var ikm []byte
	for i, s := range seeds {
		if len(s) > 255 {
			return ZeroAddress, fmt.Errorf("%w: seed %d exceeds 255 bytes", ErrDerivationFailed, i)
		}
		ikm = append(ikm, s...)
		ikm = append(ikm, byte(len(s)))
	}
	if len(ikm) == 0 {
		return ZeroAddress, fmt.Errorf("%w: no seeds", ErrDerivationFailed)
	}

	r := hkdf.New(sha256.New, ikm, programID[:], []byte(ProgramAddressInfo))
	var out Address
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return ZeroAddress, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	return out, nil
}

// MustProgramAddress is ProgramAddress for fixed, known-good seeds.
func MustProgramAddress(programID Address, seeds ...[]byte) Address {
	a, err := ProgramAddress(programID, seeds...)
	if err != nil {
		panic("identity: " + err.Error())
	}
	return a
}
