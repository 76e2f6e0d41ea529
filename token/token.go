// Package token implements fungible token accounts on top of the ledger
// store: mints, per-owner accounts and authority-checked transfers.
//
// All functions take the caller's store.Tx and never open their own
// transaction, so a transfer commits or rolls back together with the
// instruction that issued it.
package token

import (
	"errors"
	"fmt"
	"math"

	"github.com/bitfsorg/libstake-go/identity"
	"github.com/bitfsorg/libstake-go/store"
)

// ProgramID identifies the token program when deriving associated accounts.
var ProgramID = identity.AddressOfSeed("libstake-token-program")

const (
	mintPrefix    = 'm'
	accountPrefix = 'a'
)

// Mint describes a token type.
type Mint struct {
	Address   identity.Address
	Authority identity.Address // may mint new supply
	Supply    uint64
}

// Account is a balance of one mint held for one owner.
type Account struct {
	Address identity.Address
	Mint    identity.Address
	Owner   identity.Address // authority that may debit this account
	Amount  uint64
}

func mintKey(a identity.Address) []byte    { return store.CompositeKey([]byte{mintPrefix}, a[:]) }
func accountKey(a identity.Address) []byte { return store.CompositeKey([]byte{accountPrefix}, a[:]) }

// AssociatedAddress returns the canonical account address for (owner, mint).
func AssociatedAddress(owner, mint identity.Address) identity.Address {
	return identity.MustProgramAddress(ProgramID, owner[:], mint[:])
}

// CreateMint registers a new mint controlled by authority.
func CreateMint(tx store.Tx, mint, authority identity.Address) error {
	ok, err := tx.Has(store.BucketTokens, mintKey(mint))
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrMintExists, mint)
	}
	return tx.Put(store.BucketTokens, mintKey(mint), &Mint{Address: mint, Authority: authority})
}

// GetMint loads a mint.
func GetMint(tx store.Tx, mint identity.Address) (*Mint, error) {
	var m Mint
	if err := tx.Get(store.BucketTokens, mintKey(mint), &m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMintNotFound, mint)
		}
		return nil, err
	}
	return &m, nil
}

// CreateAccount opens an empty account at addr.
func CreateAccount(tx store.Tx, addr, mint, owner identity.Address) (*Account, error) {
	if _, err := GetMint(tx, mint); err != nil {
		return nil, err
	}
	ok, err := tx.Has(store.BucketTokens, accountKey(addr))
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, addr)
	}
	acct := &Account{Address: addr, Mint: mint, Owner: owner}
	if err := tx.Put(store.BucketTokens, accountKey(addr), acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// EnsureAccount returns the account at addr, creating it if absent. An
// existing account must match mint and owner.
func EnsureAccount(tx store.Tx, addr, mint, owner identity.Address) (*Account, error) {
	acct, err := GetAccount(tx, addr)
	switch {
	case err == nil:
		if acct.Mint != mint || acct.Owner != owner {
			return nil, fmt.Errorf("%w: %s", ErrAccountMismatch, addr)
		}
		return acct, nil
	case errors.Is(err, ErrAccountNotFound):
		return CreateAccount(tx, addr, mint, owner)
	default:
		return nil, err
	}
}

// EnsureAssociatedAccount opens (or returns) owner's canonical account for mint.
func EnsureAssociatedAccount(tx store.Tx, owner, mint identity.Address) (*Account, error) {
	return EnsureAccount(tx, AssociatedAddress(owner, mint), mint, owner)
}

// GetAccount loads the account at addr.
func GetAccount(tx store.Tx, addr identity.Address) (*Account, error) {
	var acct Account
	if err := tx.Get(store.BucketTokens, accountKey(addr), &acct); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
		}
		return nil, err
	}
	return &acct, nil
}

// Balance returns the amount held at addr.
func Balance(tx store.Tx, addr identity.Address) (uint64, error) {
	acct, err := GetAccount(tx, addr)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

// MintTo creates amount new tokens in the account at to. authority must be
// the mint authority.
func MintTo(tx store.Tx, mint, to identity.Address, amount uint64, authority identity.Address) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	m, err := GetMint(tx, mint)
	if err != nil {
		return err
	}
	if m.Authority != authority {
		return fmt.Errorf("%w: mint %s", ErrOwnerMismatch, mint)
	}
	dst, err := GetAccount(tx, to)
	if err != nil {
		return err
	}
	if dst.Mint != mint {
		return fmt.Errorf("%w: account %s holds %s", ErrMintMismatch, to, dst.Mint)
	}
	if m.Supply > math.MaxUint64-amount || dst.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}
	m.Supply += amount
	dst.Amount += amount
	if err := tx.Put(store.BucketTokens, mintKey(mint), m); err != nil {
		return err
	}
	return tx.Put(store.BucketTokens, accountKey(to), dst)
}

// Transfer moves amount from one account to another of the same mint.
// authority must own the source account. Both balances are written in the
// caller's transaction; on any error neither is changed.
func Transfer(tx store.Tx, from, to identity.Address, amount uint64, authority identity.Address) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if from == to {
		return ErrSelfTransfer
	}
	src, err := GetAccount(tx, from)
	if err != nil {
		return err
	}
	dst, err := GetAccount(tx, to)
	if err != nil {
		return err
	}
	if src.Owner != authority {
		return fmt.Errorf("%w: %s", ErrOwnerMismatch, from)
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	if dst.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}

	src.Amount -= amount
	dst.Amount += amount
	if err := tx.Put(store.BucketTokens, accountKey(from), src); err != nil {
		return err
	}
	return tx.Put(store.BucketTokens, accountKey(to), dst)
}
