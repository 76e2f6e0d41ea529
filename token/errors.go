package token

import "errors"

var (
	// ErrInsufficientFunds indicates the source account cannot cover the debit.
	ErrInsufficientFunds = errors.New("token: insufficient funds")

	// ErrAccountNotFound indicates no token account exists at the address.
	ErrAccountNotFound = errors.New("token: account not found")

	// ErrAccountExists indicates a token account already exists at the address.
	ErrAccountExists = errors.New("token: account already exists")

	// ErrAccountMismatch indicates an existing account has a different mint or owner.
	ErrAccountMismatch = errors.New("token: existing account has different mint or owner")

	// ErrMintNotFound indicates the mint has not been created.
	ErrMintNotFound = errors.New("token: mint not found")

	// ErrMintExists indicates the mint already exists.
	ErrMintExists = errors.New("token: mint already exists")

	// ErrMintMismatch indicates source and destination hold different mints.
	ErrMintMismatch = errors.New("token: mint mismatch")

	// ErrOwnerMismatch indicates the signing authority does not own the source account.
	ErrOwnerMismatch = errors.New("token: authority does not own account")

	// ErrZeroAmount indicates a transfer or mint of zero tokens.
	ErrZeroAmount = errors.New("token: amount must be positive")

	// ErrSelfTransfer indicates source and destination are the same account.
	ErrSelfTransfer = errors.New("token: source and destination are the same account")

	// ErrOverflow indicates a balance or supply would exceed 2^64-1.
	ErrOverflow = errors.New("token: balance overflow")
)
