package ledger

import "errors"

// Sentinel errors shared by the resolver and composer.  Handlers compare
// against these with errors.Is to choose an HTTP status; none of the
// messages is ever written into a response body.

// ErrAccountNotFound is returned when a required ledger account does not
// exist (sender wallet, token account or mint).
var ErrAccountNotFound = errors.New("account not found")

// ErrNoMetadata is returned when a mint has no metadata record.  The
// resolver treats it as "not a member of any collection" rather than as a
// failure.
var ErrNoMetadata = errors.New("no metadata for mint")

// ErrAccountNotInitialized is returned when a token account exists but has
// not been initialized.
var ErrAccountNotInitialized = errors.New("token account not initialized")

// ErrAccountFrozen is returned when a token account has been frozen by the
// mint's freeze authority and cannot move tokens.
var ErrAccountFrozen = errors.New("token account frozen")

// ErrMintNotInitialized is returned when the referenced mint account is not
// an initialized mint.
var ErrMintNotInitialized = errors.New("mint not initialized")

// ErrInsufficientFunds is returned when the sender's balance does not cover
// the requested transfer amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrNoUsesRemaining is returned when a ticket token has no redemptions
// left to consume.
var ErrNoUsesRemaining = errors.New("no uses remaining")
