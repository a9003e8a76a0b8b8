package verification

import "errors"

var (
	// ErrUnknownMethod is returned by Negotiate when a required field's
	// local and peer offers have empty intersection.
	ErrUnknownMethod = errors.New("verification: no common algorithm")
	// ErrUnexpectedMessage marks a message invalid for the current state.
	ErrUnexpectedMessage = errors.New("verification: unexpected message for current state")
	// ErrInvalidMessage marks a structurally invalid inbound message.
	ErrInvalidMessage = errors.New("verification: invalid message")
	// ErrMismatchedCommitment marks a commitment that does not match the
	// peer's revealed ephemeral key.
	ErrMismatchedCommitment = errors.New("verification: commitment mismatch")
	// ErrMismatchedSas marks a user-reported short-code mismatch.
	ErrMismatchedSas = errors.New("verification: short code mismatch")
	// ErrMismatchedKeys marks a MAC attestation failure.
	ErrMismatchedKeys = errors.New("verification: key mismatch")
	// ErrUnknownTransaction is returned by Manager lookups for an absent id.
	ErrUnknownTransaction = errors.New("verification: unknown transaction")
	// ErrTransactionExists is returned by Manager.Put when a non-terminal
	// transaction with the same id is already tracked.
	ErrTransactionExists = errors.New("verification: transaction already exists")
	// ErrManagerClosed is returned by Manager operations after Close.
	ErrManagerClosed = errors.New("verification: manager closed")
)
