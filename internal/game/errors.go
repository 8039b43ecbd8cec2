package game

import "errors"

var (
	ErrNoActiveGame         = errors.New("no active game")
	ErrInsufficientAttempts = errors.New("no tries remaining")
	ErrUnconfirmedEntryFee  = errors.New("entry fee not confirmed")
	ErrLedgerTx             = errors.New("ledger transaction failed")
	ErrDesync               = errors.New("ledger round does not match local game")
	ErrGameStillActive      = errors.New("ledger round still active")
	ErrResponderFailed      = errors.New("responder failed")
	ErrNotConfigured        = errors.New("operator credential not configured")
)
