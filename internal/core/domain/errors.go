package domain

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientDeposit = errors.New("insufficient deposit")
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateCallback   = errors.New("duplicate callback")
	ErrExternalCallFailed  = errors.New("external call failed")
	ErrNotListed           = errors.New("split not listed for sale")
	ErrTransferPending     = errors.New("transfer pending")
	ErrSagaConflict        = errors.New("saga already resolved")
)
