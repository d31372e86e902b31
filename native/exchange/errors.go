package exchange

import "errors"

var (
	ErrNotFound          = errors.New("exchange: order not found")
	ErrAlreadyExists     = errors.New("exchange: order already exists")
	ErrUnauthorized      = errors.New("exchange: unauthorized")
	ErrInvalidState      = errors.New("exchange: invalid order state")
	ErrInvalidPrice      = errors.New("exchange: price must be positive")
	ErrValueMismatch     = errors.New("exchange: paid value does not match price")
	ErrInsufficientFunds = errors.New("exchange: insufficient balance")
	ErrBatchMismatch     = errors.New("exchange: batch lengths do not match")
)
