package transfer

import "errors"

var (
	ErrNotFound          = errors.New("transfer: not found")
	ErrAlreadyExists     = errors.New("transfer: transfer already in flight")
	ErrUnauthorized      = errors.New("transfer: unauthorized")
	ErrInvalidState      = errors.New("transfer: invalid state")
	ErrEmptyPublicKey    = errors.New("transfer: public key required")
	ErrEmptySecret       = errors.New("transfer: encrypted secret required")
	ErrEpochMismatch     = errors.New("transfer: stale transfer epoch")
	ErrNotExpired        = errors.New("transfer: timeout not reached")
	ErrSalesNotStarted   = errors.New("transfer: sales period not started")
	ErrFraudReported     = errors.New("transfer: fraud already reported")
	ErrFraudNotReported  = errors.New("transfer: fraud not reported")
	ErrFraudUndecided    = errors.New("transfer: arbiter could not decide")
	ErrDeferredDisabled  = errors.New("transfer: deferred fraud decisions disabled")
	ErrUnknownCallback   = errors.New("transfer: unknown callback")
	ErrUnknownCollection = errors.New("transfer: unknown collection")
	ErrAssetNotFound     = errors.New("transfer: asset does not exist")
)
