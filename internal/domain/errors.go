package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidPercentage = errors.New("invalid percentage")
	ErrInvalidBid        = errors.New("invalid bid")
	ErrBidTooLow         = errors.New("bid below minimum increment")
	ErrAuctionClosed     = errors.New("auction not open")
	ErrPayoutLocked      = errors.New("payout locked")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateEvent    = errors.New("duplicate webhook event")
	ErrUnknownEvent      = errors.New("unknown webhook event shape")
	ErrBadSignature      = errors.New("signature verification failed")
	ErrRateMismatch      = errors.New("exchange rate does not cover pair")
	ErrTokenExpired      = errors.New("video token expired")
	ErrConflict          = errors.New("conflicting state")
	ErrContextDone       = errors.New("context cancelled")
	ErrLockHeld          = errors.New("lock already held")
)
