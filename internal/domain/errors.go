package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPositionClosed    = errors.New("position already closed")
	ErrPortfolioFull     = errors.New("portfolio at capacity")
	ErrNoQuote           = errors.New("no quote available")
	ErrSettlementFailed  = errors.New("settlement failed")
	ErrGlobalStopLoss    = errors.New("global stop-loss breached")
	ErrContextDone       = errors.New("context cancelled")
)
