package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the trading, DCA and analytics services.
var (
	ErrInsufficientPosition    = errors.New("insufficient position")
	ErrUnknownMarket           = errors.New("unknown market")
	ErrStalePriceUnavailable   = errors.New("no price available at or before requested time")
	ErrDuplicateDailyExecution = errors.New("dca already executed today")
	ErrMarketClosedForDCA      = errors.New("market closed for dca")
	ErrSubscriptionNotFound    = errors.New("dca subscription not found")
	ErrDuplicateTrade          = errors.New("duplicate trade id")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInsufficientData        = errors.New("insufficient data")
)

// InsufficientPositionError is returned when a CLOSE asks for more shares than are open.
type InsufficientPositionError struct {
	MarketID  string
	Side      Side
	Requested int64
	Available int64
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("close %d %s shares of market %s: only %d open",
		e.Requested, e.Side, e.MarketID, e.Available)
}

// Is lets errors.Is match ErrInsufficientPosition.
func (e *InsufficientPositionError) Is(target error) bool {
	return target == ErrInsufficientPosition
}

// UnknownMarketError carries the market that could not be resolved.
type UnknownMarketError struct {
	MarketID string
}

func (e *UnknownMarketError) Error() string {
	return fmt.Sprintf("unknown market %q", e.MarketID)
}

func (e *UnknownMarketError) Is(target error) bool {
	return target == ErrUnknownMarket
}

// InvalidInputf builds an ErrInvalidInput with a formatted reason.
func InvalidInputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
