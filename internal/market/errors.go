package market

import "errors"

var (
	// ErrEmptyTracker is returned by Solve when nothing was inserted since the last Clear.
	ErrEmptyTracker = errors.New("price tracker is empty")

	// ErrNoSolutionFound is returned by Solve when no interval of the quote
	// sequence balances buyers and sellers. This only happens when the
	// registered quotes collapse onto identical values.
	ErrNoSolutionFound = errors.New("no balancing price found")

	// ErrInvalidQuote is returned by Insert for non-finite quotes.
	ErrInvalidQuote = errors.New("invalid quote")
)
