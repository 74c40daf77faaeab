package price

import "errors"

var (
	ErrPriceAlreadyCaptured = errors.New("closing price already captured")
	ErrGracePeriodActive    = errors.New("oracle grace period still active")
	ErrPriceNotResolved     = errors.New("closing price not resolved")
	ErrReadingBeforeClose   = errors.New("reading predates tournament close")
	ErrInvalidPrice         = errors.New("price must be positive")
)
