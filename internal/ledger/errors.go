package ledger

import "errors"

// Every operation either commits completely or returns one of these errors
// with the records left untouched.
var (
	ErrOverflow                = errors.New("overflow or underflow detected")
	ErrNegativeFee             = errors.New("configuration leads to negative net fee")
	ErrUnauthorized            = errors.New("unauthorized operation")
	ErrNoOpenOrders            = errors.New("no open orders found")
	ErrInvalidFeeConfiguration = errors.New("invalid fee configuration")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrNoFreeOrderSlot         = errors.New("no free slot to place a new order")
	ErrInvalidOrderIndex       = errors.New("invalid order index")
	ErrOrderExpired            = errors.New("order is expired")
)
