package exchange

import (
	"fmt"
	"math/big"
)

// Order tracks a priced sale independent of the transfer record it was opened
// with. Paid is the value actually escrowed at fulfillment (the discounted
// amount on whitelisted fulfillments) and is the exact figure released by the
// terminal callback.
type Order struct {
	Collection [20]byte
	AssetID    uint64
	Price      *big.Int
	Initiator  [20]byte
	Receiver   [20]byte
	Fulfilled  bool
	Paid       *big.Int
}

// Clone returns a deep copy safe for callers to mutate.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Price != nil {
		clone.Price = new(big.Int).Set(o.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	if o.Paid != nil {
		clone.Paid = new(big.Int).Set(o.Paid)
	} else {
		clone.Paid = big.NewInt(0)
	}
	return &clone
}

// SanitizeOrder validates the stored shape of an order and returns a
// defensive copy.
func SanitizeOrder(o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("exchange: nil order")
	}
	clone := o.Clone()
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("exchange: order price must be positive")
	}
	if clone.Fulfilled && clone.Paid.Sign() <= 0 {
		return nil, fmt.Errorf("exchange: fulfilled order missing paid value")
	}
	if !clone.Fulfilled && clone.Paid.Sign() != 0 {
		return nil, fmt.Errorf("exchange: unfulfilled order holds funds")
	}
	return clone, nil
}
