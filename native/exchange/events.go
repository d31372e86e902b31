package exchange

import (
	"encoding/hex"
	"strconv"

	"cipherex/core/types"
)

const (
	EventTypeOrderPlaced    = "exchange.order_placed"
	EventTypeOrderFulfilled = "exchange.order_fulfilled"
	EventTypeOrderCancelled = "exchange.order_cancelled"
	EventTypePaidOut        = "exchange.paid_out"
)

// NewOrderPlacedEvent is emitted when a seller opens an order.
func NewOrderPlacedEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderPlaced, o) }

// NewOrderFulfilledEvent is emitted when a buyer escrows payment.
func NewOrderFulfilledEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderFulfilled, o) }

// NewOrderCancelledEvent is emitted when the order is torn down before the
// transfer completes.
func NewOrderCancelledEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderCancelled, o) }

// NewPaidOutEvent is emitted when escrowed funds release to the recipient of
// the terminal outcome.
func NewPaidOutEvent(o *Order, to [20]byte, outcome string) *types.Event {
	evt := newOrderEvent(EventTypePaidOut, o)
	evt.Attributes["recipient"] = hex.EncodeToString(to[:])
	evt.Attributes["outcome"] = outcome
	return evt
}

func newOrderEvent(eventType string, o *Order) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = hex.EncodeToString(o.Collection[:])
	attrs["assetId"] = strconv.FormatUint(o.AssetID, 10)
	attrs["price"] = o.Price.String()
	attrs["initiator"] = hex.EncodeToString(o.Initiator[:])
	if o.Fulfilled {
		attrs["receiver"] = hex.EncodeToString(o.Receiver[:])
		attrs["paid"] = o.Paid.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
