package exchange

import (
	"errors"
	"fmt"
	"math/big"

	"cipherex/core/events"
	"cipherex/core/types"
	nativecommon "cipherex/native/common"
	"cipherex/native/whitelist"
)

var (
	errNilState    = errors.New("exchange engine: state not configured")
	errNilMachine  = errors.New("exchange engine: transfer machine not configured")
	errNilRegistry = errors.New("exchange engine: registry source not configured")
)

const (
	exchangeModuleName = "exchange"

	// CallbackName is the name the engine registers itself under on the
	// transfer machine.
	CallbackName = "exchange"
)

// Machine is the slice of the transfer state machine the coordinator drives.
type Machine interface {
	DraftTransfer(collection [20]byte, assetID uint64, caller [20]byte, callbackName string) error
	CompleteTransferDraft(collection [20]byte, assetID uint64, caller, to [20]byte, publicKey, auxData []byte) error
	CancelTransfer(collection [20]byte, assetID uint64, caller [20]byte) error
}

// Registry is the ownership check consulted before an order opens.
type Registry interface {
	IsApprovedOrOwner(caller [20]byte, assetID uint64) (bool, error)
}

type engineState interface {
	OrderGet(collection [20]byte, assetID uint64) (*Order, bool)
	OrderPut(*Order) error
	OrderDelete(collection [20]byte, assetID uint64) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error
}

type exchangeEvent struct {
	evt *types.Event
}

func (e exchangeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e exchangeEvent) Event() *types.Event { return e.evt }

// Engine brokers priced sales and keeps custody of buyer funds until the
// transfer machine reports a terminal outcome. The engine's own address is
// both its identity towards the asset registry (sellers approve it before
// placing orders) and the escrow vault account.
type Engine struct {
	state      engineState
	machine    Machine
	registryFn func(collection [20]byte) (Registry, bool)
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	address    [20]byte
}

// NewEngine creates an exchange engine bound to the given transfer machine.
func NewEngine(machine Machine, address [20]byte) *Engine {
	return &Engine{
		machine: machine,
		address: address,
		emitter: events.NoopEmitter{},
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the governance pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetRegistrySource configures ownership lookups per collection.
func (e *Engine) SetRegistrySource(fn func(collection [20]byte) (Registry, bool)) {
	e.registryFn = fn
}

// Address returns the engine's coordinator/vault address.
func (e *Engine) Address() [20]byte { return e.address }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(exchangeEvent{evt: evt})
}

func (e *Engine) registry(collection [20]byte) (Registry, error) {
	if e == nil || e.registryFn == nil {
		return nil, errNilRegistry
	}
	reg, ok := e.registryFn(collection)
	if !ok || reg == nil {
		return nil, ErrNotFound
	}
	return reg, nil
}

func (e *Engine) loadOrder(collection [20]byte, assetID uint64) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	order, ok := e.state.OrderGet(collection, assetID)
	if !ok {
		return nil, ErrNotFound
	}
	return SanitizeOrder(order)
}

// Order returns a copy of the stored order, if any.
func (e *Engine) Order(collection [20]byte, assetID uint64) (*Order, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	order, ok := e.state.OrderGet(collection, assetID)
	if !ok {
		return nil, false
	}
	return order.Clone(), true
}

func (e *Engine) transferBalance(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrValueMismatch
	}
	if from == to {
		// Two copies of the same account would let the second write
		// cancel the debit. A self transfer moves nothing.
		acc, err := e.state.GetAccount(from)
		if err != nil {
			return err
		}
		if ensureAccount(acc).Balance.Cmp(amount) < 0 {
			return ErrInsufficientFunds
		}
		return nil
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// PlaceOrder opens a priced sale for the asset and drafts the matching
// transfer with this engine registered as callback. The caller must be
// holder-or-approved; the seller must have approved the engine's address on
// the token beforehand.
func (e *Engine) PlaceOrder(collection [20]byte, assetID uint64, caller [20]byte, price *big.Int) error {
	if err := nativecommon.Guard(e.pauses, exchangeModuleName); err != nil {
		return err
	}
	if e.state == nil {
		return errNilState
	}
	if e.machine == nil {
		return errNilMachine
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if _, exists := e.state.OrderGet(collection, assetID); exists {
		return ErrAlreadyExists
	}
	reg, err := e.registry(collection)
	if err != nil {
		return err
	}
	ok, err := reg.IsApprovedOrOwner(caller, assetID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	if err := e.machine.DraftTransfer(collection, assetID, e.address, CallbackName); err != nil {
		return err
	}
	order := &Order{
		Collection: collection,
		AssetID:    assetID,
		Price:      new(big.Int).Set(price),
		Initiator:  caller,
		Paid:       big.NewInt(0),
	}
	if err := e.state.OrderPut(order); err != nil {
		return err
	}
	e.emit(NewOrderPlacedEvent(order))
	return nil
}

// PlaceOrderBatch opens several orders in one submission. The batch is
// validated up front, and a failure past validation (a draft the state
// machine refuses) unwinds the entries already opened, so the submission
// commits or reverts as a whole.
func (e *Engine) PlaceOrderBatch(collection [20]byte, assetIDs []uint64, caller [20]byte, prices []*big.Int) error {
	if len(assetIDs) != len(prices) {
		return ErrBatchMismatch
	}
	if e.state == nil {
		return errNilState
	}
	seen := make(map[uint64]struct{}, len(assetIDs))
	for i, id := range assetIDs {
		if prices[i] == nil || prices[i].Sign() <= 0 {
			return ErrInvalidPrice
		}
		if _, dup := seen[id]; dup {
			return ErrAlreadyExists
		}
		seen[id] = struct{}{}
		if _, exists := e.state.OrderGet(collection, id); exists {
			return ErrAlreadyExists
		}
	}
	for i, id := range assetIDs {
		if err := e.PlaceOrder(collection, id, caller, prices[i]); err != nil {
			// Cancelling the draft tears the matching order down through
			// the TransferCancelled callback.
			for _, placed := range assetIDs[:i] {
				if cancelErr := e.machine.CancelTransfer(collection, placed, e.address); cancelErr != nil {
					return fmt.Errorf("unwinding order %d after batch failure: %v: %w", placed, cancelErr, err)
				}
			}
			return err
		}
	}
	return nil
}

// FulfillOrder escrows exactly the order price from the buyer and completes
// the transfer draft with the buyer's public key. No change is made: a wrong
// value fails the whole call.
func (e *Engine) FulfillOrder(collection [20]byte, assetID uint64, caller [20]byte, publicKey []byte, value *big.Int) error {
	if err := nativecommon.Guard(e.pauses, exchangeModuleName); err != nil {
		return err
	}
	order, err := e.loadOrder(collection, assetID)
	if err != nil {
		return err
	}
	if order.Fulfilled {
		return ErrInvalidState
	}
	if value == nil || value.Cmp(order.Price) != 0 {
		return ErrValueMismatch
	}
	return e.fulfill(order, caller, publicKey, value, nil)
}

// FulfillOrderWhitelisted escrows the discounted value and packages the
// pricing proof for the policy consulted at draft completion. The paid value
// is validated against the discount arithmetic there, not here.
func (e *Engine) FulfillOrderWhitelisted(collection [20]byte, assetID uint64, caller [20]byte, publicKey []byte, value *big.Int, signature []byte) error {
	if err := nativecommon.Guard(e.pauses, exchangeModuleName); err != nil {
		return err
	}
	order, err := e.loadOrder(collection, assetID)
	if err != nil {
		return err
	}
	if order.Fulfilled {
		return ErrInvalidState
	}
	if value == nil || value.Sign() <= 0 {
		return ErrValueMismatch
	}
	aux, err := whitelist.EncodeProof(&whitelist.Proof{
		DeclaredPrice: order.Price,
		PaidValue:     value,
		BuyerDigest:   whitelist.BuyerDigest(caller),
		Signature:     signature,
	})
	if err != nil {
		return err
	}
	return e.fulfill(order, caller, publicKey, value, aux)
}

func (e *Engine) fulfill(order *Order, buyer [20]byte, publicKey []byte, value *big.Int, aux []byte) error {
	if e.machine == nil {
		return errNilMachine
	}
	buyerAcc, err := e.state.GetAccount(buyer)
	if err != nil {
		return err
	}
	if ensureAccount(buyerAcc).Balance.Cmp(value) < 0 {
		return ErrInsufficientFunds
	}
	if err := e.machine.CompleteTransferDraft(order.Collection, order.AssetID, e.address, buyer, publicKey, aux); err != nil {
		return err
	}
	if err := e.transferBalance(buyer, e.address, value); err != nil {
		return err
	}
	order.Receiver = buyer
	order.Fulfilled = true
	order.Paid = new(big.Int).Set(value)
	if err := e.state.OrderPut(order); err != nil {
		return err
	}
	e.emit(NewOrderFulfilledEvent(order))
	return nil
}

// CancelOrder tears an unfulfilled order down by cancelling the underlying
// draft; the order record itself is deleted by the cancellation callback.
func (e *Engine) CancelOrder(collection [20]byte, assetID uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, exchangeModuleName); err != nil {
		return err
	}
	order, err := e.loadOrder(collection, assetID)
	if err != nil {
		return err
	}
	if order.Fulfilled {
		return ErrInvalidState
	}
	if caller != order.Initiator {
		return ErrUnauthorized
	}
	if e.machine == nil {
		return errNilMachine
	}
	return e.machine.CancelTransfer(collection, assetID, e.address)
}

// TransferFinished releases the escrowed value to the seller. Invoked by the
// transfer machine once the handoff finalises.
func (e *Engine) TransferFinished(collection [20]byte, assetID uint64) error {
	order, err := e.loadOrder(collection, assetID)
	if err != nil {
		return err
	}
	if !order.Fulfilled {
		return ErrInvalidState
	}
	if err := e.state.OrderDelete(collection, assetID); err != nil {
		return err
	}
	if err := e.transferBalance(e.address, order.Initiator, order.Paid); err != nil {
		return err
	}
	e.emit(NewPaidOutEvent(order, order.Initiator, "finished"))
	return nil
}

// TransferCancelled refunds the buyer when a fulfilled order's transfer is
// cancelled; unfulfilled orders held no funds. Invoked by the transfer
// machine.
func (e *Engine) TransferCancelled(collection [20]byte, assetID uint64) error {
	order, err := e.loadOrder(collection, assetID)
	if err != nil {
		return err
	}
	if err := e.state.OrderDelete(collection, assetID); err != nil {
		return err
	}
	if order.Fulfilled {
		if err := e.transferBalance(e.address, order.Receiver, order.Paid); err != nil {
			return err
		}
		e.emit(NewPaidOutEvent(order, order.Receiver, "cancelled"))
	}
	e.emit(NewOrderCancelledEvent(order))
	return nil
}

// TransferFraudDetected releases the escrow according to the arbitration
// outcome: to the buyer when the report was upheld, back to the seller when
// it was rejected. Invoked by the transfer machine.
func (e *Engine) TransferFraudDetected(collection [20]byte, assetID uint64, approved bool) error {
	order, err := e.loadOrder(collection, assetID)
	if err != nil {
		return err
	}
	if !order.Fulfilled {
		return ErrInvalidState
	}
	if err := e.state.OrderDelete(collection, assetID); err != nil {
		return err
	}
	recipient := order.Initiator
	outcome := "fraud_rejected"
	if approved {
		recipient = order.Receiver
		outcome = "fraud_approved"
	}
	if err := e.transferBalance(e.address, recipient, order.Paid); err != nil {
		return err
	}
	e.emit(NewPaidOutEvent(order, recipient, outcome))
	return nil
}
