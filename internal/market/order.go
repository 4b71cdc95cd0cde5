package market

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a local Order.
type Status int

const (
	// StatusUnverified means the order has been created locally but not
	// yet confirmed by the wallet adapter (funds not yet verified/locked).
	StatusUnverified Status = iota
	// StatusOpen means the order is live and may still be (partially) matched.
	StatusOpen
	// StatusCompleted means the order's full quantity has been traded.
	StatusCompleted
	// StatusCancelled means the trader withdrew the order before completion.
	StatusCancelled
	// StatusExpired means the order's timeout elapsed before completion.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusUnverified:
		return "unverified"
	case StatusOpen:
		return "open"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

var (
	// ErrOrderAlreadyCompleted is returned when an operation requires an
	// order to still be open.
	ErrOrderAlreadyCompleted = errors.New("market: order already completed")
	// ErrReservationNotFound is returned releasing a reservation that was
	// never made, or was already released.
	ErrReservationNotFound = errors.New("market: no reservation for counterparty order")
	// ErrInsufficientAvailable is returned reserving more than the order
	// currently has available to trade.
	ErrInsufficientAvailable = errors.New("market: insufficient available quantity")
)

// Order is a trader's local order and its full quantity accounting: how
// much was originally offered (Total), how much is presently set aside for
// in-flight negotiations (the sum of ReservedTicks), how much has already
// traded (Traded), and how much the trader has received in return
// (Received). AssetPair.First is always the asset being given up if IsAsk,
// or received if a bid — see spec for the exact convention.
type Order struct {
	OrderID   OrderID
	IsAsk     bool
	Pair      AssetPair
	Timeout   time.Duration
	Timestamp time.Time

	status        Status
	traded        int64 // in units of Pair.First
	received      int64 // in units of Pair.Second
	reservedTicks map[OrderID]int64
	completedAt   *time.Time
}

// NewOrder creates a fresh, unverified order for the given asset pair.
func NewOrder(id OrderID, isAsk bool, pair AssetPair, timeout time.Duration, ts time.Time) *Order {
	return &Order{
		OrderID:       id,
		IsAsk:         isAsk,
		Pair:          pair,
		Timeout:       timeout,
		Timestamp:     ts,
		status:        StatusUnverified,
		reservedTicks: make(map[OrderID]int64),
	}
}

// Status returns the order's current lifecycle state, computed on demand:
// an order whose traded quantity has reached its total is completed, one
// explicitly cancelled or expired reports that terminal state, otherwise
// it is open (or unverified, before the wallet confirms it).
func (o *Order) Status() Status {
	if o.status == StatusCancelled || o.status == StatusExpired || o.status == StatusCompleted {
		return o.status
	}
	if o.traded >= o.Pair.First.Amount {
		return StatusCompleted
	}
	return o.status
}

// Verify transitions an unverified order to open. Idempotent if already open.
func (o *Order) Verify() {
	if o.status == StatusUnverified {
		o.status = StatusOpen
	}
}

// Total is the full original quantity offered, in units of Pair.First.
func (o *Order) Total() int64 { return o.Pair.First.Amount }

// Traded is the quantity already settled, in units of Pair.First.
func (o *Order) Traded() int64 { return o.traded }

// Received is the quantity of Pair.Second received from settled trades.
func (o *Order) Received() int64 { return o.received }

// Reserved is the total quantity currently set aside across all in-flight
// reservations.
func (o *Order) Reserved() int64 {
	var sum int64
	for _, q := range o.reservedTicks {
		sum += q
	}
	return sum
}

// Available is the quantity that may still be offered to a new counterparty:
// total minus already-traded minus currently-reserved.
func (o *Order) Available() int64 {
	avail := o.Total() - o.traded - o.Reserved()
	if avail < 0 {
		return 0
	}
	return avail
}

// IsComplete reports whether the order has traded its full quantity.
func (o *Order) IsComplete() bool {
	return o.traded >= o.Total()
}

// Reserve sets aside quantity for a specific counterparty order while a
// trade negotiation with it is in flight. Fails if insufficient quantity
// is available.
func (o *Order) Reserve(counterparty OrderID, quantity int64) error {
	if o.IsComplete() {
		return ErrOrderAlreadyCompleted
	}
	if quantity <= 0 {
		return fmt.Errorf("market: reserve quantity must be positive, got %d", quantity)
	}
	if quantity > o.Available() {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientAvailable, quantity, o.Available())
	}
	o.reservedTicks[counterparty] += quantity
	return nil
}

// Release gives back a reservation previously made for counterparty,
// without recording a trade (negotiation declined or timed out).
func (o *Order) Release(counterparty OrderID) error {
	if _, ok := o.reservedTicks[counterparty]; !ok {
		return ErrReservationNotFound
	}
	delete(o.reservedTicks, counterparty)
	return nil
}

// ReservedFor returns the quantity currently reserved for counterparty, or
// zero if none.
func (o *Order) ReservedFor(counterparty OrderID) int64 {
	return o.reservedTicks[counterparty]
}

// RecordTrade moves a previously reserved quantity for counterparty into
// traded/received, consuming the reservation. traded/received are in units
// of Pair.First/Pair.Second respectively.
func (o *Order) RecordTrade(counterparty OrderID, traded, received int64) error {
	reserved, ok := o.reservedTicks[counterparty]
	if !ok {
		return ErrReservationNotFound
	}
	if traded > reserved {
		return fmt.Errorf("market: traded quantity %d exceeds reservation %d", traded, reserved)
	}
	delete(o.reservedTicks, counterparty)
	o.traded += traded
	o.received += received
	if o.IsComplete() {
		now := o.Timestamp
		o.completedAt = &now
		o.status = StatusCompleted
	}
	return nil
}

// Cancel marks the order cancelled. No-op if already terminal.
func (o *Order) Cancel() {
	if o.status == StatusCompleted || o.status == StatusCancelled || o.status == StatusExpired {
		return
	}
	o.status = StatusCancelled
}

// Expire marks the order expired because its timeout elapsed. No-op if
// already terminal.
func (o *Order) Expire() {
	if o.status == StatusCompleted || o.status == StatusCancelled || o.status == StatusExpired {
		return
	}
	o.status = StatusExpired
}

// IsExpired reports whether now is past the order's deadline.
func (o *Order) IsExpired(now time.Time) bool {
	return now.After(o.Timestamp.Add(o.Timeout))
}

// OrderSnapshot is an Order's full state in exported form, for handing to a
// persistence layer that cannot reach across a package boundary to an
// unexported field.
type OrderSnapshot struct {
	OrderID       OrderID
	IsAsk         bool
	Pair          AssetPair
	Timeout       time.Duration
	Timestamp     time.Time
	Status        Status
	Traded        int64
	Received      int64
	ReservedTicks map[OrderID]int64
	CompletedAt   *time.Time
}

// Snapshot captures the order's current state for persistence.
func (o *Order) Snapshot() OrderSnapshot {
	reserved := make(map[OrderID]int64, len(o.reservedTicks))
	for k, v := range o.reservedTicks {
		reserved[k] = v
	}
	return OrderSnapshot{
		OrderID:       o.OrderID,
		IsAsk:         o.IsAsk,
		Pair:          o.Pair,
		Timeout:       o.Timeout,
		Timestamp:     o.Timestamp,
		Status:        o.status,
		Traded:        o.traded,
		Received:      o.received,
		ReservedTicks: reserved,
		CompletedAt:   o.completedAt,
	}
}

// RestoreOrder rebuilds an Order from a previously taken Snapshot.
func RestoreOrder(s OrderSnapshot) *Order {
	reserved := make(map[OrderID]int64, len(s.ReservedTicks))
	for k, v := range s.ReservedTicks {
		reserved[k] = v
	}
	return &Order{
		OrderID:       s.OrderID,
		IsAsk:         s.IsAsk,
		Pair:          s.Pair,
		Timeout:       s.Timeout,
		Timestamp:     s.Timestamp,
		status:        s.Status,
		traded:        s.Traded,
		received:      s.Received,
		reservedTicks: reserved,
		completedAt:   s.CompletedAt,
	}
}

// HasAcceptablePrice reports whether executing against the given asset pair
// would not violate this order's limit price: an ask never gives away more
// of First than offered per unit of Second, a bid never pays more of
// Second than offered per unit of First.
func (o *Order) HasAcceptablePrice(candidate AssetPair) bool {
	// Cross-multiply to avoid fractional division: own.Second/own.First
	// compared against candidate.Second/candidate.First.
	ownFirst := o.Pair.First.Amount
	ownSecond := o.Pair.Second.Amount
	candFirst := candidate.First.Amount
	candSecond := candidate.Second.Amount
	if ownFirst == 0 || candFirst == 0 {
		return false
	}
	lhs := ownSecond * candFirst
	rhs := candSecond * ownFirst
	if o.IsAsk {
		// Ask wants at least its own price: candidate price >= own price.
		return rhs >= lhs
	}
	// Bid wants at most its own price: candidate price <= own price.
	return rhs <= lhs
}
