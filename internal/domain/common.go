package domain

// Side represents the side of an order (BUY or SELL).
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ExecMode selects how orders are executed: simulated against quotes or
// routed to the venue.
type ExecMode string

const (
	ModePaper ExecMode = "paper"
	ModeLive  ExecMode = "live"
)

// OrderStatus represents the lifecycle state of a tracked order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

// IsTerminal reports whether the status admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderExpired
}

// ExitReason indicates why a position exit was triggered.
type ExitReason string

const (
	ExitTakeProfit     ExitReason = "take_profit"
	ExitStopLoss       ExitReason = "stop_loss"
	ExitTimeout        ExitReason = "timeout"
	ExitTimeoutNoPrice ExitReason = "timeout_no_price"
	// ExitDecision marks sells requested by the decision source rather
	// than a forced exit rule.
	ExitDecision ExitReason = "decision"
)

// DecisionAction is the action a decision source recommends for a token.
type DecisionAction string

const (
	ActionBuy  DecisionAction = "BUY"
	ActionSell DecisionAction = "SELL"
	ActionHold DecisionAction = "HOLD"
)

// BreakerState represents the circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)
