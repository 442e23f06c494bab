package order

// OrderState implements the state pattern for the payment lifecycle.
// Terminal states absorb every signal so duplicate or late provider
// notifications never move an order again.
type OrderState interface {
	Status() Status
	OnPaymentSucceeded(o *Order) OrderState
	OnPaymentFailed(o *Order) OrderState
}

func stateOf(s Status) OrderState {
	switch s {
	case StatusPaid:
		return paidState{}
	case StatusFailed:
		return failedState{}
	default:
		return pendingState{}
	}
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnPaymentSucceeded(*Order) OrderState { return paidState{} }

func (pendingState) OnPaymentFailed(*Order) OrderState { return failedState{} }

type paidState struct{}

func (paidState) Status() Status { return StatusPaid }

func (s paidState) OnPaymentSucceeded(*Order) OrderState { return s }

func (s paidState) OnPaymentFailed(*Order) OrderState { return s }

type failedState struct{}

func (failedState) Status() Status { return StatusFailed }

func (s failedState) OnPaymentSucceeded(*Order) OrderState { return s }

func (s failedState) OnPaymentFailed(*Order) OrderState { return s }

// Transition applies target to the order and reports whether the status changed.
// Asking for pending, or for anything once terminal, is a no-op.
func (o *Order) Transition(target Status) bool {
	current := stateOf(o.Status)

	var next OrderState
	switch target {
	case StatusPaid:
		next = current.OnPaymentSucceeded(o)
	case StatusFailed:
		next = current.OnPaymentFailed(o)
	default:
		return false
	}

	if next.Status() == o.Status {
		return false
	}
	o.Status = next.Status()
	o.touch()
	return true
}

func (o *Order) MarkPaid() bool { return o.Transition(StatusPaid) }

func (o *Order) MarkPaymentFailed() bool { return o.Transition(StatusFailed) }
