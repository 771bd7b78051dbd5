package orders

// Reduction is the outcome of applying one status event to a stored status.
type Reduction struct {
	Next             Status
	Transitioned     bool
	CreateSettlement bool
	Notify           bool
}

// Reduce decides whether an incoming event advances the order. A transition
// is accepted only when the event's target state outranks the stored state;
// duplicate and re-ordered deliveries from concurrent channels therefore
// collapse to the same result regardless of arrival order.
//
// CreateSettlement is set only on the first transition into delivered.
// Notify is set on every accepted transition into a terminal state.
func Reduce(current Status, ev StatusEvent) Reduction {
	target, known := MapProviderStatus(ev.RawStatus)
	if !known {
		return Reduction{Next: current}
	}
	if current.IsTerminal() {
		// First terminal event won; later ones are logged upstream only.
		return Reduction{Next: current}
	}
	if target.Rank() <= current.Rank() {
		return Reduction{Next: current}
	}

	red := Reduction{Next: target, Transitioned: true}
	if target.IsTerminal() {
		red.Notify = true
	}
	if target == StatusDelivered {
		red.CreateSettlement = true
	}
	return red
}
