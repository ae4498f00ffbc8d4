// Package booking tracks where a user is in the reservation flow and
// rejects steps taken out of order.
package booking

import "fmt"

type State string

const (
	NotStarted      State = "NOT_STARTED"
	KYCPending      State = "KYC_PENDING"
	KYCVerified     State = "KYC_VERIFIED"
	PaymentPending  State = "PAYMENT_PENDING"
	PaymentVerified State = "PAYMENT_VERIFIED"
	Reserved        State = "RESERVED"
)

type Event string

const (
	EventKYCInitiated       Event = "kyc_initiated"
	EventKYCVerified        Event = "kyc_verified"
	EventPaymentLinkCreated Event = "payment_link_created"
	EventPaymentVerified    Event = "payment_verified"
	EventBedReserved        Event = "bed_reserved"
	EventReset              Event = "reset"
)

// TransitionError is an event fired from a state that does not accept it.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking: %s not allowed in state %s", e.Event, e.From)
}

// Hint is a short instruction for the agent explaining what has to happen
// first.
func (e *TransitionError) Hint() string {
	switch e.Event {
	case EventKYCVerified:
		return "KYC has not been started. Ask for the 12-digit Aadhaar number first."
	case EventPaymentLinkCreated:
		if e.From == PaymentVerified || e.From == Reserved {
			return "Payment for this booking is already complete. Proceed with the bed reservation."
		}
		return "KYC verification must be completed before a payment link can be created."
	case EventPaymentVerified:
		return "No pending payment found. Please generate a payment link first."
	case EventBedReserved:
		if e.From == Reserved {
			return "A bed is already reserved for this booking."
		}
		return "The token payment must be verified before a bed can be reserved."
	case EventKYCInitiated:
		return "KYC is already complete for this booking."
	}
	return "This booking step is not available right now."
}

// Machine holds the transition table. With KYC disabled a payment link can
// be created straight from NOT_STARTED.
type Machine struct {
	KYCRequired bool
}

// Next returns the state reached by firing ev from the given state.
func (m Machine) Next(from State, ev Event) (State, error) {
	if from == "" {
		from = NotStarted
	}
	if ev == EventReset {
		return NotStarted, nil
	}

	allowed := func(states ...State) bool {
		for _, s := range states {
			if s == from {
				return true
			}
		}
		return false
	}

	var ok bool
	var to State
	switch ev {
	case EventKYCInitiated:
		ok, to = allowed(NotStarted, KYCPending), KYCPending
	case EventKYCVerified:
		// A backend status check can report an already verified user.
		ok, to = allowed(NotStarted, KYCPending, KYCVerified), KYCVerified
	case EventPaymentLinkCreated:
		ok, to = allowed(KYCVerified, PaymentPending), PaymentPending
		if !m.KYCRequired && from == NotStarted {
			ok = true
		}
	case EventPaymentVerified:
		ok, to = allowed(PaymentPending), PaymentVerified
	case EventBedReserved:
		ok, to = allowed(PaymentVerified), Reserved
	}
	if !ok {
		return from, &TransitionError{From: from, Event: ev}
	}
	return to, nil
}
