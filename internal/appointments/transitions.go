package appointments

// statusTransitions lists the allowed targets for each status.
var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the status table allows from -> to.
// It does not check the payment guard on confirmation.
func CanTransition(from, to Status) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// sourceStatuses returns every status that may move to to.
func sourceStatuses(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// checkStatusTransition validates a status change for a, including the
// requirement that confirmation follows a completed payment.
func checkStatusTransition(a *Appointment, to Status) error {
	if !to.Valid() {
		return &InvalidTransitionError{Field: "status", From: string(a.Status), To: string(to), Reason: "unknown status"}
	}
	if !CanTransition(a.Status, to) {
		return &InvalidTransitionError{Field: "status", From: string(a.Status), To: string(to)}
	}
	if to == StatusConfirmed && a.PaymentStatus != PaymentPaid {
		return &InvalidTransitionError{Field: "status", From: string(a.Status), To: string(to), Reason: "payment not completed"}
	}
	return nil
}

// checkPaymentTransition validates a payment status change. It returns
// noop=true when the appointment already holds the requested terminal value.
func checkPaymentTransition(a *Appointment, to PaymentStatus) (noop bool, err error) {
	if !to.Terminal() {
		return false, &InvalidTransitionError{Field: "payment_status", From: string(a.PaymentStatus), To: string(to), Reason: "target must be paid or failed"}
	}
	if a.PaymentStatus == to {
		return true, nil
	}
	if a.PaymentStatus != PaymentPending {
		return false, &InvalidTransitionError{Field: "payment_status", From: string(a.PaymentStatus), To: string(to)}
	}
	return false, nil
}

// checkPaymentRetry validates resetting a failed payment for a new attempt.
func checkPaymentRetry(a *Appointment) (noop bool, err error) {
	switch {
	case a.PaymentStatus == PaymentPaid:
		return false, ErrAlreadyPaid
	case a.Status != StatusPending:
		return false, &InvalidTransitionError{Field: "payment_status", From: string(a.PaymentStatus), To: string(PaymentPending), Reason: "appointment is " + string(a.Status)}
	case a.PaymentStatus == PaymentPending:
		return true, nil
	}
	return false, nil
}
