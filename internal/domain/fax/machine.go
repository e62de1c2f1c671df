// Package fax implements the fax job status machine: a pure decision function
// over a closed set of states and triggers. All status transitions in the
// system go through Decide; nothing else writes FaxJob.Status.
//
// The machine is monotonic: no transition ever moves a job backward, and
// terminal states absorb every later trigger as a no-op. That property is what
// lets the reconciliation engine apply webhook events in receipt order without
// buffering or resequencing out-of-order deliveries.
package fax

import (
	"github.com/openfax/faxd/internal/domain/model"
)

// Trigger is a state-machine input derived from a submission outcome, a
// normalized provider event, or a client cancel request.
type Trigger string

const (
	// TriggerSubmissionAccepted is fed from a successful provider submission call.
	TriggerSubmissionAccepted Trigger = "submission_accepted"
	// TriggerSubmissionRejected is fed from a rejected or failed submission call.
	TriggerSubmissionRejected Trigger = "submission_rejected"
	// TriggerSendingStarted is fed from a provider "sending started" event.
	TriggerSendingStarted Trigger = "sending_started"
	// TriggerDelivered is fed from a provider "delivered" event.
	TriggerDelivered Trigger = "delivered"
	// TriggerFailed is fed from a provider "failed" event.
	TriggerFailed Trigger = "failed"
	// TriggerCanceled is fed from a provider event confirming a cancellation.
	TriggerCanceled Trigger = "canceled"
	// TriggerCancelRequest is fed from a client cancel request.
	TriggerCancelRequest Trigger = "cancel_request"
	// TriggerInformational covers provider events that never transition state
	// (queued, media processed, unrecognized kinds).
	TriggerInformational Trigger = "informational"
)

// TriggerForEvent maps a normalized provider event kind onto a machine trigger.
// Unmapped kinds become TriggerInformational and are recorded without effect.
func TriggerForEvent(kind model.EventKind) Trigger {
	switch kind {
	case model.EventKindSendingStarted:
		return TriggerSendingStarted
	case model.EventKindDelivered:
		return TriggerDelivered
	case model.EventKindFailed:
		return TriggerFailed
	case model.EventKindCanceled:
		return TriggerCanceled
	case model.EventKindQueued, model.EventKindMediaProcessed, model.EventKindUnrecognized:
		return TriggerInformational
	}
	return TriggerInformational
}

// Outcome classifies a decision.
type Outcome int

const (
	// OutcomeAdvance means the job moves to Decision.Next.
	OutcomeAdvance Outcome = iota
	// OutcomeNoOp means the trigger carries no new forward information; the
	// event may still be recorded in the timeline, but status is unchanged.
	OutcomeNoOp
	// OutcomeConflict means the trigger is valid but its precondition is not
	// met (cancel during active transmission, submission outcome out of order).
	// The job is unchanged and the caller is told to surface the rejection.
	OutcomeConflict
)

// Decision is the result of applying a trigger to a current status.
type Decision struct {
	Outcome Outcome
	Next    model.FaxJobStatus
	Reason  string
}

func advance(next model.FaxJobStatus) Decision {
	return Decision{Outcome: OutcomeAdvance, Next: next}
}

func noop(reason string) Decision {
	return Decision{Outcome: OutcomeNoOp, Reason: reason}
}

func conflict(reason string) Decision {
	return Decision{Outcome: OutcomeConflict, Reason: reason}
}

// Decide returns the transition for the given current status and trigger.
//
// Terminal states absorb everything. A provider may elide intermediate steps,
// so "delivered" and "failed" are accepted from any pre-terminal state, and
// "sending started" is accepted from created as well as queued_for_send.
func Decide(current model.FaxJobStatus, trigger Trigger) Decision {
	if current.Terminal() {
		return noop("job is in terminal status " + string(current))
	}

	switch trigger {
	case TriggerSubmissionAccepted:
		if current == model.FaxJobStatusCreated {
			return advance(model.FaxJobStatusQueuedForSend)
		}
		return conflict("submission outcome must be the first transition")

	case TriggerSubmissionRejected:
		if current == model.FaxJobStatusCreated {
			return advance(model.FaxJobStatusFailed)
		}
		return conflict("submission outcome must be the first transition")

	case TriggerSendingStarted:
		switch current {
		case model.FaxJobStatusCreated, model.FaxJobStatusQueuedForSend:
			return advance(model.FaxJobStatusSending)
		case model.FaxJobStatusSending:
			return noop("already sending")
		}

	case TriggerDelivered:
		// Accept skipped intermediates: a provider may report delivery without
		// a preceding "sending started" event.
		return advance(model.FaxJobStatusDelivered)

	case TriggerFailed:
		return advance(model.FaxJobStatusFailed)

	case TriggerCanceled:
		return advance(model.FaxJobStatusCanceled)

	case TriggerCancelRequest:
		switch current {
		case model.FaxJobStatusCreated, model.FaxJobStatusQueuedForSend:
			return advance(model.FaxJobStatusCanceled)
		case model.FaxJobStatusSending:
			return conflict("cannot cancel a fax in active transmission")
		}

	case TriggerInformational:
		return noop("informational event")
	}

	return noop("trigger " + string(trigger) + " has no effect in status " + string(current))
}
