package fax

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfax/faxd/internal/domain/model"
)

func TestDecideTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		current model.FaxJobStatus
		trigger Trigger
		outcome Outcome
		next    model.FaxJobStatus
	}{
		{"submission accepted", model.FaxJobStatusCreated, TriggerSubmissionAccepted, OutcomeAdvance, model.FaxJobStatusQueuedForSend},
		{"submission rejected", model.FaxJobStatusCreated, TriggerSubmissionRejected, OutcomeAdvance, model.FaxJobStatusFailed},
		{"sending started", model.FaxJobStatusQueuedForSend, TriggerSendingStarted, OutcomeAdvance, model.FaxJobStatusSending},
		{"sending started before outcome recorded", model.FaxJobStatusCreated, TriggerSendingStarted, OutcomeAdvance, model.FaxJobStatusSending},
		{"delivered from sending", model.FaxJobStatusSending, TriggerDelivered, OutcomeAdvance, model.FaxJobStatusDelivered},
		{"delivered skips sending", model.FaxJobStatusQueuedForSend, TriggerDelivered, OutcomeAdvance, model.FaxJobStatusDelivered},
		{"delivered from created", model.FaxJobStatusCreated, TriggerDelivered, OutcomeAdvance, model.FaxJobStatusDelivered},
		{"failed from queued", model.FaxJobStatusQueuedForSend, TriggerFailed, OutcomeAdvance, model.FaxJobStatusFailed},
		{"failed from sending", model.FaxJobStatusSending, TriggerFailed, OutcomeAdvance, model.FaxJobStatusFailed},
		{"cancel from queued", model.FaxJobStatusQueuedForSend, TriggerCancelRequest, OutcomeAdvance, model.FaxJobStatusCanceled},
		{"cancel from created", model.FaxJobStatusCreated, TriggerCancelRequest, OutcomeAdvance, model.FaxJobStatusCanceled},
		{"provider cancel confirmation", model.FaxJobStatusSending, TriggerCanceled, OutcomeAdvance, model.FaxJobStatusCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.current, tt.trigger)
			require.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.next, d.Next)
		})
	}
}

func TestDecideConflicts(t *testing.T) {
	t.Run("cancel during active transmission", func(t *testing.T) {
		d := Decide(model.FaxJobStatusSending, TriggerCancelRequest)
		assert.Equal(t, OutcomeConflict, d.Outcome)
		assert.NotEmpty(t, d.Reason)
	})

	t.Run("submission outcome after first transition", func(t *testing.T) {
		d := Decide(model.FaxJobStatusQueuedForSend, TriggerSubmissionAccepted)
		assert.Equal(t, OutcomeConflict, d.Outcome)
	})
}

func TestDecideTerminalAbsorbsEverything(t *testing.T) {
	terminals := []model.FaxJobStatus{
		model.FaxJobStatusDelivered,
		model.FaxJobStatusFailed,
		model.FaxJobStatusCanceled,
	}
	triggers := []Trigger{
		TriggerSubmissionAccepted, TriggerSubmissionRejected,
		TriggerSendingStarted, TriggerDelivered, TriggerFailed,
		TriggerCanceled, TriggerCancelRequest, TriggerInformational,
	}

	for _, status := range terminals {
		for _, trigger := range triggers {
			d := Decide(status, trigger)
			assert.Equal(t, OutcomeNoOp, d.Outcome,
				"terminal %s must absorb %s", status, trigger)
		}
	}
}

func TestDecideInformationalNeverTransitions(t *testing.T) {
	states := []model.FaxJobStatus{
		model.FaxJobStatusCreated,
		model.FaxJobStatusQueuedForSend,
		model.FaxJobStatusSending,
	}
	for _, status := range states {
		d := Decide(status, TriggerInformational)
		assert.Equal(t, OutcomeNoOp, d.Outcome)
	}
}

func TestTriggerForEvent(t *testing.T) {
	tests := []struct {
		kind    model.EventKind
		trigger Trigger
	}{
		{model.EventKindSendingStarted, TriggerSendingStarted},
		{model.EventKindDelivered, TriggerDelivered},
		{model.EventKindFailed, TriggerFailed},
		{model.EventKindCanceled, TriggerCanceled},
		{model.EventKindQueued, TriggerInformational},
		{model.EventKindMediaProcessed, TriggerInformational},
		{model.EventKindUnrecognized, TriggerInformational},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.trigger, TriggerForEvent(tt.kind), string(tt.kind))
	}
}

// applySequence folds a trigger sequence over the machine the way the
// reconciliation engine does: advance on OutcomeAdvance, hold otherwise.
func applySequence(start model.FaxJobStatus, triggers []Trigger) model.FaxJobStatus {
	status := start
	for _, tr := range triggers {
		if d := Decide(status, tr); d.Outcome == OutcomeAdvance {
			status = d.Next
		}
	}
	return status
}

func TestMonotonicityUnderPermutations(t *testing.T) {
	// Once a sequence reaches a terminal status, any permutation of the
	// remaining events must leave the job in that terminal status.
	base := []Trigger{TriggerSendingStarted, TriggerDelivered, TriggerInformational}
	rng := rand.New(rand.NewSource(1))

	for range 50 {
		perm := make([]Trigger, len(base))
		copy(perm, base)
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

		status := applySequence(model.FaxJobStatusQueuedForSend, perm)
		assert.Equal(t, model.FaxJobStatusDelivered, status, "permutation %v", perm)

		// Replaying the full sequence against the terminal result changes nothing.
		assert.Equal(t, status, applySequence(status, perm))
	}
}

func TestOutOfOrderDeliveredThenSending(t *testing.T) {
	status := applySequence(model.FaxJobStatusQueuedForSend,
		[]Trigger{TriggerDelivered, TriggerSendingStarted})
	assert.Equal(t, model.FaxJobStatusDelivered, status)
}
