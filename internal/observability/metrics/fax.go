package metrics

import (
	"time"

	obserrors "github.com/openfax/faxd/internal/observability/errors"
	"github.com/openfax/faxd/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultNoop      = "noop"
	ResultConflict  = "conflict"
	ResultDuplicate = "duplicate"
)

// TransitionMetric captures a fax job status change for metric emission.
type TransitionMetric struct {
	From     string
	To       string
	Trigger  string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitTransition emits standardised fax job transition metrics.
func EmitTransition(sink statsd.Sink, in TransitionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"from":    in.From,
		"to":      in.To,
		"trigger": in.Trigger,
		"result":  in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("fax.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("fax.transition.duration", in.Duration, CloneTags(tags))
	}
}

// WebhookMetric captures an inbound provider callback for metric emission.
type WebhookMetric struct {
	Provider  string
	EventKind string
	Result    string
}

// EmitWebhook counts an inbound provider callback.
func EmitWebhook(sink statsd.Sink, in WebhookMetric) {
	if sink == nil {
		return
	}
	sink.Count("webhook.received", 1, map[string]string{
		"provider": in.Provider,
		"kind":     in.EventKind,
		"result":   in.Result,
	})
}

// EmitProviderCall records the latency and result of an outbound provider call.
func EmitProviderCall(sink statsd.Sink, operation string, duration time.Duration, err error) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	tags := map[string]string{"operation": operation}
	if err != nil {
		result = ResultError
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	tags["result"] = result

	sink.Count("provider.call", 1, tags)
	sink.Timing("provider.call.duration", duration, CloneTags(tags))
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
